// Package restock reads gzipped stock delivery files and adds the delivered
// quantities to inventory in one transaction.
//
// Each line of a file is "product_id,quantity". Blank lines and lines
// starting with '#' are skipped.
package restock

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/store"
)

// LineError reports a malformed line.
type LineError struct {
	Path string
	Line int
	Msg  string
}

func (e *LineError) Error() string {
	return e.Path + ":" + strconv.Itoa(e.Line) + ": " + e.Msg
}

// MaxQuantity bounds the summed delivery of one product. Stock is an
// INTEGER column.
const MaxQuantity = math.MaxInt32

// Deltas maps product id to the quantity to add.
type Deltas map[string]int

// add sums q into d[id], reporting false if the result would exceed
// MaxQuantity. q must be positive.
func (d Deltas) add(id string, q int) bool {
	if q > MaxQuantity-d[id] {
		return false
	}
	d[id] += q
	return true
}

// Read parses one delivery stream.
func Read(ctx context.Context, name string, r io.Reader) (Deltas, error) {
	out := Deltas{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if n%10_000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, qty, ok := strings.Cut(line, ",")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, &LineError{Path: name, Line: n, Msg: "expected product_id,quantity"}
		}
		q, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || q <= 0 || q > MaxQuantity {
			return nil, &LineError{Path: name, Line: n, Msg: "quantity must be a positive integer"}
		}
		if !out.add(id, q) {
			return nil, &LineError{Path: name, Line: n, Msg: "total quantity for " + id + " exceeds " + strconv.Itoa(MaxQuantity)}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", name)
	}
	return out, nil
}

// ReadFile parses one gzip-compressed delivery file.
func ReadFile(ctx context.Context, path string) (Deltas, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return Read(ctx, path, gz)
}

// ReadFiles parses files concurrently and sums their deltas.
func ReadFiles(ctx context.Context, paths []string) (Deltas, error) {
	parts := make([]Deltas, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			d, err := ReadFile(ctx, p)
			if err != nil {
				return err
			}
			slog.Info("parsed delivery file", slog.String("path", p), slog.Int("products", len(d)))
			parts[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := Deltas{}
	for i, d := range parts {
		for id, q := range d {
			if !total.add(id, q) {
				return nil, errors.Errorf("%s: total quantity for %s exceeds %d", paths[i], id, MaxQuantity)
			}
		}
	}
	return total, nil
}

// Result summarizes an Apply run.
type Result struct {
	Updated int
	Units   int
	Unknown []string
}

// Apply adds deltas to stock in a single transaction, locking products in
// ascending id order like checkout does. Unknown products fail the whole run
// unless skipUnknown is set, in which case they are reported in the result.
func Apply(ctx context.Context, txr store.Transactor, opts store.TxOptions, deltas Deltas, skipUnknown bool) (*Result, error) {
	ids := slices.Sorted(maps.Keys(deltas))

	var res Result
	err := txr.InTx(ctx, opts, func(ctx context.Context, tx store.Tx) error {
		res = Result{}
		for _, id := range ids {
			if _, err := tx.Inventory().LockForUpdate(ctx, id); err != nil {
				if skipUnknown && errors.Is(err, inventory.ErrProductNotFound) {
					res.Unknown = append(res.Unknown, id)
					continue
				}
				return errors.Wrapf(err, "lock %s", id)
			}
			if err := tx.Inventory().Increment(ctx, id, deltas[id]); err != nil {
				return errors.Wrapf(err, "restock %s", id)
			}
			res.Updated++
			res.Units += deltas[id]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
