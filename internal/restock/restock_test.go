package restock

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/storage/memory"
)

func writeGz(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestRead(t *testing.T) {
	d, err := Read(context.Background(), "in", strings.NewReader(`
# delivery 42
kopi,3
teh, 2
kopi,4
`))
	require.NoError(t, err)
	assert.Equal(t, Deltas{"kopi": 7, "teh": 2}, d)
}

func TestRead_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"NoComma":  "kopi\n",
		"NoID":     ",3\n",
		"Zero":     "kopi,0\n",
		"Negative": "kopi,-1\n",
		"NotInt":   "kopi,1.5\n",
		"Huge":     "kopi,18446744073709551621\n",
		"SumWraps": "ok,2147483647\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Read(context.Background(), "in", strings.NewReader("ok,1\n"+body))
			var lineErr *LineError
			require.ErrorAs(t, err, &lineErr)
			assert.Equal(t, 2, lineErr.Line)
		})
	}
}

func TestReadFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.gz", "kopi,1\nteh,5\n")
	b := writeGz(t, dir, "b.gz", "kopi,2\nsusu,1\n")

	d, err := ReadFiles(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, Deltas{"kopi": 3, "teh": 5, "susu": 1}, d)

	_, err = ReadFiles(context.Background(), []string{a, filepath.Join(dir, "missing.gz")})
	require.Error(t, err)
}

func TestReadFiles_SumBounded(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.gz", "kopi,2147483000\n")
	b := writeGz(t, dir, "b.gz", "kopi,1000\n")

	_, err := ReadFiles(context.Background(), []string{a, b})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kopi")
}

func newStore() *memory.Store {
	st := memory.New()
	st.PutProduct(inventory.Product{ID: "kopi", Stock: 1, Price: decimal.NewFromInt(10)})
	st.PutProduct(inventory.Product{ID: "teh", Stock: 0, Price: decimal.NewFromInt(5)})
	return st
}

func TestApply(t *testing.T) {
	st := newStore()

	res, err := Apply(context.Background(), st, store.TxOptions{}, Deltas{"kopi": 3, "teh": 5}, false)
	require.NoError(t, err)
	assert.Equal(t, &Result{Updated: 2, Units: 8}, res)
	assert.Equal(t, 4, st.Stock("kopi"))
	assert.Equal(t, 5, st.Stock("teh"))
}

func TestApply_UnknownRollsBack(t *testing.T) {
	st := newStore()

	_, err := Apply(context.Background(), st, store.TxOptions{}, Deltas{"kopi": 3, "zzz": 1}, false)
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
	assert.Equal(t, 1, st.Stock("kopi"))
}

func TestApply_SkipUnknown(t *testing.T) {
	st := newStore()

	res, err := Apply(context.Background(), st, store.TxOptions{}, Deltas{"kopi": 3, "aaa": 1, "zzz": 1}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "zzz"}, res.Unknown)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 4, st.Stock("kopi"))
}
