// Package memory is an in-process implementation of the store interfaces.
//
// Transactions are serialized by a single mutex and operate on a private copy
// of the data that replaces the shared state on commit. This gives the same
// observable isolation as row locks held to the end of a transaction, at the
// cost of no parallelism.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/store"
)

var (
	_ store.Transactor  = (*Store)(nil)
	_ order.Reader      = (*Store)(nil)
	_ inventory.Catalog = catalog{}
)

type state struct {
	products      map[string]inventory.Product
	orders        map[string]*order.Order
	addresses     map[string][]address.Address
	notifications map[string]struct{}
}

func (s *state) clone() *state {
	c := &state{
		products:      maps.Clone(s.products),
		orders:        make(map[string]*order.Order, len(s.orders)),
		addresses:     make(map[string][]address.Address, len(s.addresses)),
		notifications: maps.Clone(s.notifications),
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	for user, list := range s.addresses {
		c.addresses[user] = slices.Clone(list)
	}
	return c
}

// Store holds products, orders, addresses and processed notifications.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: &state{
		products:      map[string]inventory.Product{},
		orders:        map[string]*order.Order{},
		addresses:     map[string][]address.Address{},
		notifications: map[string]struct{}{},
	}}
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = p
}

// PutAddress adds an address for its user.
func (s *Store) PutAddress(a address.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.addresses[a.UserID] = append(s.state.addresses[a.UserID], a)
}

// PutOrder inserts or replaces an order.
func (s *Store) PutOrder(o *order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = cloneOrder(o)
}

// Stock returns the committed stock of a product, or -1 if it does not exist.
func (s *Store) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[productID]
	if !ok {
		return -1
	}
	return p.Stock
}

// Orders returns copies of all committed orders.
func (s *Store) Orders() []*order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*order.Order, 0, len(s.state.orders))
	for _, o := range s.state.orders {
		out = append(out, cloneOrder(o))
	}
	return out
}

// Get implements order.Reader.
func (s *Store) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

// ListPendingBefore implements order.Reader.
func (s *Store) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*order.Order
	for _, o := range s.state.orders {
		if o.Status == order.StatusPending && o.CreatedAt.Before(before) {
			pending = append(pending, o)
		}
	}
	slices.SortFunc(pending, func(a, b *order.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	ids := make([]string, 0, min(len(pending), limit))
	for _, o := range pending {
		if len(ids) == limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// Product returns a committed product. It is the inventory.Catalog view.
func (s *Store) Product(_ context.Context, id string) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	return &p, nil
}

// Catalog returns the store as an inventory.Catalog.
func (s *Store) Catalog() inventory.Catalog { return catalog{s} }

type catalog struct{ s *Store }

func (c catalog) Get(ctx context.Context, id string) (*inventory.Product, error) {
	return c.s.Product(ctx, id)
}

// InTx implements store.Transactor. Changes made by fn become visible only
// when fn returns nil.
func (s *Store) InTx(ctx context.Context, opts store.TxOptions, fn func(ctx context.Context, tx store.Tx) error) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return timeoutOr(err)
	}

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return timeoutOr(err)
	}
	s.state = work
	return nil
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(store.ErrTimeout, err.Error())
	}
	return err
}

type tx struct {
	st *state
}

func (t *tx) Inventory() inventory.Ledger          { return ledger{t.st} }
func (t *tx) Orders() order.Repository             { return orders{t.st} }
func (t *tx) Addresses() address.Repository        { return addresses{t.st} }
func (t *tx) Notifications() store.NotificationLog { return notifications{t.st} }

type ledger struct{ st *state }

func (l ledger) LockForUpdate(_ context.Context, id string) (*inventory.Product, error) {
	p, ok := l.st.products[id]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	return &p, nil
}

func (l ledger) Decrement(_ context.Context, id string, quantity int) error {
	p, ok := l.st.products[id]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if p.Stock < quantity {
		return inventory.ErrInsufficientStock
	}
	p.Stock -= quantity
	l.st.products[id] = p
	return nil
}

func (l ledger) Increment(_ context.Context, id string, quantity int) error {
	p, ok := l.st.products[id]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.Stock += quantity
	l.st.products[id] = p
	return nil
}

type orders struct{ st *state }

func (r orders) Create(_ context.Context, o *order.Order) error {
	if _, ok := r.st.orders[o.ID]; ok {
		return errors.Errorf("order %s already exists", o.ID)
	}
	r.st.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r orders) GetForUpdate(_ context.Context, id string) (*order.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r orders) UpdateStatus(_ context.Context, o *order.Order) error {
	cur, ok := r.st.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	cur.Status = o.Status
	cur.PaymentMethod = cloneString(o.PaymentMethod)
	cur.PaymentStatus = cloneString(o.PaymentStatus)
	cur.UpdatedAt = o.UpdatedAt
	return nil
}

type addresses struct{ st *state }

func (r addresses) FindMain(_ context.Context, userID string) (*address.Address, error) {
	for _, a := range r.st.addresses[userID] {
		if a.Main {
			return &a, nil
		}
	}
	return nil, address.ErrMainAddressNotFound
}

type notifications struct{ st *state }

func (r notifications) Record(_ context.Context, _, transactionID, status string) (bool, error) {
	key := transactionID + "\x00" + status
	if _, ok := r.st.notifications[key]; ok {
		return false, nil
	}
	r.st.notifications[key] = struct{}{}
	return true, nil
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	c.PaymentMethod = cloneString(o.PaymentMethod)
	c.PaymentStatus = cloneString(o.PaymentStatus)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
