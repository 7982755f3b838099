package checkout

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/internal/storage/memory"
)

// --- Mock implementations ---

type mockGateway struct {
	mu   sync.Mutex
	reqs []payment.TransactionRequest
	err  error
}

func (m *mockGateway) CreateTransaction(_ context.Context, req payment.TransactionRequest) (*payment.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &payment.Transaction{
		Token:       "token-" + req.OrderID,
		RedirectURL: "https://pay.example.com/" + req.OrderID,
	}, nil
}

func (m *mockGateway) ParseNotification(context.Context, []byte) (*payment.Notification, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGateway) last() payment.TransactionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[len(m.reqs)-1]
}

type mockPublisher struct {
	mu     sync.Mutex
	events []order.Event
}

func (m *mockPublisher) Publish(_ context.Context, e order.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

type mockCache struct {
	mu   sync.Mutex
	byID map[string]order.Snapshot
}

func (m *mockCache) Get(_ context.Context, id string) (order.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	return s, ok, nil
}

func (m *mockCache) Set(_ context.Context, s order.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID == nil {
		m.byID = map[string]order.Snapshot{}
	}
	m.byID[s.OrderID] = s
	return nil
}

func (m *mockCache) Add(ctx context.Context, s order.Snapshot) error {
	m.mu.Lock()
	_, ok := m.byID[s.OrderID]
	m.mu.Unlock()
	if ok {
		return nil
	}
	return m.Set(ctx, s)
}

// failingTransactor returns a fixed error without running fn.
type failingTransactor struct{ err error }

func (f failingTransactor) InTx(context.Context, store.TxOptions, func(context.Context, store.Tx) error) error {
	return f.err
}

// --- Helpers ---

var buyer = &auth.Identity{UserID: "u1", Email: "buyer@example.com", Name: "Buyer"}

func newStore(products ...inventory.Product) *memory.Store {
	st := memory.New()
	for _, p := range products {
		st.PutProduct(p)
	}
	st.PutAddress(address.Address{
		ID:         "addr-1",
		UserID:     "u1",
		Recipient:  "Buyer",
		Phone:      "+62000",
		Street:     "Jl. Merdeka 1",
		City:       "Jakarta",
		PostalCode: "10110",
		Main:       true,
	})
	return st
}

func product(id string, stock int, price string) inventory.Product {
	return inventory.Product{ID: id, Name: "Product " + id, Stock: stock, Price: decimal.RequireFromString(price)}
}

func newService(t *testing.T, txr store.Transactor, gw payment.Gateway, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(txr, gw, Config{LockTimeout: time.Second, Timeout: 5 * time.Second}, opts...)
	require.NoError(t, err)
	return svc
}

func req(total string, items ...LineItem) Request {
	return Request{Items: items, TotalAmount: decimal.RequireFromString(total)}
}

// --- Tests ---

func TestCheckout_Unauthorized(t *testing.T) {
	st := newStore(product("p1", 5, "10"))
	svc := newService(t, st, &mockGateway{})

	_, err := svc.Checkout(context.Background(), nil, req("10", LineItem{ProductID: "p1", Quantity: 1}))
	require.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Equal(t, 5, st.Stock("p1"))
}

func TestCheckout_EmptyItems(t *testing.T) {
	svc := newService(t, newStore(), &mockGateway{})

	_, err := svc.Checkout(context.Background(), buyer, req("10"))
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	svc := newService(t, newStore(product("p1", 5, "10")), &mockGateway{})

	_, err := svc.Checkout(context.Background(), buyer, req("10", LineItem{ProductID: "p1", Quantity: 0}))

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestCheckout_QuantityOverflow(t *testing.T) {
	for name, items := range map[string][]LineItem{
		"SingleLine": {{ProductID: "p1", Quantity: math.MaxInt}},
		"MergedLines": {
			{ProductID: "p1", Quantity: MaxQuantity},
			{ProductID: "p1", Quantity: MaxQuantity},
		},
		"MergedWrapsNegative": {
			{ProductID: "p1", Quantity: math.MaxInt},
			{ProductID: "p1", Quantity: math.MaxInt - 3},
		},
	} {
		t.Run(name, func(t *testing.T) {
			st := newStore(product("p1", 5, "10"))
			gw := &mockGateway{}
			svc := newService(t, st, gw)

			_, err := svc.Checkout(context.Background(), buyer, req("10", items...))

			var iqErr *InvalidQuantityError
			require.ErrorAs(t, err, &iqErr)
			assert.Equal(t, "p1", iqErr.ProductID)
			assert.Equal(t, 5, st.Stock("p1"))
		})
	}
}

func TestCheckout_InvalidTotal(t *testing.T) {
	svc := newService(t, newStore(product("p1", 5, "10")), &mockGateway{})

	_, err := svc.Checkout(context.Background(), buyer, req("0", LineItem{ProductID: "p1", Quantity: 1}))
	require.ErrorIs(t, err, ErrInvalidTotal)
}

func TestCheckout_ReservesStockAndCreatesPendingOrder(t *testing.T) {
	st := newStore(product("p1", 5, "10.00"))
	gw := &mockGateway{}
	pub := &mockPublisher{}
	cache := &mockCache{}
	svc := newService(t, st, gw, WithPublisher(pub), WithStatusCache(cache))

	res, err := svc.Checkout(context.Background(), buyer, req("50.00", LineItem{ProductID: "p1", Quantity: 5}))
	require.NoError(t, err)

	assert.Equal(t, 0, st.Stock("p1"))
	assert.Equal(t, order.StatusPending, res.Order.Status)
	assert.Equal(t, "u1", res.Order.UserID)
	assert.Equal(t, "addr-1", res.Order.AddressID)
	assert.Equal(t, "token-"+res.Order.ID, res.Transaction.Token)

	stored := st.Orders()
	require.Len(t, stored, 1)
	assert.Equal(t, res.Order.ID, stored[0].ID)
	require.Len(t, stored[0].Items, 1)
	assert.Equal(t, 5, stored[0].Items[0].Quantity)

	require.Len(t, pub.events, 1)
	assert.Equal(t, order.EventPlaced, pub.events[0].Type)
	snap, ok, _ := cache.Get(context.Background(), res.Order.ID)
	require.True(t, ok)
	assert.Equal(t, order.StatusPending, snap.Status)
}

func TestCheckout_InsufficientStockAfterSellOut(t *testing.T) {
	st := newStore(product("p1", 5, "10.00"))
	svc := newService(t, st, &mockGateway{})

	_, err := svc.Checkout(context.Background(), buyer, req("50", LineItem{ProductID: "p1", Quantity: 5}))
	require.NoError(t, err)

	_, err = svc.Checkout(context.Background(), buyer, req("10", LineItem{ProductID: "p1", Quantity: 1}))
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, 1, isErr.Requested)
	assert.Equal(t, 0, isErr.Available)
	assert.Equal(t, 0, st.Stock("p1"))
	assert.Len(t, st.Orders(), 1)
}

func TestCheckout_ProductNotFoundRollsBack(t *testing.T) {
	st := newStore(product("p1", 5, "10.00"))
	gw := &mockGateway{}
	svc := newService(t, st, gw)

	_, err := svc.Checkout(context.Background(), buyer, req("30",
		LineItem{ProductID: "p1", Quantity: 2},
		LineItem{ProductID: "zz-missing", Quantity: 1},
	))

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "zz-missing", pnfErr.ProductID)
	require.ErrorIs(t, err, inventory.ErrProductNotFound)
	assert.Equal(t, 5, st.Stock("p1"))
	assert.Empty(t, st.Orders())
	assert.Empty(t, gw.reqs)
}

func TestCheckout_AddressNotFoundRollsBack(t *testing.T) {
	st := memory.New()
	st.PutProduct(product("p1", 5, "10.00"))
	svc := newService(t, st, &mockGateway{})

	_, err := svc.Checkout(context.Background(), buyer, req("10", LineItem{ProductID: "p1", Quantity: 1}))
	require.ErrorIs(t, err, address.ErrMainAddressNotFound)
	assert.Equal(t, 5, st.Stock("p1"))
	assert.Empty(t, st.Orders())
}

func TestCheckout_TotalBelowSubtotal(t *testing.T) {
	st := newStore(product("p1", 5, "10.00"))
	svc := newService(t, st, &mockGateway{})

	_, err := svc.Checkout(context.Background(), buyer, req("19.99", LineItem{ProductID: "p1", Quantity: 2}))
	require.ErrorIs(t, err, ErrTotalMismatch)
	assert.Equal(t, 5, st.Stock("p1"))
}

func TestCheckout_MergesDuplicatesAndUsesStoredPrices(t *testing.T) {
	st := newStore(product("b", 10, "5.00"), product("a", 10, "2.50"))
	gw := &mockGateway{}
	svc := newService(t, st, gw)

	res, err := svc.Checkout(context.Background(), buyer, req("26.00",
		LineItem{ProductID: "b", Quantity: 1, Price: decimal.RequireFromString("0.01")},
		LineItem{ProductID: "a", Quantity: 2},
		LineItem{ProductID: "b", Quantity: 2},
	))
	require.NoError(t, err)

	require.Len(t, res.Order.Items, 2)
	assert.Equal(t, "a", res.Order.Items[0].ProductID)
	assert.Equal(t, 2, res.Order.Items[0].Quantity)
	assert.Equal(t, "b", res.Order.Items[1].ProductID)
	assert.Equal(t, 3, res.Order.Items[1].Quantity)
	assert.Equal(t, 8, st.Stock("a"))
	assert.Equal(t, 7, st.Stock("b"))

	sent := gw.last()
	assert.Equal(t, res.Order.ID, sent.OrderID)
	assert.True(t, decimal.RequireFromString("26.00").Equal(sent.GrossAmount))
	require.Len(t, sent.Items, 3)
	assert.True(t, decimal.RequireFromString("5.00").Equal(sent.Items[1].Price))
	assert.Equal(t, "shipping", sent.Items[2].ID)
	assert.True(t, decimal.RequireFromString("6.00").Equal(sent.Items[2].Price))

	sum := decimal.Zero
	for _, it := range sent.Items {
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	assert.True(t, sum.Equal(sent.GrossAmount))
	assert.Equal(t, "Jakarta", sent.Customer.City)
	assert.Equal(t, "buyer@example.com", sent.Customer.Email)
}

func TestCheckout_GatewayFailureKeepsPendingOrder(t *testing.T) {
	st := newStore(product("p1", 5, "10.00"))
	gw := &mockGateway{err: errors.Wrap(payment.ErrGateway, "snap unavailable")}
	svc := newService(t, st, gw)

	_, err := svc.Checkout(context.Background(), buyer, req("10", LineItem{ProductID: "p1", Quantity: 1}))

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.ErrorIs(t, err, payment.ErrGateway)
	require.NotEmpty(t, gwErr.OrderID)

	assert.Equal(t, 4, st.Stock("p1"))
	o, err := st.Get(context.Background(), gwErr.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestCheckout_TimeoutPropagates(t *testing.T) {
	svc := newService(t, failingTransactor{err: errors.Wrap(store.ErrTimeout, "lock wait")}, &mockGateway{})

	_, err := svc.Checkout(context.Background(), buyer, req("10", LineItem{ProductID: "p1", Quantity: 1}))
	require.ErrorIs(t, err, store.ErrTimeout)
}

func TestCheckout_ConcurrentNeverOversells(t *testing.T) {
	const (
		stock   = 7
		buyers  = 40
		perUser = 1
	)
	st := newStore(product("p1", stock, "10.00"), product("p2", 100, "1.00"))
	svc := newService(t, st, &mockGateway{})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := []LineItem{{ProductID: "p1", Quantity: perUser}, {ProductID: "p2", Quantity: 1}}
			if i%2 == 0 {
				items[0], items[1] = items[1], items[0]
			}
			_, err := svc.Checkout(context.Background(), buyer, Request{
				Items:       items,
				TotalAmount: decimal.RequireFromString("11.00"),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, inventory.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(stock), succeeded.Load())
	assert.Equal(t, int64(buyers-stock), rejected.Load())
	assert.Equal(t, 0, st.Stock("p1"))
	assert.Equal(t, 100-stock, st.Stock("p2"))
	assert.Len(t, st.Orders(), stock)
}

func TestNormalize_SortsByProductID(t *testing.T) {
	lines, err := normalize([]LineItem{
		{ProductID: "c", Quantity: 1},
		{ProductID: "a", Quantity: 1},
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 4},
	})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{lines[0].ProductID, lines[1].ProductID, lines[2].ProductID})
	assert.Equal(t, 5, lines[0].Quantity)
}
