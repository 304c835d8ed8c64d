package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/query"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type engineFixture struct {
	store    *memory.Store
	products domain.ProductRepository
	orders   domain.OrderRepository
	engine   *Engine
	registry *prometheus.Registry
	now      time.Time
}

func newEngineFixture(t *testing.T, placer func(domain.OrderPlacer) domain.OrderPlacer) *engineFixture {
	t.Helper()

	f := &engineFixture{
		store:    memory.NewStore(),
		registry: prometheus.NewRegistry(),
		now:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	f.products = memory.NewProductRepository(f.store)
	orderRepo := memory.NewOrderRepository(f.store)
	f.orders = orderRepo

	var p domain.OrderPlacer = orderRepo
	if placer != nil {
		p = placer(orderRepo)
	}

	f.engine = NewEngine(f.products, f.orders, p,
		WithClock(func() time.Time { return f.now }),
		WithMetrics(metrics.NewPlacementMetricsWith(f.registry)),
	)
	return f
}

func (f *engineFixture) seed(t *testing.T, name, price string, stock int) domain.Product {
	t.Helper()

	p, err := f.products.Create(context.Background(), domain.Product{
		Name:       name,
		Price:      decimal.RequireFromString(price),
		StockCount: stock,
	})
	require.NoError(t, err)
	return p
}

func (f *engineFixture) stock(t *testing.T, id int64) int {
	t.Helper()

	p, err := f.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.StockCount
}

// counterValue суммирует все серии счётчика name в registry.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func placeRequest(lines ...LineRequest) PlaceOrderRequest {
	return PlaceOrderRequest{
		UserID:          7,
		Lines:           lines,
		ShippingAddress: "  Lenina 1, Moscow ",
		PaymentMethod:   domain.PaymentMethodCard,
	}
}

func TestEngine_PlaceOrder(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "100", 5)

	view, err := f.engine.PlaceOrder(context.Background(), placeRequest(LineRequest{ProductID: a.ID, Quantity: 3}))
	require.NoError(t, err)

	require.Equal(t, "ORD-20260314-001", view.OrderNumber)
	require.Equal(t, domain.OrderStatusPending, view.Status)
	require.Equal(t, domain.PaymentStatusPending, view.PaymentStatus)
	require.Equal(t, "Lenina 1, Moscow", view.ShippingAddress)
	require.True(t, decimal.RequireFromString("300").Equal(view.Total), "total = %s", view.Total)
	require.Len(t, view.Lines, 1)
	require.Equal(t, "A", view.Lines[0].ProductName)
	require.True(t, decimal.RequireFromString("300").Equal(view.Lines[0].LineTotal))
	require.Equal(t, f.now, view.CreatedAt)

	require.Equal(t, 2, f.stock(t, a.ID))

	pending := f.store.Outbox().AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, EventOrderPlaced, pending[0].EventType)
	require.Equal(t, AggregateOrder, pending[0].AggregateType)

	var event OrderPlacedEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &event))
	require.Equal(t, view.ID, event.OrderID)
	require.Equal(t, view.OrderNumber, event.OrderNumber)
	require.Len(t, event.Lines, 1)
	require.Equal(t, 3, event.Lines[0].Quantity)

	require.Equal(t, 1.0, counterValue(t, f.registry, "storefront_orders_placed_total"))
}

func TestEngine_PlaceOrder_SequentialNumbersPerDay(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "10", 100)
	ctx := context.Background()

	first, err := f.engine.PlaceOrder(ctx, placeRequest(LineRequest{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)
	second, err := f.engine.PlaceOrder(ctx, placeRequest(LineRequest{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)

	f.now = f.now.AddDate(0, 0, 1)
	nextDay, err := f.engine.PlaceOrder(ctx, placeRequest(LineRequest{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)

	require.Equal(t, "ORD-20260314-001", first.OrderNumber)
	require.Equal(t, "ORD-20260314-002", second.OrderNumber)
	require.Equal(t, "ORD-20260315-001", nextDay.OrderNumber)
}

func TestEngine_PlaceOrder_AggregatesDuplicateProducts(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "2.50", 4)
	b := f.seed(t, "B", "1.10", 1)

	view, err := f.engine.PlaceOrder(context.Background(), placeRequest(
		LineRequest{ProductID: a.ID, Quantity: 2},
		LineRequest{ProductID: b.ID, Quantity: 1},
		LineRequest{ProductID: a.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, view.Lines, 3)
	require.Equal(t, "11.1", view.Total.String())
	require.Zero(t, f.stock(t, a.ID))
	require.Zero(t, f.stock(t, b.ID))
}

func TestEngine_PlaceOrder_Rejections(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "100", 2)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*PlaceOrderRequest)
		wantErr error
		kind    domain.Kind
	}{
		{
			name:    "no user",
			mutate:  func(r *PlaceOrderRequest) { r.UserID = 0 },
			wantErr: domain.ErrUserRequired,
			kind:    domain.KindInvalidInput,
		},
		{
			name:    "empty cart",
			mutate:  func(r *PlaceOrderRequest) { r.Lines = nil },
			wantErr: domain.ErrOrderLinesRequired,
			kind:    domain.KindInvalidInput,
		},
		{
			name:    "zero quantity",
			mutate:  func(r *PlaceOrderRequest) { r.Lines[0].Quantity = 0 },
			wantErr: domain.ErrLineQuantityInvalid,
			kind:    domain.KindInvalidInput,
		},
		{
			name:    "unknown payment method",
			mutate:  func(r *PlaceOrderRequest) { r.PaymentMethod = "barter" },
			wantErr: domain.ErrPaymentMethodInvalid,
			kind:    domain.KindInvalidInput,
		},
		{
			name:    "blank address",
			mutate:  func(r *PlaceOrderRequest) { r.ShippingAddress = "   " },
			wantErr: domain.ErrShippingAddressRequired,
			kind:    domain.KindInvalidInput,
		},
		{
			name:    "missing product",
			mutate:  func(r *PlaceOrderRequest) { r.Lines = append(r.Lines, LineRequest{ProductID: 999, Quantity: 1}) },
			wantErr: domain.ErrProductNotFound,
			kind:    domain.KindNotFound,
		},
		{
			name:    "insufficient stock",
			mutate:  func(r *PlaceOrderRequest) { r.Lines[0].Quantity = 3 },
			wantErr: domain.ErrConflict,
			kind:    domain.KindConflict,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := placeRequest(LineRequest{ProductID: a.ID, Quantity: 1})
			tc.mutate(&req)

			_, err := f.engine.PlaceOrder(ctx, req)
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, tc.kind, domain.KindOf(err))
		})
	}

	require.Equal(t, 2, f.stock(t, a.ID))
	total, err := f.orders.Count(ctx, query.Filter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, f.store.Outbox().AllPending())
	require.Equal(t, float64(len(tests)), counterValue(t, f.registry, "storefront_order_placement_failures_total"))
}

func TestEngine_PlaceOrder_InsufficientStockDetails(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "100", 5)

	_, err := f.engine.PlaceOrder(context.Background(), placeRequest(
		LineRequest{ProductID: a.ID, Quantity: 4},
		LineRequest{ProductID: a.ID, Quantity: 2},
	))

	stockErr, ok := domain.IsInsufficientStock(err)
	require.True(t, ok, "unexpected error: %v", err)
	require.Equal(t, a.ID, stockErr.ProductID)
	require.Equal(t, 5, stockErr.Available)
	require.Equal(t, 6, stockErr.Requested)
}

func TestEngine_PlaceOrder_ShortLineRollsBackWholeOrder(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "100", 5)
	b := f.seed(t, "B", "50", 0)

	_, err := f.engine.PlaceOrder(ctx, placeRequest(
		LineRequest{ProductID: a.ID, Quantity: 2},
		LineRequest{ProductID: b.ID, Quantity: 1},
	))
	require.ErrorIs(t, err, domain.ErrConflict)

	stockErr, ok := domain.IsInsufficientStock(err)
	require.True(t, ok, "unexpected error: %v", err)
	require.Equal(t, b.ID, stockErr.ProductID)
	require.Equal(t, "B", stockErr.ProductName)
	require.Equal(t, 0, stockErr.Available)
	require.Equal(t, 1, stockErr.Requested)

	if got := f.stock(t, a.ID); got != 5 {
		t.Fatalf("stock of A changed by a rejected order: %d", got)
	}
	total, err := f.orders.Count(ctx, query.Filter{})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, f.store.Outbox().AllPending())
}

func TestEngine_PlaceOrder_MissingProductsAreListed(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "1", 1)

	_, err := f.engine.PlaceOrder(context.Background(), placeRequest(
		LineRequest{ProductID: 42, Quantity: 1},
		LineRequest{ProductID: a.ID, Quantity: 1},
		LineRequest{ProductID: 17, Quantity: 1},
	))

	var notFound *domain.ProductsNotFoundError
	require.True(t, errors.As(err, &notFound), "unexpected error: %v", err)
	require.Equal(t, []int64{17, 42}, notFound.IDs)
}

// flakyPlacer отдаёт ErrDuplicateOrderNumber первые failures попыток.
type flakyPlacer struct {
	next     domain.OrderPlacer
	mu       sync.Mutex
	failures int
	calls    int
}

func (p *flakyPlacer) InPlacementTx(ctx context.Context, day time.Time, fn func(tx domain.PlacementTx) error) error {
	p.mu.Lock()
	p.calls++
	fail := p.calls <= p.failures
	p.mu.Unlock()

	if fail {
		return domain.ErrDuplicateOrderNumber
	}
	return p.next.InPlacementTx(ctx, day, fn)
}

func TestEngine_PlaceOrder_RetriesDuplicateNumber(t *testing.T) {
	flaky := &flakyPlacer{failures: 2}
	f := newEngineFixture(t, func(next domain.OrderPlacer) domain.OrderPlacer {
		flaky.next = next
		return flaky
	})
	a := f.seed(t, "A", "5", 3)

	view, err := f.engine.PlaceOrder(context.Background(), placeRequest(LineRequest{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)
	require.Equal(t, "ORD-20260314-001", view.OrderNumber)
	require.Equal(t, 3, flaky.calls)
	require.Equal(t, 2.0, counterValue(t, f.registry, "storefront_order_number_retries_total"))
	require.Equal(t, 2, f.stock(t, a.ID))
}

func TestEngine_PlaceOrder_GivesUpAfterMaxAttempts(t *testing.T) {
	flaky := &flakyPlacer{failures: 10}
	f := newEngineFixture(t, func(next domain.OrderPlacer) domain.OrderPlacer {
		flaky.next = next
		return flaky
	})
	a := f.seed(t, "A", "5", 3)

	_, err := f.engine.PlaceOrder(context.Background(), placeRequest(LineRequest{ProductID: a.ID, Quantity: 1}))
	require.ErrorIs(t, err, domain.ErrDuplicateOrderNumber)
	require.Equal(t, domain.KindConflict, domain.KindOf(err))
	require.Equal(t, defaultMaxAttempts, flaky.calls)
	require.Equal(t, 3, f.stock(t, a.ID))
}

func TestEngine_PlaceOrder_ConcurrentNeverOversells(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "10", 3)

	const buyers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  int
		numbers = make(map[string]bool)
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := f.engine.PlaceOrder(context.Background(), placeRequest(LineRequest{ProductID: a.ID, Quantity: 1}))
			if err != nil {
				if _, ok := domain.IsInsufficientStock(err); !ok {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			mu.Lock()
			placed++
			numbers[view.OrderNumber] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 3, placed)
	require.Len(t, numbers, 3)
	require.Zero(t, f.stock(t, a.ID))
}

func TestEngine_GetOrderByID(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "100", 5)
	ctx := context.Background()

	placed, err := f.engine.PlaceOrder(ctx, placeRequest(LineRequest{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)

	got, err := f.engine.GetOrderByID(ctx, placed.ID)
	require.NoError(t, err)
	require.Equal(t, placed, got)

	_, err = f.engine.GetOrderByID(ctx, placed.ID+100)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestEngine_GetOrders(t *testing.T) {
	f := newEngineFixture(t, nil)
	a := f.seed(t, "A", "10", 100)
	ctx := context.Background()

	for _, qty := range []int{1, 5, 3} {
		_, err := f.engine.PlaceOrder(ctx, placeRequest(LineRequest{ProductID: a.ID, Quantity: qty}))
		require.NoError(t, err)
	}
	other := placeRequest(LineRequest{ProductID: a.ID, Quantity: 2})
	other.UserID = 8
	_, err := f.engine.PlaceOrder(ctx, other)
	require.NoError(t, err)

	page, err := f.engine.GetOrders(ctx,
		query.Pageable{Page: 1, Size: 2, Sort: "total,desc"},
		domain.OrderPredicate{UserIDs: []int64{7}},
	)
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Content, 2)
	require.Equal(t, "50", page.Content[0].Total.String())
	require.Equal(t, "30", page.Content[1].Total.String())

	_, err = f.engine.GetOrders(ctx, query.Pageable{Page: 1, Size: 10, Sort: "shippingAddress"}, domain.OrderPredicate{})
	require.ErrorIs(t, err, query.ErrUnknownSortField)
}
