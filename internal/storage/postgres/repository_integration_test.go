package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

func createProducts(t *testing.T, repo domain.ProductRepository, products ...domain.Product) []domain.Product {
	t.Helper()
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		saved, err := repo.Create(context.Background(), p)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func TestProductRepository_PostgresPaging(t *testing.T) {
	store := openMigratedStore(t)
	repo := NewProductRepository(store)
	ctx := context.Background()

	createProducts(t, repo,
		domain.Product{Name: "Phone X", Price: decimal.RequireFromString("150.00"), StockCount: 3},
		domain.Product{Name: "Phone Mini", Price: decimal.RequireFromString("90.00"), StockCount: 10},
		domain.Product{Name: "Laptop", Price: decimal.RequireFromString("200.00"), StockCount: 0},
		domain.Product{Name: "100% cotton", Price: decimal.RequireFromString("15.00"), StockCount: 7},
	)

	from := decimal.RequireFromString("100")
	page, err := query.GetPage[domain.Product](ctx, repo,
		query.Pageable{Page: 1, Size: 1, Sort: "price,desc"},
		domain.ProductPredicate{PriceFrom: &from}.Filter(),
	)
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, "Laptop", page.Content[0].Name)

	page, err = query.GetPage[domain.Product](ctx, repo, query.DefaultPageable(), domain.ProductPredicate{NameLike: "0%"}.Filter())
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total, "percent sign is matched literally")

	page, err = query.GetPage[domain.Product](ctx, repo, query.Pageable{Page: 5, Size: 10}, query.Filter{})
	require.NoError(t, err)
	require.EqualValues(t, 4, page.Total)
	require.Empty(t, page.Content)
}

func TestProductRepository_PostgresCRUDAndImages(t *testing.T) {
	store := openMigratedStore(t)
	products := NewProductRepository(store)
	images := NewProductImageRepository(store)
	ctx := context.Background()

	p := createProducts(t, products, domain.Product{Name: "Chair", Price: decimal.NewFromInt(40), StockCount: 2})[0]

	first, err := images.Add(ctx, domain.ProductImage{ProductID: p.ID, URL: "/1.png", SortOrder: 2})
	require.NoError(t, err)
	require.True(t, first.IsMain)
	second, err := images.Add(ctx, domain.ProductImage{ProductID: p.ID, URL: "/2.png", SortOrder: 1, IsMain: true})
	require.NoError(t, err)
	require.True(t, second.IsMain)

	got, err := products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 2)
	require.Equal(t, second.ID, got.Images[0].ID)
	main, _ := domain.MainImage(got.Images)
	require.Equal(t, second.ID, main.ID)

	require.NoError(t, images.Delete(ctx, second.ID))
	promoted, err := images.Get(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, promoted.IsMain)

	p.StockCount = 9
	p.Name = "Chair v2"
	updated, err := products.Update(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 9, updated.StockCount)
	require.Equal(t, "Chair v2", updated.Name)

	require.NoError(t, products.Delete(ctx, p.ID))
	_, err = products.Get(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.ErrorIs(t, products.Delete(ctx, p.ID), domain.ErrProductNotFound)
}

func TestUserRepository_PostgresDuplicateEmail(t *testing.T) {
	store := openMigratedStore(t)
	users := NewUserRepository(store)
	ctx := context.Background()

	_, err := users.Create(ctx, domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", Role: domain.RoleUser, IsActive: true})
	require.NoError(t, err)
	_, err = users.Create(ctx, domain.User{Username: "alice", Email: "Alice@Example.com", PasswordHash: "x", Role: domain.RoleUser})
	require.ErrorIs(t, err, domain.ErrDuplicateEmail)

	found, err := users.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, found.Role)
}

func placeTestOrder(ctx context.Context, placer domain.OrderPlacer, number string, productID int64, qty int) error {
	now := time.Now().UTC()
	return placer.InPlacementTx(ctx, now, func(tx domain.PlacementTx) error {
		if _, err := tx.InsertOrder(ctx, domain.Order{
			OrderNumber:     number,
			UserID:          1,
			Status:          domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			PaymentMethod:   domain.PaymentMethodCard,
			ShippingAddress: "Main st. 1",
			Total:           decimal.NewFromInt(int64(qty)),
			Lines:           []domain.OrderLine{{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(1)}},
			CreatedAt:       now,
		}); err != nil {
			return err
		}
		if err := tx.DecrementStock(ctx, productID, qty, now); err != nil {
			return err
		}
		return tx.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: number, EventType: "order.placed", Payload: []byte(`{}`)})
	})
}

func TestPlacementTx_PostgresRollbackOnInsufficientStock(t *testing.T) {
	store := openMigratedStore(t)
	products := NewProductRepository(store)
	orders := NewOrderRepository(store)
	outbox := NewOutboxRepository(store)
	ctx := context.Background()

	p := createProducts(t, products, domain.Product{Name: "Lamp", Price: decimal.NewFromInt(1), StockCount: 2})[0]

	err := placeTestOrder(ctx, orders, "ORD-20260101-001", p.ID, 3)
	stockErr, ok := domain.IsInsufficientStock(err)
	require.True(t, ok, "unexpected error: %v", err)
	require.Equal(t, 2, stockErr.Available)
	require.Equal(t, "Lamp", stockErr.ProductName)

	total, err := orders.Count(ctx, query.Filter{})
	require.NoError(t, err)
	require.Zero(t, total)
	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	require.NoError(t, placeTestOrder(ctx, orders, "ORD-20260101-002", p.ID, 2))
	got, err := products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, got.StockCount)

	require.ErrorIs(t, placeTestOrder(ctx, orders, "ORD-20260101-002", p.ID, 0), domain.ErrDuplicateOrderNumber)
	require.ErrorIs(t, products.Delete(ctx, p.ID), domain.ErrProductInUse)
}

func TestPlacementTx_PostgresConcurrentDecrementNeverOversells(t *testing.T) {
	store := openMigratedStore(t)
	products := NewProductRepository(store)
	orders := NewOrderRepository(store)
	ctx := context.Background()

	p := createProducts(t, products, domain.Product{Name: "Last one", Price: decimal.NewFromInt(1), StockCount: 1})[0]

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := range 5 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := placeTestOrder(ctx, orders, domain.FormatOrderNumber(time.Now().UTC(), i+1), p.ID, 1)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			var stockErr *domain.InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, succeeded)
	got, err := products.Get(ctx, p.ID)
	require.NoError(t, err)
	require.Zero(t, got.StockCount)
}

func TestOrderRepository_PostgresGetWithLines(t *testing.T) {
	store := openMigratedStore(t)
	products := NewProductRepository(store)
	orders := NewOrderRepository(store)
	ctx := context.Background()

	p := createProducts(t, products, domain.Product{Name: "Mug", Price: decimal.NewFromInt(5), StockCount: 10})[0]
	require.NoError(t, placeTestOrder(ctx, orders, "ORD-20260101-001", p.ID, 4))

	page, err := query.GetPage[domain.Order](ctx, orders, query.DefaultPageable(), domain.OrderPredicate{OrderNumberLike: "20260101"}.Filter())
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Empty(t, page.Content[0].Lines)

	order, err := orders.Get(ctx, page.Content[0].ID)
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	require.Equal(t, "Mug", order.Lines[0].ProductName)
	require.Equal(t, 4, order.Lines[0].Quantity)

	_, err = orders.Get(ctx, order.ID+100)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openMigratedStore(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "1", EventType: "order.placed", Payload: []byte(`{"id":1}`)})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	second, err := repo.Enqueue(ctx, domain.OutboxMessage{ID: "fixed", AggregateType: "order", AggregateID: "2", EventType: "order.placed", Payload: []byte(`{"id":2}`)})
	require.NoError(t, err)

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, second.ID))
	require.ErrorIs(t, repo.MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())
}

func TestIdempotencyRepository_PostgresFlow(t *testing.T) {
	store := openMigratedStore(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.CreateProcessing(ctx, "key-1", "hash-a", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "key-1", "hash-a", now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing(ctx, "key-1", "hash-b", now.Add(time.Hour))
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "key-1", []byte(`{"ok":true}`), 201))
	got, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.HTTPStatus)

	_, err = repo.CreateProcessing(ctx, "key-old", "hash", now.Add(-time.Minute))
	require.NoError(t, err)
	reused, err := repo.CreateProcessing(ctx, "key-old", "hash-new", now.Add(time.Hour))
	require.NoError(t, err, "expired key can be taken again")
	require.Equal(t, "hash-new", reused.RequestHash)

	_, err = repo.CreateProcessing(ctx, "key-gone", "hash", now.Add(-time.Minute))
	require.NoError(t, err)
	removed, err := repo.DeleteExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}
