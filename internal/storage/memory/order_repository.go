package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

var orderFields = fieldSet[domain.Order]{
	domain.OrderFieldID:            func(o domain.Order) any { return o.ID },
	domain.OrderFieldOrderNumber:   func(o domain.Order) any { return o.OrderNumber },
	domain.OrderFieldUserID:        func(o domain.Order) any { return o.UserID },
	domain.OrderFieldStatus:        func(o domain.Order) any { return string(o.Status) },
	domain.OrderFieldPaymentStatus: func(o domain.Order) any { return string(o.PaymentStatus) },
	domain.OrderFieldPaymentMethod: func(o domain.Order) any { return string(o.PaymentMethod) },
	domain.OrderFieldTotal:         func(o domain.Order) any { return o.Total },
	domain.OrderFieldCreatedAt:     func(o domain.Order) any { return o.CreatedAt },
}

// orderRepositoryInMemory реализует OrderRepository и OrderPlacer поверх Store.
type orderRepositoryInMemory struct {
	s *Store
}

// NewOrderRepository возвращает репозиторий заказов поверх store.
func NewOrderRepository(s *Store) *orderRepositoryInMemory {
	return &orderRepositoryInMemory{s: s}
}

func (r *orderRepositoryInMemory) Sortable(field string) bool {
	return orderFields.sortable(field)
}

func (r *orderRepositoryInMemory) Count(_ context.Context, filter query.Filter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched, err := selectItems(r.s.orderHeaders(), filter, orderFields)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (r *orderRepositoryInMemory) Find(_ context.Context, filter query.Filter, w query.Window) ([]domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched, err := selectItems(r.s.orderHeaders(), filter, orderFields)
	if err != nil {
		return nil, err
	}
	if err := sortItems(matched, w.Sort, orderFields); err != nil {
		return nil, err
	}
	return window(matched, w), nil
}

// Get возвращает заказ с позициями, подставляя имена товаров.
func (r *orderRepositoryInMemory) Get(_ context.Context, id int64) (domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	lines := make([]domain.OrderLine, len(order.Lines))
	for i, line := range order.Lines {
		line.ProductName = r.s.products[line.ProductID].Name
		lines[i] = line
	}
	order.Lines = lines
	return order, nil
}

// InPlacementTx выполняет fn под эксклюзивной блокировкой store.
// Изменения копятся в транзакции и применяются только если fn вернула nil.
// Внутри fn нельзя вызывать другие репозитории этого store.
func (r *orderRepositoryInMemory) InPlacementTx(ctx context.Context, _ time.Time, fn func(tx domain.PlacementTx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &placementTx{
		s:         r.s,
		decrement: make(map[int64]int),
		touchedAt: make(map[int64]time.Time),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit(ctx)
	return nil
}

// placementTx накапливает изменения до commit.
type placementTx struct {
	s         *Store
	orders    []domain.Order
	decrement map[int64]int
	touchedAt map[int64]time.Time
	outbox    []domain.OutboxMessage
}

func (tx *placementTx) CountOrdersCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	count := 0
	inRange := func(t time.Time) bool { return !t.Before(from) && t.Before(to) }
	for _, order := range tx.s.orders {
		if inRange(order.CreatedAt) {
			count++
		}
	}
	for _, order := range tx.orders {
		if inRange(order.CreatedAt) {
			count++
		}
	}
	return count, nil
}

func (tx *placementTx) InsertOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	for _, existing := range tx.s.orders {
		if existing.OrderNumber == order.OrderNumber {
			return domain.Order{}, domain.ErrDuplicateOrderNumber
		}
	}
	for _, staged := range tx.orders {
		if staged.OrderNumber == order.OrderNumber {
			return domain.Order{}, domain.ErrDuplicateOrderNumber
		}
	}

	tx.s.lastOrderID++
	order.ID = tx.s.lastOrderID
	order.UpdatedAt = order.CreatedAt

	lines := make([]domain.OrderLine, len(order.Lines))
	for i, line := range order.Lines {
		tx.s.lastLineID++
		line.ID = tx.s.lastLineID
		line.OrderID = order.ID
		line.CreatedAt = order.CreatedAt
		line.ProductName = ""
		lines[i] = line
	}
	order.Lines = lines

	tx.orders = append(tx.orders, order)
	return order, nil
}

func (tx *placementTx) DecrementStock(_ context.Context, productID int64, qty int, at time.Time) error {
	product, ok := tx.s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	available := product.StockCount - tx.decrement[productID]
	if available < qty {
		return &domain.InsufficientStockError{
			ProductID:   productID,
			ProductName: product.Name,
			Available:   available,
			Requested:   qty,
		}
	}

	tx.decrement[productID] += qty
	tx.touchedAt[productID] = at
	return nil
}

func (tx *placementTx) Enqueue(_ context.Context, msg domain.OutboxMessage) error {
	tx.outbox = append(tx.outbox, msg)
	return nil
}

func (tx *placementTx) commit(ctx context.Context) {
	for productID, qty := range tx.decrement {
		product := tx.s.products[productID]
		product.StockCount -= qty
		product.UpdatedAt = tx.touchedAt[productID]
		tx.s.products[productID] = product
	}
	for _, order := range tx.orders {
		tx.s.orders[order.ID] = order
	}
	for _, msg := range tx.outbox {
		// in-memory outbox не возвращает ошибок на Enqueue.
		_, _ = tx.s.outbox.Enqueue(ctx, msg)
	}
}

// orderHeaders возвращает заказы без позиций. Вызывается под блокировкой.
func (s *Store) orderHeaders() []domain.Order {
	items := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		o.Lines = nil
		items = append(items, o)
	}
	return items
}

var (
	_ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
	_ domain.OrderPlacer     = (*orderRepositoryInMemory)(nil)
)
