package ordering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

const defaultMaxAttempts = 3

// PlaceOrderRequest описывает корзину пользователя и данные доставки.
type PlaceOrderRequest struct {
	UserID          int64
	Lines           []LineRequest
	ShippingAddress string
	PaymentMethod   domain.PaymentMethod
	Comment         string
}

// Validate проверяет запрос до обращения к хранилищу.
func (r PlaceOrderRequest) Validate() error {
	if r.UserID <= 0 {
		return domain.ErrUserRequired
	}
	if len(r.Lines) == 0 {
		return domain.ErrOrderLinesRequired
	}
	for i, line := range r.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d has quantity %d", domain.ErrLineQuantityInvalid, i+1, line.Quantity)
		}
	}
	if !r.PaymentMethod.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrPaymentMethodInvalid, r.PaymentMethod)
	}
	if strings.TrimSpace(r.ShippingAddress) == "" {
		return domain.ErrShippingAddressRequired
	}
	return nil
}

// Engine размещает заказы и отдаёт их представления.
type Engine struct {
	guard       *InventoryGuard
	numbers     *NumberGenerator
	orders      domain.OrderRepository
	placer      domain.OrderPlacer
	metrics     *metrics.PlacementMetrics
	logger      *log.Entry
	now         func() time.Time
	maxAttempts int
}

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics включает метрики размещения.
func WithMetrics(m *metrics.PlacementMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation задаёт часовой пояс, в котором считаются сутки для номера заказа.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.numbers = NewNumberGenerator(loc) }
}

// WithMaxAttempts ограничивает число попыток транзакции при занятом номере заказа.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// NewEngine собирает движок размещения заказов.
func NewEngine(products domain.ProductRepository, orders domain.OrderRepository, placer domain.OrderPlacer, opts ...Option) *Engine {
	e := &Engine{
		guard:       NewInventoryGuard(products),
		numbers:     NewNumberGenerator(time.UTC),
		orders:      orders,
		placer:      placer,
		logger:      log.WithField("component", "ordering"),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlaceOrder проверяет корзину, считает сумму и в одной транзакции сохраняет заказ,
// списывает остатки и кладёт событие order.placed в outbox.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (OrderView, error) {
	started := time.Now()

	view, err := e.placeOrder(ctx, req)
	if err != nil {
		e.metrics.RecordFailed(failureReason(err), time.Since(started))
		entry := e.logger.WithError(err).WithField("user_id", req.UserID)
		if domain.KindOf(err) == domain.KindInternal {
			entry.Error("order placement failed")
		} else {
			entry.Info("order placement rejected")
		}
		return OrderView{}, err
	}

	e.metrics.RecordPlaced(len(view.Lines), time.Since(started))
	e.logger.WithFields(log.Fields{
		"order_id":     view.ID,
		"order_number": view.OrderNumber,
		"user_id":      view.UserID,
		"total":        view.Total.String(),
	}).Info("order placed")
	return view, nil
}

func (e *Engine) placeOrder(ctx context.Context, req PlaceOrderRequest) (OrderView, error) {
	if err := req.Validate(); err != nil {
		return OrderView{}, err
	}

	res, err := e.guard.Check(ctx, req.Lines)
	if err != nil {
		return OrderView{}, err
	}

	var placed domain.Order
	for attempt := 1; ; attempt++ {
		placed, err = e.commit(ctx, req, res)
		if !errors.Is(err, domain.ErrDuplicateOrderNumber) {
			break
		}
		if attempt >= e.maxAttempts {
			return OrderView{}, fmt.Errorf("allocate order number after %d attempts: %w", attempt, err)
		}
		e.metrics.RecordNumberRetry()
		e.logger.WithField("attempt", attempt).Warn("order number already taken, retrying placement")
	}
	if err != nil {
		return OrderView{}, err
	}

	stored, err := e.orders.Get(ctx, placed.ID)
	if err != nil {
		return OrderView{}, fmt.Errorf("reload order %d: %w", placed.ID, err)
	}
	return toOrderView(stored), nil
}

// commit выполняет одну попытку транзакции размещения.
func (e *Engine) commit(ctx context.Context, req PlaceOrderRequest, res Reservation) (domain.Order, error) {
	now := e.now().Truncate(time.Microsecond)

	var placed domain.Order
	err := e.placer.InPlacementTx(ctx, e.numbers.Day(now), func(tx domain.PlacementTx) error {
		number, err := e.numbers.Next(ctx, tx, now)
		if err != nil {
			return err
		}

		order, err := tx.InsertOrder(ctx, domain.Order{
			OrderNumber:     number,
			UserID:          req.UserID,
			Status:          domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			PaymentMethod:   req.PaymentMethod,
			ShippingAddress: strings.TrimSpace(req.ShippingAddress),
			Comment:         strings.TrimSpace(req.Comment),
			Total:           res.Total,
			Lines:           append([]domain.OrderLine(nil), res.Lines...),
			CreatedAt:       now,
		})
		if err != nil {
			return err
		}

		for _, productID := range res.productIDs() {
			if err := tx.DecrementStock(ctx, productID, res.Demand[productID], now); err != nil {
				return err
			}
		}

		msg, err := orderPlacedMessage(order)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", EventOrderPlaced, err)
		}
		if err := tx.Enqueue(ctx, msg); err != nil {
			return err
		}

		placed = order
		return nil
	})
	return placed, err
}

// GetOrderByID возвращает заказ с позициями.
func (e *Engine) GetOrderByID(ctx context.Context, id int64) (OrderView, error) {
	order, err := e.orders.Get(ctx, id)
	if err != nil {
		return OrderView{}, err
	}
	return toOrderView(order), nil
}

// GetOrders возвращает страницу заказов, подходящих под предикат.
func (e *Engine) GetOrders(ctx context.Context, pageable query.Pageable, predicate domain.OrderPredicate) (query.Page[OrderSummaryView], error) {
	page, err := query.GetPage(ctx, e.orders, pageable, predicate.Filter())
	if err != nil {
		return query.Page[OrderSummaryView]{}, err
	}
	return query.Map(page, toSummaryView), nil
}

func failureReason(err error) string {
	if _, ok := domain.IsInsufficientStock(err); ok {
		return metrics.ReasonInsufficientStock
	}
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return metrics.ReasonInvalidInput
	case domain.KindNotFound:
		return metrics.ReasonNotFound
	case domain.KindConflict:
		return metrics.ReasonConflict
	default:
		return metrics.ReasonInternal
	}
}
