package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// orderNumberLockClass: первый ключ pg_advisory_xact_lock для нумерации заказов, второй ключ равен номеру дня.
const orderNumberLockClass = int32(0x4f524400)

var orderColumns = columns{
	domain.OrderFieldID:            "o.id",
	domain.OrderFieldOrderNumber:   "o.order_number",
	domain.OrderFieldUserID:        "o.user_id",
	domain.OrderFieldStatus:        "o.status",
	domain.OrderFieldPaymentStatus: "o.payment_status",
	domain.OrderFieldPaymentMethod: "o.payment_method",
	domain.OrderFieldTotal:         "o.total",
	domain.OrderFieldCreatedAt:     "o.created_at",
}

const selectOrders = `SELECT o.id, o.order_number, o.user_id, o.status, o.payment_status, o.payment_method,
	o.shipping_address, o.comment, o.total, o.created_at, o.updated_at FROM orders o`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository и OrderPlacer.
func NewOrderRepository(store *Store) *orderRepository {
	return &orderRepository{db: store.DB()}
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                              domain.Order
		status, paymentStatus, payment string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &status, &paymentStatus, &payment,
		&o.ShippingAddress, &o.Comment, &o.Total, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.PaymentMethod = domain.PaymentMethod(payment)
	return o, nil
}

func (r *orderRepository) Sortable(field string) bool {
	return orderColumns.sortable(field)
}

func (r *orderRepository) Count(ctx context.Context, filter query.Filter) (int64, error) {
	return countWhere(ctx, r.db, "orders o", filter, orderColumns)
}

func (r *orderRepository) Find(ctx context.Context, filter query.Filter, w query.Window) ([]domain.Order, error) {
	return findWhere(ctx, r.db, selectOrders, filter, w, orderColumns, scanOrder)
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrders+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.order_id, l.product_id, l.quantity, l.unit_price, l.created_at, COALESCE(p.name, '')
		FROM order_lines l
		LEFT JOIN products p ON p.id = l.product_id
		WHERE l.order_id = $1
		ORDER BY l.id
	`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	order.Lines, err = collect(rows, func(row rowScanner) (domain.OrderLine, error) {
		var l domain.OrderLine
		if err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.CreatedAt, &l.ProductName); err != nil {
			return domain.OrderLine{}, fmt.Errorf("scan order line: %w", err)
		}
		return l, nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// InPlacementTx открывает транзакцию и берёт транзакционную advisory-блокировку дня,
// так что подсчёт заказов за день и вставка нового номера не пересекаются между процессами.
func (r *orderRepository) InPlacementTx(ctx context.Context, day time.Time, fn func(tx domain.PlacementTx) error) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		dayKey := int32(day.Unix() / int64(24*time.Hour/time.Second))
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, orderNumberLockClass, dayKey); err != nil {
			return fmt.Errorf("lock order numbering: %w", err)
		}
		return fn(&placementTx{tx: tx})
	})
}

type placementTx struct {
	tx *sql.Tx
}

func (p *placementTx) CountOrdersCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := p.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE created_at >= $1 AND created_at < $2`, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders of day: %w", err)
	}
	return n, nil
}

func (p *placementTx) InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	order.UpdatedAt = order.CreatedAt
	err := p.tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, user_id, status, payment_status, payment_method,
			shipping_address, comment, total, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		order.OrderNumber, order.UserID, string(order.Status), string(order.PaymentStatus), string(order.PaymentMethod),
		order.ShippingAddress, order.Comment, order.Total, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrDuplicateOrderNumber
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	lines := make([]domain.OrderLine, len(order.Lines))
	for i, line := range order.Lines {
		line.OrderID = order.ID
		line.CreatedAt = order.CreatedAt
		err := p.tx.QueryRowContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.CreatedAt).Scan(&line.ID)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.Order{}, &domain.ProductsNotFoundError{IDs: []int64{line.ProductID}}
			}
			return domain.Order{}, fmt.Errorf("insert order line: %w", err)
		}
		lines[i] = line
	}
	order.Lines = lines
	return order, nil
}

// DecrementStock списывает остаток условным UPDATE. Если строка не обновилась,
// перечитывает товар, чтобы отличить нехватку остатка от удалённого товара.
func (p *placementTx) DecrementStock(ctx context.Context, productID int64, qty int, at time.Time) error {
	res, err := p.tx.ExecContext(ctx, `
		UPDATE products
		SET stock_count = stock_count - $1, updated_at = $3
		WHERE id = $2 AND stock_count >= $1
	`, qty, productID, at)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement stock rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var (
		name      string
		available int
	)
	err = p.tx.QueryRowContext(ctx, `SELECT name, stock_count FROM products WHERE id = $1`, productID).Scan(&name, &available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("read stock: %w", err)
	}
	return &domain.InsufficientStockError{
		ProductID:   productID,
		ProductName: name,
		Available:   available,
		Requested:   qty,
	}
}

func (p *placementTx) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := insertOutbox(ctx, p.tx, msg)
	return err
}

// insertOutbox пишет событие в outbox_messages, генерируя id при необходимости.
func insertOutbox(ctx context.Context, q queryer, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}
	return msg, nil
}

var (
	_ domain.OrderRepository = (*orderRepository)(nil)
	_ domain.OrderPlacer     = (*orderRepository)(nil)
)
