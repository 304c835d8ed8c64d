package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// OrderStatus описывает жизненный цикл заказа. Здесь заказ всегда создаётся в pending,
// переходы выполняет внешний исполнитель.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// PaymentStatus — статус оплаты, хранится как есть и не меняется бизнес-логикой.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Valid проверяет, что статус оплаты поддерживается.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentMethod — способ оплаты из закрытого списка.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodOnline PaymentMethod = "online"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodOnline:
		return true
	default:
		return false
	}
}

// Имена полей заказа для фильтрации и сортировки.
const (
	OrderFieldID            = "id"
	OrderFieldOrderNumber   = "orderNumber"
	OrderFieldUserID        = "userId"
	OrderFieldStatus        = "status"
	OrderFieldPaymentStatus = "paymentStatus"
	OrderFieldPaymentMethod = "paymentMethod"
	OrderFieldTotal         = "total"
	OrderFieldCreatedAt     = "createdAt"
)

// OrderLine — позиция заказа. Создаётся вместе с заказом и больше не меняется.
type OrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	// UnitPrice: цена товара на момент размещения заказа.
	UnitPrice decimal.Decimal
	CreatedAt time.Time
	// ProductName заполняется при чтении заказа.
	ProductName string
}

// LineTotal возвращает UnitPrice * Quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order агрегирует заголовок заказа и его позиции.
type Order struct {
	ID              int64
	OrderNumber     string
	UserID          int64
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	ShippingAddress string
	Comment         string
	Total           decimal.Decimal
	Lines           []OrderLine
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LinesTotal пересчитывает сумму по позициям.
func (o Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// OrderPredicate фильтрует список заказов.
type OrderPredicate struct {
	IDs             []int64
	UserIDs         []int64
	OrderNumbers    []string
	OrderNumberLike string
	Statuses        []OrderStatus
	PaymentStatuses []PaymentStatus
	PaymentMethods  []PaymentMethod
	TotalFrom       *decimal.Decimal
	TotalTo         *decimal.Decimal
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}

// Filter переводит предикат в условия хранилища.
func (p OrderPredicate) Filter() query.Filter {
	return query.Filter{}.
		Where(query.In(OrderFieldID, p.IDs)).
		Where(query.In(OrderFieldUserID, p.UserIDs)).
		Where(query.In(OrderFieldOrderNumber, p.OrderNumbers), query.Contains(OrderFieldOrderNumber, p.OrderNumberLike)).
		Where(query.In(OrderFieldStatus, stringsOf(p.Statuses))).
		Where(query.In(OrderFieldPaymentStatus, stringsOf(p.PaymentStatuses))).
		Where(query.In(OrderFieldPaymentMethod, stringsOf(p.PaymentMethods))).
		Where(query.Between(OrderFieldTotal, p.TotalFrom, p.TotalTo)).
		Where(query.Between(OrderFieldCreatedAt, p.CreatedFrom, p.CreatedTo))
}

func stringsOf[S ~string](values []S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

const orderNumberPrefix = "ORD-"

var orderNumberPattern = regexp.MustCompile(`^ORD-(\d{8})-(\d{3,})$`)

// FormatOrderNumber собирает номер вида ORD-YYYYMMDD-NNN. NNN дополняется нулями до трёх цифр.
func FormatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s-%03d", orderNumberPrefix, day.Format("20060102"), seq)
}

// ParseOrderNumber разбирает номер заказа на дату (YYYYMMDD) и порядковый номер.
func ParseOrderNumber(number string) (string, int, bool) {
	m := orderNumberPattern.FindStringSubmatch(strings.TrimSpace(number))
	if m == nil {
		return "", 0, false
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], seq, true
}

// StartOfDay возвращает начало суток в указанной зоне.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
