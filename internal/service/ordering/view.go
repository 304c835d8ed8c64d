package ordering

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderView — заказ с позициями в виде, который отдаётся клиенту.
type OrderView struct {
	ID              int64                `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	UserID          int64                `json:"userId"`
	Status          domain.OrderStatus   `json:"status"`
	PaymentStatus   domain.PaymentStatus `json:"paymentStatus"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
	ShippingAddress string               `json:"shippingAddress"`
	Comment         string               `json:"comment,omitempty"`
	Total           decimal.Decimal      `json:"total"`
	Lines           []OrderLineView      `json:"lines"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

// OrderLineView дополняет позицию именем товара и суммой по строке.
type OrderLineView struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// OrderSummaryView используется в списке заказов, позиции не загружаются.
type OrderSummaryView struct {
	ID            int64                `json:"id"`
	OrderNumber   string               `json:"orderNumber"`
	UserID        int64                `json:"userId"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	Total         decimal.Decimal      `json:"total"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func toOrderView(o domain.Order) OrderView {
	lines := make([]OrderLineView, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = OrderLineView{
			ID:          l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal(),
		}
	}
	return OrderView{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentMethod:   o.PaymentMethod,
		ShippingAddress: o.ShippingAddress,
		Comment:         o.Comment,
		Total:           o.Total,
		Lines:           lines,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toSummaryView(o domain.Order) OrderSummaryView {
	return OrderSummaryView{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		Total:         o.Total,
		CreatedAt:     o.CreatedAt,
	}
}
