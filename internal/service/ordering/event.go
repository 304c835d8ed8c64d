package ordering

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	// AggregateOrder: тип агрегата в outbox для событий заказа.
	AggregateOrder = "order"
	// EventOrderPlaced публикуется после фиксации транзакции размещения.
	EventOrderPlaced = "order.placed"
)

// OrderPlacedEvent — полезная нагрузка события order.placed.
type OrderPlacedEvent struct {
	OrderID     int64             `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	UserID      int64             `json:"userId"`
	Total       decimal.Decimal   `json:"total"`
	Lines       []PlacedEventLine `json:"lines"`
	PlacedAt    time.Time         `json:"placedAt"`
}

type PlacedEventLine struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func orderPlacedMessage(o domain.Order) (domain.OutboxMessage, error) {
	event := OrderPlacedEvent{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Total:       o.Total,
		Lines:       make([]PlacedEventLine, len(o.Lines)),
		PlacedAt:    o.CreatedAt,
	}
	for i, l := range o.Lines {
		event.Lines[i] = PlacedEventLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return domain.OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   strconv.FormatInt(o.ID, 10),
		EventType:     EventOrderPlaced,
		Payload:       payload,
	}, nil
}
