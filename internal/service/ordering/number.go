package ordering

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// NumberGenerator выдаёт номера вида ORD-YYYYMMDD-NNN, где NNN равно числу заказов за сутки плюс один.
// Сутки считаются в location; вызывать Next нужно внутри транзакции размещения,
// которая сериализует нумерацию в пределах дня.
type NumberGenerator struct {
	location *time.Location
}

// NewNumberGenerator создаёт генератор; nil location означает UTC.
func NewNumberGenerator(location *time.Location) *NumberGenerator {
	if location == nil {
		location = time.UTC
	}
	return &NumberGenerator{location: location}
}

// Day возвращает начало суток, к которым относится момент now.
func (g *NumberGenerator) Day(now time.Time) time.Time {
	return domain.StartOfDay(now, g.location)
}

// Next считает заказы за сутки now и формирует следующий номер.
func (g *NumberGenerator) Next(ctx context.Context, tx domain.PlacementTx, now time.Time) (string, error) {
	start := g.Day(now)
	count, err := tx.CountOrdersCreatedBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return "", fmt.Errorf("count today's orders: %w", err)
	}
	return domain.FormatOrderNumber(start, count+1), nil
}
