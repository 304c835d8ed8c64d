package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type countingTx struct {
	domain.PlacementTx
	count    int
	from, to time.Time
}

func (tx *countingTx) CountOrdersCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	tx.from, tx.to = from, to
	return tx.count, nil
}

func TestNumberGenerator_Next(t *testing.T) {
	tx := &countingTx{count: 41}
	gen := NewNumberGenerator(nil)
	now := time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)

	number, err := gen.Next(context.Background(), tx, now)
	require.NoError(t, err)
	require.Equal(t, "ORD-20260102-042", number)
	require.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), tx.from)
	require.Equal(t, 24*time.Hour, tx.to.Sub(tx.from))
}

func TestNumberGenerator_DayFollowsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	gen := NewNumberGenerator(loc)

	// 22:30 UTC уже следующие сутки по UTC+3.
	now := time.Date(2026, 1, 2, 22, 30, 0, 0, time.UTC)
	number, err := gen.Next(context.Background(), &countingTx{}, now)
	require.NoError(t, err)
	require.Equal(t, "ORD-20260103-001", number)
}

func TestNumberGenerator_SequenceBeyondThreeDigits(t *testing.T) {
	number, err := NewNumberGenerator(time.UTC).Next(context.Background(), &countingTx{count: 1234}, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "ORD-20260701-1235", number)

	day, seq, ok := domain.ParseOrderNumber(number)
	require.True(t, ok)
	require.Equal(t, "20260701", day)
	require.Equal(t, 1235, seq)
}
