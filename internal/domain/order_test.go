package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

func TestFormatOrderNumber(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)
	require.Equal(t, "ORD-20260307-001", domain.FormatOrderNumber(day, 1))
	require.Equal(t, "ORD-20260307-042", domain.FormatOrderNumber(day, 42))
	require.Equal(t, "ORD-20260307-1000", domain.FormatOrderNumber(day, 1000))

	date, seq, ok := domain.ParseOrderNumber("ORD-20260307-042")
	require.True(t, ok)
	require.Equal(t, "20260307", date)
	require.Equal(t, 42, seq)

	_, _, ok = domain.ParseOrderNumber("ORD-2026037-1")
	require.False(t, ok)
}

func TestStartOfDay(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*60*60)
	at := time.Date(2026, 1, 1, 22, 30, 0, 0, time.UTC)

	start := domain.StartOfDay(at, loc)
	require.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, loc), start)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), domain.StartOfDay(at, nil))
}

func TestOrder_LinesTotal(t *testing.T) {
	t.Parallel()

	order := domain.Order{Lines: []domain.OrderLine{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("100.10")},
		{Quantity: 3, UnitPrice: decimal.RequireFromString("0.30")},
	}}
	require.True(t, decimal.RequireFromString("201.10").Equal(order.LinesTotal()))
}

func TestPaymentMethod_Valid(t *testing.T) {
	t.Parallel()

	for _, m := range []domain.PaymentMethod{domain.PaymentMethodCard, domain.PaymentMethodCash, domain.PaymentMethodOnline} {
		require.True(t, m.Valid(), m)
	}
	require.False(t, domain.PaymentMethod("crypto").Valid())
	require.False(t, domain.PaymentMethod("").Valid())
}

func TestProductPredicate_Filter(t *testing.T) {
	t.Parallel()

	from, to := 3, 9
	priceFrom := decimal.NewFromInt(100)
	pred := domain.ProductPredicate{
		NameLike:  "phone",
		Counts:    []int{1, 2},
		CountFrom: &from,
		CountTo:   &to,
		PriceFrom: &priceFrom,
	}

	filter := pred.Filter()
	require.Len(t, filter.Groups, 3)

	name := filter.Groups[0]
	require.Len(t, name, 1)
	require.Equal(t, query.OpContains, name[0][0].Op)

	count := filter.Groups[1]
	require.Len(t, count, 2, "set and range of the same field are OR alternatives")
	require.Equal(t, query.OpIn, count[0][0].Op)
	require.Len(t, count[1], 2)
	require.Equal(t, query.OpGTE, count[1][0].Op)
	require.Equal(t, query.OpLTE, count[1][1].Op)

	price := filter.Groups[2]
	require.Len(t, price, 1)
	require.Len(t, price[0], 1)
	require.Equal(t, domain.ProductFieldPrice, price[0][0].Field)

	require.True(t, domain.ProductPredicate{}.Filter().Empty())
}

func TestUserPredicate_Filter(t *testing.T) {
	t.Parallel()

	active := true
	filter := domain.UserPredicate{
		Roles:    []domain.Role{domain.RoleAdmin},
		IsActive: &active,
	}.Filter()

	require.Len(t, filter.Groups, 2)
	require.Equal(t, []any{"admin"}, filter.Groups[0][0][0].Values)
	require.Equal(t, query.OpEq, filter.Groups[1][0][0].Op)
	require.Equal(t, true, filter.Groups[1][0][0].Value())
}

func TestMainImage(t *testing.T) {
	t.Parallel()

	_, ok := domain.MainImage(nil)
	require.False(t, ok)

	img, ok := domain.MainImage([]domain.ProductImage{{ID: 1}, {ID: 2, IsMain: true}})
	require.True(t, ok)
	require.EqualValues(t, 2, img.ID)

	img, _ = domain.MainImage([]domain.ProductImage{{ID: 5}, {ID: 6}})
	require.EqualValues(t, 5, img.ID)
}
