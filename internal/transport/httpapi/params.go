package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// params разбирает query-параметры и запоминает первую ошибку.
// Списочные параметры принимаются как повторы (?id=1&id=2) и через запятую (?id=1,2).
type params struct {
	c   *gin.Context
	err error
}

func newParams(c *gin.Context) *params {
	return &params{c: c}
}

func (p *params) fail(name, raw string, cause error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q: %v", domain.ErrFilterValueInvalid, name, raw, cause)
	}
}

func (p *params) values(name string) []string {
	var out []string
	for _, raw := range p.c.QueryArray(name) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func (p *params) str(name string) string {
	return strings.TrimSpace(p.c.Query(name))
}

func (p *params) int64s(name string) []int64 {
	raw := p.values(name)
	if len(raw) == 0 {
		return nil
	}
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.fail(name, v, err)
			return nil
		}
		out = append(out, n)
	}
	return out
}

func (p *params) ints(name string) []int {
	ids := p.int64s(name)
	if ids == nil {
		return nil
	}
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out
}

func (p *params) intPtr(name string) *int {
	raw := p.str(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(name, raw, err)
		return nil
	}
	return &n
}

func (p *params) intOr(name string, def int) int {
	if v := p.intPtr(name); v != nil {
		return *v
	}
	return def
}

func (p *params) boolPtr(name string) *bool {
	raw := p.str(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(name, raw, err)
		return nil
	}
	return &b
}

func (p *params) amount(name string) *decimal.Decimal {
	raw := p.str(name)
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.fail(name, raw, err)
		return nil
	}
	return &d
}

// timestamp принимает RFC 3339 или дату в формате 2006-01-02 (начало дня UTC).
func (p *params) timestamp(name string) *time.Time {
	raw := p.str(name)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		p.fail(name, raw, err)
		return nil
	}
	return &t
}

func (p *params) pageable() query.Pageable {
	return query.Pageable{
		Page: p.intOr("page", query.DefaultPage),
		Size: p.intOr("size", query.DefaultSize),
		Sort: p.str("sort"),
	}
}

func stringsAs[S ~string](values []string) []S {
	if values == nil {
		return nil
	}
	out := make([]S, len(values))
	for i, v := range values {
		out[i] = S(v)
	}
	return out
}

func productPredicate(p *params) domain.ProductPredicate {
	return domain.ProductPredicate{
		IDs:             p.int64s("id"),
		Names:           p.c.QueryArray("name"),
		NameLike:        p.str("nameLike"),
		Descriptions:    p.c.QueryArray("description"),
		DescriptionLike: p.str("descriptionLike"),
		Counts:          p.ints("stockCount"),
		CountFrom:       p.intPtr("stockCountFrom"),
		CountTo:         p.intPtr("stockCountTo"),
		PriceFrom:       p.amount("priceFrom"),
		PriceTo:         p.amount("priceTo"),
		CreatedFrom:     p.timestamp("createdFrom"),
		CreatedTo:       p.timestamp("createdTo"),
		UpdatedFrom:     p.timestamp("updatedFrom"),
		UpdatedTo:       p.timestamp("updatedTo"),
	}
}

func userPredicate(p *params) domain.UserPredicate {
	return domain.UserPredicate{
		IDs:          p.int64s("id"),
		Emails:       p.values("email"),
		EmailLike:    p.str("emailLike"),
		Usernames:    p.values("username"),
		UsernameLike: p.str("usernameLike"),
		Roles:        stringsAs[domain.Role](p.values("role")),
		IsActive:     p.boolPtr("isActive"),
		CreatedFrom:  p.timestamp("createdFrom"),
		CreatedTo:    p.timestamp("createdTo"),
	}
}

func orderPredicate(p *params) domain.OrderPredicate {
	return domain.OrderPredicate{
		IDs:             p.int64s("id"),
		UserIDs:         p.int64s("userId"),
		OrderNumbers:    p.values("orderNumber"),
		OrderNumberLike: p.str("orderNumberLike"),
		Statuses:        stringsAs[domain.OrderStatus](p.values("status")),
		PaymentStatuses: stringsAs[domain.PaymentStatus](p.values("paymentStatus")),
		PaymentMethods:  stringsAs[domain.PaymentMethod](p.values("paymentMethod")),
		TotalFrom:       p.amount("totalFrom"),
		TotalTo:         p.amount("totalTo"),
		CreatedFrom:     p.timestamp("createdFrom"),
		CreatedTo:       p.timestamp("createdTo"),
	}
}

func pathID(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", domain.ErrInvalidInput, name, raw)
	}
	return id, nil
}
