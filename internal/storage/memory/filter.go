package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// fieldSet описывает, как достать значение поля сущности по его логическому имени.
type fieldSet[T any] map[string]func(T) any

func (fs fieldSet[T]) sortable(field string) bool {
	_, ok := fs[field]
	return ok
}

// selectItems применяет фильтр к items, не меняя исходный срез.
func selectItems[T any](items []T, filter query.Filter, fields fieldSet[T]) ([]T, error) {
	for _, name := range filter.Fields() {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: %q", query.ErrUnknownFilterField, name)
		}
	}

	result := make([]T, 0, len(items))
	for _, item := range items {
		ok, err := matchFilter(filter, func(field string) any { return fields[field](item) })
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, item)
		}
	}
	return result, nil
}

// sortItems сортирует по полю окна, при равенстве по id по возрастанию.
func sortItems[T any](items []T, s query.Sort, fields fieldSet[T]) error {
	get, ok := fields[s.Field]
	if !ok {
		return fmt.Errorf("%w: %q", query.ErrUnknownSortField, s.Field)
	}
	id := fields["id"]

	var cmpErr error
	sort.SliceStable(items, func(i, j int) bool {
		c, err := compareValues(get(items[i]), get(items[j]))
		if err != nil {
			cmpErr = err
			return false
		}
		if c == 0 {
			c, _ = compareValues(id(items[i]), id(items[j]))
			return c < 0
		}
		if s.Direction == query.Desc {
			return c > 0
		}
		return c < 0
	})
	return cmpErr
}

// window вырезает страницу из уже отсортированного среза.
func window[T any](items []T, w query.Window) []T {
	if w.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if w.Limit > 0 && w.Offset+w.Limit < end {
		end = w.Offset + w.Limit
	}
	out := make([]T, end-w.Offset)
	copy(out, items[w.Offset:end])
	return out
}

func matchFilter(filter query.Filter, get func(field string) any) (bool, error) {
	for _, group := range filter.Groups {
		groupOK := false
		for _, alt := range group {
			altOK := true
			for _, term := range alt {
				ok, err := matchTerm(term, get(term.Field))
				if err != nil {
					return false, err
				}
				if !ok {
					altOK = false
					break
				}
			}
			if altOK {
				groupOK = true
				break
			}
		}
		if !groupOK {
			return false, nil
		}
	}
	return true, nil
}

func matchTerm(term query.Term, value any) (bool, error) {
	switch term.Op {
	case query.OpIn:
		for _, candidate := range term.Values {
			c, err := compareValues(value, candidate)
			if err != nil {
				return false, err
			}
			if c == 0 {
				return true, nil
			}
		}
		return false, nil
	case query.OpContains:
		s, ok := value.(string)
		sub, subOK := term.Value().(string)
		if !ok || !subOK {
			return false, fmt.Errorf("%w: contains on %q", query.ErrBadFilterValue, term.Field)
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	case query.OpEq, query.OpGTE, query.OpLTE:
		c, err := compareValues(value, term.Value())
		if err != nil {
			return false, err
		}
		switch term.Op {
		case query.OpEq:
			return c == 0, nil
		case query.OpGTE:
			return c >= 0, nil
		default:
			return c <= 0, nil
		}
	default:
		return false, fmt.Errorf("%w: operator %q", query.ErrBadFilterValue, term.Op)
	}
}

// compareValues сравнивает значение поля с операндом фильтра.
// Целые приводятся к int64, целое сравнивается с decimal через decimal.
func compareValues(a, b any) (int, error) {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			switch {
			case ai < bi:
				return -1, nil
			case ai > bi:
				return 1, nil
			}
			return 0, nil
		}
		if bd, ok := b.(decimal.Decimal); ok {
			return decimal.NewFromInt(ai).Cmp(bd), nil
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case decimal.Decimal:
		if bv, ok := b.(decimal.Decimal); ok {
			return av.Cmp(bv), nil
		}
		if bi, ok := asInt64(b); ok {
			return av.Cmp(decimal.NewFromInt(bi)), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			}
			return 1, nil
		}
	}

	return 0, fmt.Errorf("%w: cannot compare %T with %T", query.ErrBadFilterValue, a, b)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
