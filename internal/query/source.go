package query

import (
	"context"
	"fmt"
)

// Window задаёт сдвиг, лимит и сортировку выборки.
type Window struct {
	Offset int
	Limit  int
	Sort   Sort
}

// Source — хранилище, умеющее считать и выбирать сущности по фильтру.
type Source[T any] interface {
	// Sortable сообщает, можно ли сортировать по полю.
	Sortable(field string) bool
	// Count возвращает число сущностей, подходящих под фильтр.
	Count(ctx context.Context, filter Filter) (int64, error)
	// Find возвращает окно сущностей, подходящих под фильтр.
	Find(ctx context.Context, filter Filter, window Window) ([]T, error)
}

// GetPage проверяет pageable, считает записи и выбирает нужную страницу
// с одним и тем же фильтром.
func GetPage[T any](ctx context.Context, source Source[T], pageable Pageable, filter Filter) (Page[T], error) {
	if err := pageable.Validate(MaxSize); err != nil {
		return Page[T]{}, err
	}

	sort := pageable.SortSpec()
	if !source.Sortable(sort.Field) {
		return Page[T]{}, fmt.Errorf("%w: %q", ErrUnknownSortField, sort.Field)
	}

	total, err := source.Count(ctx, filter)
	if err != nil {
		return Page[T]{}, fmt.Errorf("count: %w", err)
	}

	offset := pageable.Offset()
	if total == 0 || int64(offset) >= total {
		return NewPage[T](nil, total, pageable, sort), nil
	}

	items, err := source.Find(ctx, filter, Window{
		Offset: offset,
		Limit:  pageable.Limit(),
		Sort:   sort,
	})
	if err != nil {
		return Page[T]{}, fmt.Errorf("find: %w", err)
	}

	return NewPage(items, total, pageable, sort), nil
}
