package query

// Page — срез результатов с метаданными пагинации.
type Page[T any] struct {
	Content       []T       `json:"content"`
	Total         int64     `json:"total"`
	CurrentPage   int       `json:"currentPage"`
	Size          int       `json:"size"`
	TotalPages    int       `json:"totalPages"`
	SortBy        string    `json:"sortBy"`
	SortDirection Direction `json:"sortDirection"`
}

// NewPage собирает страницу. TotalPages = ceil(total/size).
func NewPage[T any](content []T, total int64, pageable Pageable, sort Sort) Page[T] {
	if content == nil {
		content = []T{}
	}

	totalPages := 0
	if pageable.Size > 0 {
		size := int64(pageable.Size)
		totalPages = int((total + size - 1) / size)
	}

	return Page[T]{
		Content:       content,
		Total:         total,
		CurrentPage:   pageable.Page,
		Size:          pageable.Size,
		TotalPages:    totalPages,
		SortBy:        sort.Field,
		SortDirection: sort.Direction,
	}
}

// IsFirst сообщает, что это первая страница.
func (p Page[T]) IsFirst() bool {
	return p.CurrentPage <= 1
}

// IsLast сообщает, что дальше страниц нет.
func (p Page[T]) IsLast() bool {
	return p.CurrentPage >= p.TotalPages
}

// Map поэлементно преобразует содержимое, метаданные копируются как есть.
func Map[T, V any](page Page[T], fn func(T) V) Page[V] {
	content := make([]V, len(page.Content))
	for i, item := range page.Content {
		content[i] = fn(item)
	}

	return Page[V]{
		Content:       content,
		Total:         page.Total,
		CurrentPage:   page.CurrentPage,
		Size:          page.Size,
		TotalPages:    page.TotalPages,
		SortBy:        page.SortBy,
		SortDirection: page.SortDirection,
	}
}
