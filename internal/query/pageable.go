package query

import (
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultPage: номер страницы, если клиент его не передал.
	DefaultPage = 1
	// DefaultSize: размер страницы по умолчанию.
	DefaultSize = 10
	// MaxSize: жёсткий верхний предел размера страницы.
	MaxSize = 100
	// DefaultSortField используется при пустом или битом sort.
	DefaultSortField = "id"
	// MaxOffset ограничивает (page-1)*size, чтобы сдвиг не переполнял int.
	MaxOffset = math.MaxInt32
)

// Direction — направление сортировки.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Sort описывает поле и направление сортировки.
type Sort struct {
	Field     string
	Direction Direction
}

// ParseSort разбирает строку вида "field,direction".
// Пустое поле превращается в id, DESC выбирается только если второй токен
// равен "desc" без учёта регистра. Токены после второго игнорируются.
func ParseSort(raw string) Sort {
	tokens := strings.Split(raw, ",")
	field := tokens[0]
	var direction string
	if len(tokens) > 1 {
		direction = tokens[1]
	}

	field = strings.TrimSpace(field)
	if field == "" {
		field = DefaultSortField
	}

	sort := Sort{Field: field, Direction: Asc}
	if strings.EqualFold(strings.TrimSpace(direction), "desc") {
		sort.Direction = Desc
	}
	return sort
}

// String возвращает сортировку в каноничной форме "field,asc|desc".
func (s Sort) String() string {
	return s.Field + "," + strings.ToLower(string(s.Direction))
}

// Pageable — запрошенная страница, её размер и сортировка.
type Pageable struct {
	Page int
	Size int
	Sort string
}

// DefaultPageable возвращает первую страницу размером DefaultSize, отсортированную по id.
func DefaultPageable() Pageable {
	return Pageable{Page: DefaultPage, Size: DefaultSize}
}

// Validate проверяет границы страницы. maxSize <= 0 означает MaxSize.
func (p Pageable) Validate(maxSize int) error {
	if maxSize <= 0 || maxSize > MaxSize {
		maxSize = MaxSize
	}
	if p.Page < 1 {
		return fmt.Errorf("%w: got %d", ErrPageOutOfRange, p.Page)
	}
	if p.Size < 1 || p.Size > maxSize {
		return fmt.Errorf("%w: got %d, allowed 1..%d", ErrSizeOutOfRange, p.Size, maxSize)
	}
	if p.Page-1 > MaxOffset/p.Size {
		return fmt.Errorf("%w: got %d, offset exceeds %d", ErrPageOutOfRange, p.Page, MaxOffset)
	}
	return nil
}

// Offset: сколько записей пропустить.
func (p Pageable) Offset() int {
	return (p.Page - 1) * p.Size
}

// Limit: сколько записей взять.
func (p Pageable) Limit() int {
	return p.Size
}

// SortSpec возвращает разобранную сортировку.
func (p Pageable) SortSpec() Sort {
	return ParseSort(p.Sort)
}
