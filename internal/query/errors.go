package query

import "errors"

var (
	// ErrInvalidQuery: общий предок всех ошибок разбора запроса страницы.
	ErrInvalidQuery = errors.New("invalid page query")
	// ErrPageOutOfRange: номер страницы меньше 1.
	ErrPageOutOfRange = wrap("page must be at least 1")
	// ErrSizeOutOfRange: размер страницы вне допустимых границ.
	ErrSizeOutOfRange = wrap("page size out of range")
	// ErrUnknownSortField: сортировка по полю, которого нет у сущности.
	ErrUnknownSortField = wrap("unknown sort field")
	// ErrUnknownFilterField: фильтр ссылается на неизвестное поле.
	ErrUnknownFilterField = wrap("unknown filter field")
	// ErrBadFilterValue: значение фильтра нельзя сравнить с полем.
	ErrBadFilterValue = wrap("bad filter value")
)

type queryError struct {
	msg string
}

func wrap(msg string) error {
	return &queryError{msg: msg}
}

func (e *queryError) Error() string { return e.msg }

func (e *queryError) Unwrap() error { return ErrInvalidQuery }
