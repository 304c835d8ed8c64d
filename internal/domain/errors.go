package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// Kind — класс ошибки, по которому транспорт выбирает код ответа.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindInternal     Kind = "internal"
)

var (
	// ErrNotFound: сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput: некорректный запрос клиента.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict: запрос противоречит текущему состоянию.
	ErrConflict = errors.New("conflict")
	// ErrInternal: сбой хранилища или инфраструктуры.
	ErrInternal = errors.New("internal error")
)

var (
	// Сущности не найдены.
	ErrOrderNotFound          = kindError(ErrNotFound, "order not found")
	ErrProductNotFound        = kindError(ErrNotFound, "product not found")
	ErrUserNotFound           = kindError(ErrNotFound, "user not found")
	ErrImageNotFound          = kindError(ErrNotFound, "product image not found")
	ErrIdempotencyKeyNotFound = kindError(ErrNotFound, "idempotency key not found")

	// Ошибки размещения заказа.
	ErrOrderLinesRequired      = kindError(ErrInvalidInput, "order must contain at least one line")
	ErrLineQuantityInvalid     = kindError(ErrInvalidInput, "line quantity must be greater than zero")
	ErrPaymentMethodInvalid    = kindError(ErrInvalidInput, "unsupported payment method")
	ErrShippingAddressRequired = kindError(ErrInvalidInput, "shipping address is required")
	ErrUserRequired            = kindError(ErrInvalidInput, "user id is required")

	// Ошибки каталога.
	ErrProductNameRequired = kindError(ErrInvalidInput, "product name is required")
	ErrPriceNegative       = kindError(ErrInvalidInput, "price must be non-negative")
	ErrStockNegative       = kindError(ErrInvalidInput, "stock count must be non-negative")
	ErrImageURLRequired    = kindError(ErrInvalidInput, "image url is required")

	// Ошибки пользователей.
	ErrUsernameRequired   = kindError(ErrInvalidInput, "username is required")
	ErrEmailInvalid       = kindError(ErrInvalidInput, "email is invalid")
	ErrPasswordTooShort   = kindError(ErrInvalidInput, "password is too short")
	ErrPasswordTooLong    = kindError(ErrInvalidInput, "password is too long")
	ErrRoleInvalid        = kindError(ErrInvalidInput, "unsupported role")
	ErrInvalidCredentials = kindError(ErrInvalidInput, "invalid email or password")

	ErrFilterValueInvalid      = kindError(ErrInvalidInput, "invalid filter value")
	ErrIdempotencyKeyRequired  = kindError(ErrInvalidInput, "idempotency key is required")
	ErrIdempotencyHashRequired = kindError(ErrInvalidInput, "idempotency request hash is required")

	// Конфликты состояния. ErrDuplicateOrderNumber возникает при гонке генерации номера.
	ErrDuplicateOrderNumber        = kindError(ErrConflict, "duplicate order number")
	ErrDuplicateEmail              = kindError(ErrConflict, "email already registered")
	ErrProductInUse                = kindError(ErrConflict, "product is referenced by orders")
	ErrIdempotencyKeyAlreadyExists = kindError(ErrConflict, "idempotency key already exists")
	ErrIdempotencyHashMismatch     = kindError(ErrConflict, "idempotency key reused with different request")

	ErrOutboxPublish = kindError(ErrInternal, "outbox publish failed")
)

type sentinel struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &sentinel{kind: kind, msg: msg}
}

func (e *sentinel) Error() string { return e.msg }

func (e *sentinel) Unwrap() error { return e.kind }

// InsufficientStockError — запрошено больше, чем есть на складе.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s): available %d, requested %d",
		e.ProductID, e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrConflict }

// ProductsNotFoundError перечисляет отсутствующие товары.
type ProductsNotFoundError struct {
	IDs []int64
}

func (e *ProductsNotFoundError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return "products not found: " + strings.Join(ids, ", ")
}

func (e *ProductsNotFoundError) Unwrap() error { return ErrProductNotFound }

// KindOf определяет класс ошибки. Всё неизвестное считается внутренней ошибкой.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, query.ErrInvalidQuery):
		return KindInvalidInput
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsInsufficientStock проверяет, что ошибка означает нехватку остатка, и возвращает детали.
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr, true
	}
	return nil, false
}
