package domain

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// ProductRepository хранит товары каталога.
type ProductRepository interface {
	query.Source[Product]
	// Get возвращает товар с изображениями или ErrProductNotFound.
	Get(ctx context.Context, id int64) (Product, error)
	// FindByIDs одной выборкой возвращает найденные товары без изображений. Отсутствующие id пропускаются.
	FindByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	// Update сохраняет изменённые поля товара и обновляет UpdatedAt.
	Update(ctx context.Context, product Product) (Product, error)
	// Delete удаляет товар; ErrProductInUse, если на него ссылаются позиции заказов.
	Delete(ctx context.Context, id int64) error
}

// ProductImageRepository хранит изображения товаров.
type ProductImageRepository interface {
	// List возвращает изображения товара по возрастанию SortOrder.
	List(ctx context.Context, productID int64) ([]ProductImage, error)
	// ListFor батчем загружает изображения для нескольких товаров.
	ListFor(ctx context.Context, productIDs []int64) (map[int64][]ProductImage, error)
	Get(ctx context.Context, id int64) (ProductImage, error)
	// Add добавляет изображение; первое изображение товара становится главным.
	Add(ctx context.Context, image ProductImage) (ProductImage, error)
	// SetMain делает изображение главным и снимает флаг с остальных изображений товара.
	SetMain(ctx context.Context, id int64) (ProductImage, error)
	SetSortOrder(ctx context.Context, id int64, sortOrder int) (ProductImage, error)
	// Delete удаляет изображение; если оно было главным, главным становится следующее по порядку.
	Delete(ctx context.Context, id int64) error
}

// UserRepository хранит пользователей.
type UserRepository interface {
	query.Source[User]
	Get(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	// Create сохраняет пользователя; ErrDuplicateEmail, если email занят.
	Create(ctx context.Context, user User) (User, error)
}

// OrderRepository читает заказы. Создание заказа идёт только через OrderPlacer.
type OrderRepository interface {
	// Source выбирает заголовки заказов без позиций.
	query.Source[Order]
	// Get возвращает заказ с позициями и именами товаров или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
}

// PlacementTx — операции, доступные внутри транзакции размещения заказа.
type PlacementTx interface {
	// CountOrdersCreatedBetween считает заказы с created_at в [from, to).
	CountOrdersCreatedBetween(ctx context.Context, from, to time.Time) (int, error)
	// InsertOrder сохраняет заголовок и позиции, проставляя идентификаторы.
	// ErrDuplicateOrderNumber, если номер уже занят.
	InsertOrder(ctx context.Context, order Order) (Order, error)
	// DecrementStock уменьшает остаток, повторно проверяя его внутри транзакции.
	// *InsufficientStockError, если остатка не хватает.
	DecrementStock(ctx context.Context, productID int64, qty int, at time.Time) error
	// Enqueue кладёт событие в transactional outbox.
	Enqueue(ctx context.Context, msg OutboxMessage) error
}

// OrderPlacer выполняет fn в одной транзакции. Генерация номеров сериализуется в пределах суток day.
// Любая ошибка fn откатывает все изменения.
type OrderPlacer interface {
	InPlacementTx(ctx context.Context, day time.Time, fn func(tx PlacementTx) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
