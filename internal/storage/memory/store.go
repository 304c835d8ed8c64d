package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Store — общее in-memory хранилище каталога, пользователей и заказов.
// Один мьютекс на все таблицы нужен, чтобы размещение заказа было атомарным.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	products map[int64]domain.Product
	images   map[int64]domain.ProductImage
	users    map[int64]domain.User
	orders   map[int64]domain.Order

	lastProductID int64
	lastImageID   int64
	lastUserID    int64
	lastOrderID   int64
	lastLineID    int64

	outbox *outboxRepositoryInMemory
}

// StoreOption настраивает Store.
type StoreOption func(*Store)

// WithClock подменяет источник времени (используется в тестах).
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore создаёт пустое in-memory хранилище для локальной разработки и тестов.
func NewStore(options ...StoreOption) *Store {
	s := &Store{
		now:      func() time.Time { return time.Now().UTC() },
		products: make(map[int64]domain.Product),
		images:   make(map[int64]domain.ProductImage),
		users:    make(map[int64]domain.User),
		orders:   make(map[int64]domain.Order),
		outbox:   NewOutboxRepository(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Outbox возвращает outbox, в который пишет транзакция размещения заказа.
func (s *Store) Outbox() *outboxRepositoryInMemory {
	return s.outbox
}

// Ping всегда успешен: хранилище живёт в памяти процесса.
func (s *Store) Ping() error {
	return nil
}
