package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTTL: сколько хранится ответ на запрос с idempotency-key.
const DefaultTTL = 24 * time.Hour

// ErrInProgress: запрос с тем же ключом ещё обрабатывается.
var ErrInProgress = fmt.Errorf("%w: request with the same idempotency key is still processing", domain.ErrConflict)

// Response — сохранённый ответ, который отдаётся при повторе запроса.
type Response struct {
	Status int
	Body   []byte
}

// Guard защищает неидемпотентные операции от повторного выполнения.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewGuard создаёт guard; ttl <= 0 означает DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Guard{
		repo:   repo,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// RequestHash строит отпечаток запроса: метод, путь и тело.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Begin занимает ключ. Возвращает сохранённый ответ, если запрос уже выполнялся;
// (nil, nil) означает, что запрос нужно выполнить и затем вызвать Finish.
func (g *Guard) Begin(ctx context.Context, key, requestHash string) (*Response, error) {
	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Completed() {
			return nil, ErrInProgress
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		return &Response{Status: status, Body: record.ResponseBody}, nil
	default:
		return nil, err
	}
}

// Finish сохраняет ответ. Ответы 5xx помечаются failed, но тоже отдаются при повторе.
func (g *Guard) Finish(ctx context.Context, key string, resp Response) {
	mark := g.repo.MarkDone
	if resp.Status >= http.StatusInternalServerError {
		mark = g.repo.MarkFailed
	}
	if err := mark(ctx, key, resp.Body, resp.Status); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
}
