package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

// HeaderIdempotencyKey: ключ идемпотентности запроса.
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLength = 255

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotent отдаёт сохранённый ответ на повтор запроса с тем же Idempotency-Key.
// Без заголовка или без guard запрос выполняется как обычно.
func Idempotent(guard *idempotency.Guard, logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if guard == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeError(c, logger, fmt.Errorf("%w: %s longer than %d characters", domain.ErrInvalidInput, HeaderIdempotencyKey, maxIdempotencyKeyLength))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, logger, fmt.Errorf("%w: read body: %v", domain.ErrInvalidInput, err))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		// Пользователь входит в отпечаток: один ключ от разных пользователей считается разными запросами.
		hash := idempotency.RequestHash(c.Request.Method, c.Request.URL.Path+"#"+c.GetHeader(HeaderUserID), body)
		replay, err := guard.Begin(c.Request.Context(), key, hash)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.Status, "application/json; charset=utf-8", replay.Body)
			c.Abort()
			return
		}

		rec := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rec
		defer func() {
			// Паника обработчика не должна оставлять ключ в processing до конца TTL:
			// отвечаем 500 здесь и сохраняем ответ как failed.
			if recovered := recover(); recovered != nil {
				writeError(c, logger, fmt.Errorf("%w: panic: %v", domain.ErrInternal, recovered))
			}
			guard.Finish(context.WithoutCancel(c.Request.Context()), key, idempotency.Response{
				Status: rec.Status(),
				Body:   rec.body.Bytes(),
			})
		}()
		c.Next()
	}
}
