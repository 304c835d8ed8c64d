package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const internalMessage = "internal server error"

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error   domain.Kind    `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError переводит доменную ошибку в HTTP-ответ. Внутренние ошибки
// логируются целиком, а клиент получает общее сообщение.
func writeError(c *gin.Context, logger *log.Entry, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)

	resp := ErrorResponse{Error: kind, Message: err.Error()}
	if kind == domain.KindInternal {
		logger.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		resp.Message = internalMessage
	}

	if stockErr, ok := domain.IsInsufficientStock(err); ok {
		resp.Details = map[string]any{
			"productId":   stockErr.ProductID,
			"productName": stockErr.ProductName,
			"available":   stockErr.Available,
			"requested":   stockErr.Requested,
		}
	}
	var missing *domain.ProductsNotFoundError
	if errors.As(err, &missing) {
		resp.Details = map[string]any{"productIds": missing.IDs}
	}

	c.AbortWithStatusJSON(status, resp)
}
