package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
)

// HeaderUserID: идентификатор пользователя, проставленный сервисом авторизации.
const HeaderUserID = "X-User-ID"

type placeOrderBody struct {
	Lines           []ordering.LineRequest `json:"lines"`
	ShippingAddress string                 `json:"shippingAddress"`
	PaymentMethod   domain.PaymentMethod   `json:"paymentMethod"`
	Comment         string                 `json:"comment"`
}

func callerID(c *gin.Context) (int64, error) {
	raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if raw == "" {
		return 0, domain.ErrUserRequired
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrUserRequired, HeaderUserID, raw)
	}
	return id, nil
}

func (h *handler) placeOrder(c *gin.Context) {
	userID, err := callerID(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	var body placeOrderBody
	if err := bindJSON(c, &body); err != nil {
		writeError(c, h.logger, err)
		return
	}

	view, err := h.orders.PlaceOrder(c.Request.Context(), ordering.PlaceOrderRequest{
		UserID:          userID,
		Lines:           body.Lines,
		ShippingAddress: body.ShippingAddress,
		PaymentMethod:   body.PaymentMethod,
		Comment:         body.Comment,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *handler) getOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.orders.GetOrderByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) listOrders(c *gin.Context) {
	p := newParams(c)
	predicate := orderPredicate(p)
	pageable, err := h.listPageable(p)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	page, err := h.orders.GetOrders(c.Request.Context(), pageable, predicate)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
