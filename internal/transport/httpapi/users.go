package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/service/users"
)

type authenticateBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handler) createUser(c *gin.Context) {
	var req users.CreateUserRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.users.CreateUser(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *handler) getUser(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *handler) listUsers(c *gin.Context) {
	p := newParams(c)
	predicate := userPredicate(p)
	pageable, err := h.listPageable(p)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	page, err := h.users.GetUsers(c.Request.Context(), pageable, predicate)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// authenticate проверяет пароль; выдача токена остаётся за сервисом авторизации.
func (h *handler) authenticate(c *gin.Context) {
	var body authenticateBody
	if err := bindJSON(c, &body); err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.users.Authenticate(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
