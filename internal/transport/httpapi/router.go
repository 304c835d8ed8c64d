// Package httpapi реализует HTTP API магазина поверх gin.
package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/query"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req ordering.PlaceOrderRequest) (ordering.OrderView, error)
	GetOrderByID(ctx context.Context, id int64) (ordering.OrderView, error)
	GetOrders(ctx context.Context, pageable query.Pageable, predicate domain.OrderPredicate) (query.Page[ordering.OrderSummaryView], error)
}

type CatalogService interface {
	GetProduct(ctx context.Context, id int64) (catalog.ProductView, error)
	GetProducts(ctx context.Context, pageable query.Pageable, predicate domain.ProductPredicate) (query.Page[catalog.ProductListItem], error)
	CreateProduct(ctx context.Context, req catalog.CreateProductRequest) (catalog.ProductView, error)
	UpdateProduct(ctx context.Context, id int64, req catalog.UpdateProductRequest) (catalog.ProductView, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListImages(ctx context.Context, productID int64) ([]catalog.ImageView, error)
	AddImage(ctx context.Context, productID int64, req catalog.AddImageRequest) (catalog.ImageView, error)
	SetMainImage(ctx context.Context, imageID int64) (catalog.ImageView, error)
	ReorderImage(ctx context.Context, imageID int64, sortOrder int) (catalog.ImageView, error)
	DeleteImage(ctx context.Context, imageID int64) error
}

type UserService interface {
	CreateUser(ctx context.Context, req users.CreateUserRequest) (users.UserView, error)
	GetUser(ctx context.Context, id int64) (users.UserView, error)
	Authenticate(ctx context.Context, email, password string) (users.UserView, error)
	GetUsers(ctx context.Context, pageable query.Pageable, predicate domain.UserPredicate) (query.Page[users.UserView], error)
}

// Deps собирает зависимости роутера. Idempotency и Metrics могут быть nil.
type Deps struct {
	Orders      OrderService
	Catalog     CatalogService
	Users       UserService
	Idempotency *idempotency.Guard
	Metrics     *metrics.HTTPMetrics
	Logger      *log.Entry
	// MaxPageSize ограничивает size в списках; 0 означает query.MaxSize.
	MaxPageSize int
}

type handler struct {
	orders      OrderService
	catalog     CatalogService
	users       UserService
	logger      *log.Entry
	maxPageSize int
}

// NewRouter собирает gin.Engine со всеми маршрутами /api.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	h := &handler{
		orders:      deps.Orders,
		catalog:     deps.Catalog,
		users:       deps.Users,
		logger:      logger,
		maxPageSize: deps.MaxPageSize,
	}

	r := gin.New()
	r.Use(RequestID(), Recovery(logger), AccessLog(logger), Metrics(deps.Metrics))
	r.NoRoute(func(c *gin.Context) {
		writeError(c, logger, domain.ErrNotFound)
	})

	api := r.Group("/api")

	orders := api.Group("/orders")
	orders.POST("", Idempotent(deps.Idempotency, logger), h.placeOrder)
	orders.GET("", h.listOrders)
	orders.GET("/:id", h.getOrder)

	products := api.Group("/products")
	products.GET("", h.listProducts)
	products.POST("", h.createProduct)
	products.GET("/:id", h.getProduct)
	products.PATCH("/:id", h.updateProduct)
	products.DELETE("/:id", h.deleteProduct)
	products.GET("/:id/images", h.listImages)
	products.POST("/:id/images", h.addImage)

	images := api.Group("/product-images")
	images.PUT("/:id/main", h.setMainImage)
	images.PUT("/:id/order", h.reorderImage)
	images.DELETE("/:id", h.deleteImage)

	usersGroup := api.Group("/users")
	usersGroup.POST("", h.createUser)
	usersGroup.GET("", h.listUsers)
	usersGroup.GET("/:id", h.getUser)
	usersGroup.POST("/authenticate", h.authenticate)

	return r
}

// listPageable разбирает параметры списка и проверяет размер страницы.
func (h *handler) listPageable(p *params) (query.Pageable, error) {
	pageable := p.pageable()
	if p.err != nil {
		return pageable, p.err
	}
	return pageable, pageable.Validate(h.maxPageSize)
}
