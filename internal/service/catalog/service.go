package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	StockCount  int             `json:"stockCount"`
}

// UpdateProductRequest — частичное обновление: nil-поля не меняются.
type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	StockCount  *int             `json:"stockCount"`
}

type AddImageRequest struct {
	URL       string `json:"url"`
	AltText   string `json:"altText"`
	SortOrder int    `json:"sortOrder"`
	IsMain    bool   `json:"isMain"`
}

// Service управляет каталогом товаров и их изображениями.
type Service struct {
	products domain.ProductRepository
	images   domain.ProductImageRepository
	logger   *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(products domain.ProductRepository, images domain.ProductImageRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{products: products, images: images, logger: logger}
}

// GetProduct возвращает карточку товара с изображениями.
func (s *Service) GetProduct(ctx context.Context, id int64) (ProductView, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	return toProductView(p), nil
}

// GetProducts возвращает страницу товаров с адресом главного изображения.
// Изображения всей страницы загружаются одним запросом.
func (s *Service) GetProducts(ctx context.Context, pageable query.Pageable, predicate domain.ProductPredicate) (query.Page[ProductListItem], error) {
	page, err := query.GetPage(ctx, s.products, pageable, predicate.Filter())
	if err != nil {
		return query.Page[ProductListItem]{}, err
	}

	var images map[int64][]domain.ProductImage
	if len(page.Content) > 0 {
		ids := make([]int64, len(page.Content))
		for i, p := range page.Content {
			ids[i] = p.ID
		}
		images, err = s.images.ListFor(ctx, ids)
		if err != nil {
			return query.Page[ProductListItem]{}, fmt.Errorf("load product images: %w", err)
		}
	}

	return query.Map(page, func(p domain.Product) ProductListItem {
		return toListItem(p, images[p.ID])
	}), nil
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (ProductView, error) {
	p := domain.Product{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		StockCount:  req.StockCount,
	}
	if err := p.Validate(); err != nil {
		return ProductView{}, err
	}

	created, err := s.products.Create(ctx, p)
	if err != nil {
		return ProductView{}, err
	}
	s.logger.WithFields(log.Fields{"product_id": created.ID, "name": created.Name}).Info("product created")
	return toProductView(created), nil
}

// UpdateProduct меняет только переданные поля.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req UpdateProductRequest) (ProductView, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return ProductView{}, err
	}

	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.StockCount != nil {
		p.StockCount = *req.StockCount
	}
	if err := p.Validate(); err != nil {
		return ProductView{}, err
	}

	updated, err := s.products.Update(ctx, p)
	if err != nil {
		return ProductView{}, err
	}
	updated.Images = p.Images
	return toProductView(updated), nil
}

// DeleteProduct удаляет товар вместе с изображениями.
// Товар, на который ссылаются позиции заказов, удалить нельзя.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// ListImages возвращает изображения товара по возрастанию sortOrder.
func (s *Service) ListImages(ctx context.Context, productID int64) ([]ImageView, error) {
	images, err := s.images.List(ctx, productID)
	if err != nil {
		return nil, err
	}
	return toImageViews(images), nil
}

// AddImage добавляет изображение. Первое изображение товара становится главным.
func (s *Service) AddImage(ctx context.Context, productID int64, req AddImageRequest) (ImageView, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return ImageView{}, domain.ErrImageURLRequired
	}

	img, err := s.images.Add(ctx, domain.ProductImage{
		ProductID: productID,
		URL:       url,
		AltText:   strings.TrimSpace(req.AltText),
		SortOrder: req.SortOrder,
		IsMain:    req.IsMain,
	})
	if err != nil {
		return ImageView{}, err
	}
	return toImageView(img), nil
}

// SetMainImage делает изображение главным.
func (s *Service) SetMainImage(ctx context.Context, imageID int64) (ImageView, error) {
	img, err := s.images.SetMain(ctx, imageID)
	if err != nil {
		return ImageView{}, err
	}
	return toImageView(img), nil
}

// ReorderImage меняет позицию изображения в галерее.
func (s *Service) ReorderImage(ctx context.Context, imageID int64, sortOrder int) (ImageView, error) {
	if sortOrder < 0 {
		return ImageView{}, fmt.Errorf("%w: sort order must be non-negative", domain.ErrInvalidInput)
	}
	img, err := s.images.SetSortOrder(ctx, imageID, sortOrder)
	if err != nil {
		return ImageView{}, err
	}
	return toImageView(img), nil
}

// DeleteImage удаляет изображение. Если оно было главным, главным становится следующее.
func (s *Service) DeleteImage(ctx context.Context, imageID int64) error {
	return s.images.Delete(ctx, imageID)
}
