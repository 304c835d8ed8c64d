package catalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ProductView — карточка товара со всеми изображениями.
type ProductView struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	StockCount  int             `json:"stockCount"`
	Images      []ImageView     `json:"images"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductListItem — строка списка товаров. MainImageURL пуст, если изображений нет.
type ProductListItem struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	StockCount   int             `json:"stockCount"`
	MainImageURL string          `json:"mainImageUrl,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type ImageView struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	URL       string    `json:"url"`
	AltText   string    `json:"altText,omitempty"`
	SortOrder int       `json:"sortOrder"`
	IsMain    bool      `json:"isMain"`
	CreatedAt time.Time `json:"createdAt"`
}

func toImageView(img domain.ProductImage) ImageView {
	return ImageView{
		ID:        img.ID,
		ProductID: img.ProductID,
		URL:       img.URL,
		AltText:   img.AltText,
		SortOrder: img.SortOrder,
		IsMain:    img.IsMain,
		CreatedAt: img.CreatedAt,
	}
}

func toImageViews(images []domain.ProductImage) []ImageView {
	views := make([]ImageView, len(images))
	for i, img := range images {
		views[i] = toImageView(img)
	}
	return views
}

func toProductView(p domain.Product) ProductView {
	return ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		StockCount:  p.StockCount,
		Images:      toImageViews(p.Images),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toListItem(p domain.Product, images []domain.ProductImage) ProductListItem {
	item := ProductListItem{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		StockCount:  p.StockCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if main, ok := domain.MainImage(images); ok {
		item.MainImageURL = main.URL
	}
	return item
}
