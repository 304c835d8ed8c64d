package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// Имена полей товара, доступные для фильтрации и сортировки.
const (
	ProductFieldID          = "id"
	ProductFieldName        = "name"
	ProductFieldDescription = "description"
	ProductFieldPrice       = "price"
	ProductFieldStockCount  = "stockCount"
	ProductFieldCreatedAt   = "createdAt"
	ProductFieldUpdatedAt   = "updatedAt"
)

// Product — товар каталога.
type Product struct {
	ID          int64
	Name        string
	Description string
	// Price: текущая цена за единицу.
	Price decimal.Decimal
	// StockCount: остаток на складе, никогда не уходит в минус.
	StockCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// Images заполняется только там, где изображения загружаются явно.
	Images []ProductImage
}

// Validate проверяет поля, которые задаёт администратор каталога.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrProductNameRequired
	}
	if p.Price.IsNegative() {
		return ErrPriceNegative
	}
	if p.StockCount < 0 {
		return ErrStockNegative
	}
	return nil
}

// ProductImage — изображение товара. У товара не больше одного главного изображения.
type ProductImage struct {
	ID        int64
	ProductID int64
	URL       string
	AltText   string
	SortOrder int
	IsMain    bool
	CreatedAt time.Time
}

// MainImage возвращает главное изображение, либо первое по порядку, если главного нет.
func MainImage(images []ProductImage) (ProductImage, bool) {
	if len(images) == 0 {
		return ProductImage{}, false
	}
	for _, img := range images {
		if img.IsMain {
			return img, true
		}
	}
	return images[0], true
}

// ProductPredicate фильтрует список товаров. Точные значения и диапазон одного поля объединяются через OR.
// Для одного поля точное множество и поиск/диапазон объединяются через OR,
// разные поля объединяются через AND.
type ProductPredicate struct {
	IDs             []int64
	Names           []string
	NameLike        string
	Descriptions    []string
	DescriptionLike string
	Counts          []int
	CountFrom       *int
	CountTo         *int
	PriceFrom       *decimal.Decimal
	PriceTo         *decimal.Decimal
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	UpdatedFrom     *time.Time
	UpdatedTo       *time.Time
}

// Filter переводит предикат в условия хранилища.
func (p ProductPredicate) Filter() query.Filter {
	return query.Filter{}.
		Where(query.In(ProductFieldID, p.IDs)).
		Where(query.In(ProductFieldName, p.Names), query.Contains(ProductFieldName, p.NameLike)).
		Where(query.In(ProductFieldDescription, p.Descriptions), query.Contains(ProductFieldDescription, p.DescriptionLike)).
		Where(query.In(ProductFieldStockCount, p.Counts), query.Between(ProductFieldStockCount, p.CountFrom, p.CountTo)).
		Where(query.Between(ProductFieldPrice, p.PriceFrom, p.PriceTo)).
		Where(query.Between(ProductFieldCreatedAt, p.CreatedFrom, p.CreatedTo)).
		Where(query.Between(ProductFieldUpdatedAt, p.UpdatedFrom, p.UpdatedTo))
}
