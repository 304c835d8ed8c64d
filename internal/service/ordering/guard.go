package ordering

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type LineRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Reservation — результат проверки корзины: товары, позиции с ценой на момент проверки и сумма.
// Reservation ничего не резервирует в хранилище; остаток повторно проверяется в транзакции.
type Reservation struct {
	Products map[int64]domain.Product
	Lines    []domain.OrderLine
	// Demand: суммарное количество по каждому товару.
	Demand map[int64]int
	Total  decimal.Decimal
}

// InventoryGuard проверяет существование товаров и достаточность остатков.
type InventoryGuard struct {
	products domain.ProductRepository
}

// NewInventoryGuard создаёт guard поверх репозитория товаров.
func NewInventoryGuard(products domain.ProductRepository) *InventoryGuard {
	return &InventoryGuard{products: products}
}

// Check загружает все товары одним запросом и проверяет остатки.
// Если товар встречается в нескольких позициях, сравнивается суммарное количество.
func (g *InventoryGuard) Check(ctx context.Context, lines []LineRequest) (Reservation, error) {
	if len(lines) == 0 {
		return Reservation{}, domain.ErrOrderLinesRequired
	}

	demand := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return Reservation{}, fmt.Errorf("%w: line %d has quantity %d", domain.ErrLineQuantityInvalid, i+1, line.Quantity)
		}
		if _, seen := demand[line.ProductID]; !seen {
			ids = append(ids, line.ProductID)
		}
		demand[line.ProductID] += line.Quantity
	}

	found, err := g.products.FindByIDs(ctx, ids)
	if err != nil {
		return Reservation{}, fmt.Errorf("load products: %w", err)
	}
	products := make(map[int64]domain.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return Reservation{}, &domain.ProductsNotFoundError{IDs: missing}
	}

	for _, id := range ids {
		p := products[id]
		if p.StockCount < demand[id] {
			return Reservation{}, &domain.InsufficientStockError{
				ProductID:   id,
				ProductName: p.Name,
				Available:   p.StockCount,
				Requested:   demand[id],
			}
		}
	}

	res := Reservation{
		Products: products,
		Lines:    make([]domain.OrderLine, len(lines)),
		Demand:   demand,
		Total:    decimal.Zero,
	}
	for i, line := range lines {
		p := products[line.ProductID]
		res.Lines[i] = domain.OrderLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.Price,
		}
		res.Total = res.Total.Add(res.Lines[i].LineTotal())
	}
	return res, nil
}

// productIDs возвращает id товаров по возрастанию: в этом порядке идёт списание остатков.
func (r Reservation) productIDs() []int64 {
	return slices.Sorted(maps.Keys(r.Demand))
}
