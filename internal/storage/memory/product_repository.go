package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

var productFields = fieldSet[domain.Product]{
	domain.ProductFieldID:          func(p domain.Product) any { return p.ID },
	domain.ProductFieldName:        func(p domain.Product) any { return p.Name },
	domain.ProductFieldDescription: func(p domain.Product) any { return p.Description },
	domain.ProductFieldPrice:       func(p domain.Product) any { return p.Price },
	domain.ProductFieldStockCount:  func(p domain.Product) any { return p.StockCount },
	domain.ProductFieldCreatedAt:   func(p domain.Product) any { return p.CreatedAt },
	domain.ProductFieldUpdatedAt:   func(p domain.Product) any { return p.UpdatedAt },
}

type productRepositoryInMemory struct {
	s *Store
}

// NewProductRepository возвращает in-memory репозиторий товаров поверх store.
func NewProductRepository(s *Store) domain.ProductRepository {
	return &productRepositoryInMemory{s: s}
}

func (r *productRepositoryInMemory) Sortable(field string) bool {
	return productFields.sortable(field)
}

func (r *productRepositoryInMemory) Count(_ context.Context, filter query.Filter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched, err := selectItems(r.s.productList(), filter, productFields)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (r *productRepositoryInMemory) Find(_ context.Context, filter query.Filter, w query.Window) ([]domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched, err := selectItems(r.s.productList(), filter, productFields)
	if err != nil {
		return nil, err
	}
	if err := sortItems(matched, w.Sort, productFields); err != nil {
		return nil, err
	}
	return window(matched, w), nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id int64) (domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	product, ok := r.s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	product.Images = r.s.imagesOf(id)
	return product, nil
}

func (r *productRepositoryInMemory) FindByIDs(_ context.Context, ids []int64) ([]domain.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if product, ok := r.s.products[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	r.s.lastProductID++
	product.ID = r.s.lastProductID
	product.CreatedAt = now
	product.UpdatedAt = now
	product.Images = nil
	r.s.products[product.ID] = product
	return product, nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.products[product.ID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	current.Name = product.Name
	current.Description = product.Description
	current.Price = product.Price
	current.StockCount = product.StockCount
	current.UpdatedAt = r.s.now()
	r.s.products[current.ID] = current
	return current, nil
}

func (r *productRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	for _, order := range r.s.orders {
		for _, line := range order.Lines {
			if line.ProductID == id {
				return domain.ErrProductInUse
			}
		}
	}

	for imageID, img := range r.s.images {
		if img.ProductID == id {
			delete(r.s.images, imageID)
		}
	}
	delete(r.s.products, id)
	return nil
}

// productList возвращает копию всех товаров. Вызывается под блокировкой.
func (s *Store) productList() []domain.Product {
	items := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		items = append(items, p)
	}
	return items
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
