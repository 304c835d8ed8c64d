package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type imageRepositoryInMemory struct {
	s *Store
}

// NewProductImageRepository возвращает in-memory репозиторий изображений товаров.
func NewProductImageRepository(s *Store) domain.ProductImageRepository {
	return &imageRepositoryInMemory{s: s}
}

func (r *imageRepositoryInMemory) List(_ context.Context, productID int64) ([]domain.ProductImage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, ok := r.s.products[productID]; !ok {
		return nil, domain.ErrProductNotFound
	}
	return r.s.imagesOf(productID), nil
}

func (r *imageRepositoryInMemory) ListFor(_ context.Context, productIDs []int64) (map[int64][]domain.ProductImage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make(map[int64][]domain.ProductImage, len(productIDs))
	for _, id := range productIDs {
		if images := r.s.imagesOf(id); len(images) > 0 {
			result[id] = images
		}
	}
	return result, nil
}

func (r *imageRepositoryInMemory) Get(_ context.Context, id int64) (domain.ProductImage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	img, ok := r.s.images[id]
	if !ok {
		return domain.ProductImage{}, domain.ErrImageNotFound
	}
	return img, nil
}

func (r *imageRepositoryInMemory) Add(_ context.Context, image domain.ProductImage) (domain.ProductImage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[image.ProductID]; !ok {
		return domain.ProductImage{}, domain.ErrProductNotFound
	}

	existing := r.s.imagesOf(image.ProductID)
	if len(existing) == 0 {
		image.IsMain = true
	} else if image.IsMain {
		r.s.clearMain(image.ProductID)
	}

	r.s.lastImageID++
	image.ID = r.s.lastImageID
	image.CreatedAt = r.s.now()
	r.s.images[image.ID] = image
	return image, nil
}

func (r *imageRepositoryInMemory) SetMain(_ context.Context, id int64) (domain.ProductImage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	img, ok := r.s.images[id]
	if !ok {
		return domain.ProductImage{}, domain.ErrImageNotFound
	}
	r.s.clearMain(img.ProductID)
	img.IsMain = true
	r.s.images[id] = img
	return img, nil
}

func (r *imageRepositoryInMemory) SetSortOrder(_ context.Context, id int64, sortOrder int) (domain.ProductImage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	img, ok := r.s.images[id]
	if !ok {
		return domain.ProductImage{}, domain.ErrImageNotFound
	}
	img.SortOrder = sortOrder
	r.s.images[id] = img
	return img, nil
}

func (r *imageRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	img, ok := r.s.images[id]
	if !ok {
		return domain.ErrImageNotFound
	}
	delete(r.s.images, id)

	if img.IsMain {
		if rest := r.s.imagesOf(img.ProductID); len(rest) > 0 {
			next := rest[0]
			next.IsMain = true
			r.s.images[next.ID] = next
		}
	}
	return nil
}

// imagesOf возвращает изображения товара по SortOrder, затем по id. Вызывается под блокировкой.
func (s *Store) imagesOf(productID int64) []domain.ProductImage {
	var images []domain.ProductImage
	for _, img := range s.images {
		if img.ProductID == productID {
			images = append(images, img)
		}
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].SortOrder != images[j].SortOrder {
			return images[i].SortOrder < images[j].SortOrder
		}
		return images[i].ID < images[j].ID
	})
	return images
}

func (s *Store) clearMain(productID int64) {
	for id, img := range s.images {
		if img.ProductID == productID && img.IsMain {
			img.IsMain = false
			s.images[id] = img
		}
	}
}

var _ domain.ProductImageRepository = (*imageRepositoryInMemory)(nil)
