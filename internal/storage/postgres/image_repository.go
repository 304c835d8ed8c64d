package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

var imageColumns = columns{
	"id":        "i.id",
	"productId": "i.product_id",
}

const selectImages = `SELECT i.id, i.product_id, i.url, i.alt_text, i.sort_order, i.is_main, i.created_at FROM product_images i`

type imageRepository struct {
	db *sql.DB
}

// NewProductImageRepository создаёт PostgreSQL-реализацию ProductImageRepository.
func NewProductImageRepository(store *Store) domain.ProductImageRepository {
	return &imageRepository{db: store.DB()}
}

func scanImage(row rowScanner) (domain.ProductImage, error) {
	var img domain.ProductImage
	if err := row.Scan(&img.ID, &img.ProductID, &img.URL, &img.AltText, &img.SortOrder, &img.IsMain, &img.CreatedAt); err != nil {
		return domain.ProductImage{}, fmt.Errorf("scan product image: %w", err)
	}
	return img, nil
}

func (r *imageRepository) List(ctx context.Context, productID int64) ([]domain.ProductImage, error) {
	if err := r.productExists(ctx, r.db, productID); err != nil {
		return nil, err
	}
	byProduct, err := r.ListFor(ctx, []int64{productID})
	if err != nil {
		return nil, err
	}
	if images := byProduct[productID]; images != nil {
		return images, nil
	}
	return []domain.ProductImage{}, nil
}

// ListFor загружает изображения нескольких товаров одним запросом.
func (r *imageRepository) ListFor(ctx context.Context, productIDs []int64) (map[int64][]domain.ProductImage, error) {
	result := make(map[int64][]domain.ProductImage, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	b := &sqlBuilder{}
	b.write(selectImages)
	if err := b.where(query.Filter{}.Where(query.In("productId", productIDs)), imageColumns); err != nil {
		return nil, err
	}
	b.write(" ORDER BY i.product_id, i.sort_order, i.id")

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("list product images: %w", err)
	}
	defer rows.Close()

	images, err := collect(rows, scanImage)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		result[img.ProductID] = append(result[img.ProductID], img)
	}
	return result, nil
}

func (r *imageRepository) Get(ctx context.Context, id int64) (domain.ProductImage, error) {
	return r.get(ctx, r.db, id)
}

func (r *imageRepository) get(ctx context.Context, q queryer, id int64) (domain.ProductImage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	img, err := scanImage(q.QueryRowContext(ctx, selectImages+` WHERE i.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductImage{}, domain.ErrImageNotFound
	}
	return img, err
}

func (r *imageRepository) Add(ctx context.Context, image domain.ProductImage) (domain.ProductImage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	image.CreatedAt = time.Now().UTC()
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		// строка товара блокируется до конца транзакции: главное изображение выбирается под ней
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT TRUE FROM products WHERE id = $1 FOR UPDATE`, image.ProductID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("lock product: %w", err)
		}

		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM product_images WHERE product_id = $1`, image.ProductID).Scan(&existing); err != nil {
			return fmt.Errorf("count product images: %w", err)
		}
		if existing == 0 {
			image.IsMain = true
		} else if image.IsMain {
			if _, err := tx.ExecContext(ctx, `UPDATE product_images SET is_main = FALSE WHERE product_id = $1 AND is_main`, image.ProductID); err != nil {
				return fmt.Errorf("clear main image: %w", err)
			}
		}

		return tx.QueryRowContext(ctx, `
			INSERT INTO product_images (product_id, url, alt_text, sort_order, is_main, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, image.ProductID, image.URL, image.AltText, image.SortOrder, image.IsMain, image.CreatedAt).Scan(&image.ID)
	})
	if err != nil {
		return domain.ProductImage{}, err
	}
	return image, nil
}

func (r *imageRepository) SetMain(ctx context.Context, id int64) (domain.ProductImage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var img domain.ProductImage
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if img, err = r.get(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE product_images SET is_main = FALSE WHERE product_id = $1 AND is_main`, img.ProductID); err != nil {
			return fmt.Errorf("clear main image: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE product_images SET is_main = TRUE WHERE id = $1`, id); err != nil {
			return fmt.Errorf("set main image: %w", err)
		}
		img.IsMain = true
		return nil
	})
	return img, err
}

func (r *imageRepository) SetSortOrder(ctx context.Context, id int64, sortOrder int) (domain.ProductImage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	img, err := scanImage(r.db.QueryRowContext(ctx, `
		UPDATE product_images i SET sort_order = $2 WHERE i.id = $1
		RETURNING i.id, i.product_id, i.url, i.alt_text, i.sort_order, i.is_main, i.created_at
	`, id, sortOrder))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductImage{}, domain.ErrImageNotFound
	}
	return img, err
}

func (r *imageRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		img, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_images WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete product image: %w", err)
		}
		if !img.IsMain {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE product_images SET is_main = TRUE
			WHERE id = (
				SELECT id FROM product_images
				WHERE product_id = $1
				ORDER BY sort_order, id
				LIMIT 1
			)
		`, img.ProductID)
		if err != nil {
			return fmt.Errorf("promote next main image: %w", err)
		}
		return nil
	})
}

func (r *imageRepository) productExists(ctx context.Context, q queryer, productID int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return nil
}

var _ domain.ProductImageRepository = (*imageRepository)(nil)
