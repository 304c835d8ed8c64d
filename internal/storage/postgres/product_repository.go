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

var productColumns = columns{
	domain.ProductFieldID:          "p.id",
	domain.ProductFieldName:        "p.name",
	domain.ProductFieldDescription: "p.description",
	domain.ProductFieldPrice:       "p.price",
	domain.ProductFieldStockCount:  "p.stock_count",
	domain.ProductFieldCreatedAt:   "p.created_at",
	domain.ProductFieldUpdatedAt:   "p.updated_at",
}

const selectProducts = `SELECT p.id, p.name, p.description, p.price, p.stock_count, p.created_at, p.updated_at FROM products p`

type productRepository struct {
	db     *sql.DB
	images *imageRepository
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB(), images: &imageRepository{db: store.DB()}}
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.StockCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

func (r *productRepository) Sortable(field string) bool {
	return productColumns.sortable(field)
}

func (r *productRepository) Count(ctx context.Context, filter query.Filter) (int64, error) {
	return countWhere(ctx, r.db, "products p", filter, productColumns)
}

func (r *productRepository) Find(ctx context.Context, filter query.Filter, w query.Window) ([]domain.Product, error) {
	return findWhere(ctx, r.db, selectProducts, filter, w, productColumns, scanProduct)
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, selectProducts+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, err
	}

	images, err := r.images.ListFor(ctx, []int64{id})
	if err != nil {
		return domain.Product{}, err
	}
	product.Images = images[id]
	return product, nil
}

// FindByIDs выбирает товары одним запросом. Порядок результата не гарантируется.
func (r *productRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}
	filter := query.Filter{}.Where(query.In(domain.ProductFieldID, ids))
	return findWhere(ctx, r.db, selectProducts, filter, query.Window{Sort: query.Sort{Field: domain.ProductFieldID}}, productColumns, scanProduct)
}

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	product.CreatedAt, product.UpdatedAt = now, now
	product.Images = nil

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price, stock_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, product.Name, product.Description, product.Price, product.StockCount, now, now).Scan(&product.ID)
	if err != nil {
		return domain.Product{}, translateProductErr("insert product", err)
	}
	return product, nil
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	updated, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products p
		SET name = $2, description = $3, price = $4, stock_count = $5, updated_at = $6
		WHERE p.id = $1
		RETURNING p.id, p.name, p.description, p.price, p.stock_count, p.created_at, p.updated_at
	`, product.ID, product.Name, product.Description, product.Price, product.StockCount, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, translateProductErr("update product", err)
	}
	return updated, nil
}

func (r *productRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductInUse
		}
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func translateProductErr(op string, err error) error {
	if isCheckViolation(err) {
		switch constraintName(err) {
		case "products_stock_count_check":
			return domain.ErrStockNegative
		case "products_price_check":
			return domain.ErrPriceNegative
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ domain.ProductRepository = (*productRepository)(nil)
