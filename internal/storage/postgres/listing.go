package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// queryer реализуют и *sql.DB, и *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// countWhere выполняет SELECT COUNT(*) FROM <from> с условиями фильтра.
func countWhere(ctx context.Context, q queryer, from string, filter query.Filter, cols columns) (int64, error) {
	b := &sqlBuilder{}
	b.write("SELECT COUNT(*) FROM ", from)
	if err := b.where(filter, cols); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var total int64
	if err := q.QueryRowContext(ctx, b.String(), b.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", from, err)
	}
	return total, nil
}

// findWhere выполняет selectFrom с фильтром, сортировкой и окном.
func findWhere[T any](
	ctx context.Context,
	q queryer,
	selectFrom string,
	filter query.Filter,
	w query.Window,
	cols columns,
	scan func(rowScanner) (T, error),
) ([]T, error) {
	b := &sqlBuilder{}
	b.write(selectFrom)
	if err := b.where(filter, cols); err != nil {
		return nil, err
	}
	if err := b.page(w, cols); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := q.QueryContext(ctx, b.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("select page: %w", err)
	}
	defer rows.Close()

	return collect(rows, scan)
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return items, nil
}
