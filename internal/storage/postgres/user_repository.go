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

var userColumns = columns{
	domain.UserFieldID:        "u.id",
	domain.UserFieldUsername:  "u.username",
	domain.UserFieldEmail:     "u.email",
	domain.UserFieldRole:      "u.role",
	domain.UserFieldIsActive:  "u.is_active",
	domain.UserFieldCreatedAt: "u.created_at",
	domain.UserFieldUpdatedAt: "u.updated_at",
}

const selectUsers = `SELECT u.id, u.username, u.email, u.password_hash, u.is_active, u.role, u.created_at, u.updated_at FROM users u`

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = domain.Role(role)
	return u, nil
}

func (r *userRepository) Sortable(field string) bool {
	return userColumns.sortable(field)
}

func (r *userRepository) Count(ctx context.Context, filter query.Filter) (int64, error) {
	return countWhere(ctx, r.db, "users u", filter, userColumns)
}

func (r *userRepository) Find(ctx context.Context, filter query.Filter, w query.Window) ([]domain.User, error) {
	return findWhere(ctx, r.db, selectUsers, filter, w, userColumns, scanUser)
}

func (r *userRepository) Get(ctx context.Context, id int64) (domain.User, error) {
	return r.one(ctx, ` WHERE u.id = $1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.one(ctx, ` WHERE LOWER(u.email) = LOWER($1)`, email)
}

func (r *userRepository) one(ctx context.Context, where string, arg any) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := scanUser(r.db.QueryRowContext(ctx, selectUsers+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

func (r *userRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_active, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, user.Username, user.Email, user.PasswordHash, user.IsActive, string(user.Role), now, now).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrDuplicateEmail
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
