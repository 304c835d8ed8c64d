package domain

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/query"
)

// Role — роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid проверяет, что роль поддерживается.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Имена полей пользователя для фильтрации и сортировки.
const (
	UserFieldID        = "id"
	UserFieldUsername  = "username"
	UserFieldEmail     = "email"
	UserFieldRole      = "role"
	UserFieldIsActive  = "isActive"
	UserFieldCreatedAt = "createdAt"
	UserFieldUpdatedAt = "updatedAt"
)

// User — учётная запись покупателя или администратора.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserPredicate фильтрует список пользователей; пустые поля не ограничивают выборку.
type UserPredicate struct {
	IDs          []int64
	Emails       []string
	EmailLike    string
	Usernames    []string
	UsernameLike string
	Roles        []Role
	IsActive     *bool
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
}

// Filter переводит предикат в условия хранилища.
func (p UserPredicate) Filter() query.Filter {
	roles := make([]string, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = string(r)
	}

	return query.Filter{}.
		Where(query.In(UserFieldID, p.IDs)).
		Where(query.In(UserFieldEmail, p.Emails), query.Contains(UserFieldEmail, p.EmailLike)).
		Where(query.In(UserFieldUsername, p.Usernames), query.Contains(UserFieldUsername, p.UsernameLike)).
		Where(query.In(UserFieldRole, roles)).
		Where(query.Equal(UserFieldIsActive, p.IsActive)).
		Where(query.Between(UserFieldCreatedAt, p.CreatedFrom, p.CreatedTo))
}
