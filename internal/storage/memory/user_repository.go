package memory

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

var userFields = fieldSet[domain.User]{
	domain.UserFieldID:        func(u domain.User) any { return u.ID },
	domain.UserFieldUsername:  func(u domain.User) any { return u.Username },
	domain.UserFieldEmail:     func(u domain.User) any { return u.Email },
	domain.UserFieldRole:      func(u domain.User) any { return string(u.Role) },
	domain.UserFieldIsActive:  func(u domain.User) any { return u.IsActive },
	domain.UserFieldCreatedAt: func(u domain.User) any { return u.CreatedAt },
	domain.UserFieldUpdatedAt: func(u domain.User) any { return u.UpdatedAt },
}

type userRepositoryInMemory struct {
	s *Store
}

// NewUserRepository возвращает in-memory репозиторий пользователей.
func NewUserRepository(s *Store) domain.UserRepository {
	return &userRepositoryInMemory{s: s}
}

func (r *userRepositoryInMemory) Sortable(field string) bool {
	return userFields.sortable(field)
}

func (r *userRepositoryInMemory) Count(_ context.Context, filter query.Filter) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched, err := selectItems(r.s.userList(), filter, userFields)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (r *userRepositoryInMemory) Find(_ context.Context, filter query.Filter, w query.Window) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	matched, err := selectItems(r.s.userList(), filter, userFields)
	if err != nil {
		return nil, err
	}
	if err := sortItems(matched, w.Sort, userFields); err != nil {
		return nil, err
	}
	return window(matched, w), nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id int64) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *userRepositoryInMemory) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, user := range r.s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.User{}, domain.ErrDuplicateEmail
		}
	}

	now := r.s.now()
	r.s.lastUserID++
	user.ID = r.s.lastUserID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = user
	return user, nil
}

func (s *Store) userList() []domain.User {
	items := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		items = append(items, u)
	}
	return items
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
