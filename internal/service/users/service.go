package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/query"
)

const (
	// MinPasswordLength: минимальная длина пароля.
	MinPasswordLength = 8
	// MaxPasswordBytes: bcrypt учитывает не больше 72 байт пароля.
	MaxPasswordBytes = 72
)

type CreateUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// UserView не содержит хеш пароля.
type UserView struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func toView(u domain.User) UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Service регистрирует пользователей и проверяет пароли.
type Service struct {
	users  domain.UserRepository
	cost   int
	logger *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithBcryptCost меняет стоимость bcrypt (в тестах bcrypt.MinCost).
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис пользователей.
func NewService(users domain.UserRepository, opts ...Option) *Service {
	s := &Service{
		users:  users,
		cost:   bcrypt.DefaultCost,
		logger: log.WithField("component", "users"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser регистрирует пользователя. Роль по умолчанию user.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (UserView, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return UserView{}, domain.ErrUsernameRequired
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return UserView{}, err
	}
	if len(req.Password) < MinPasswordLength {
		return UserView{}, fmt.Errorf("%w: need at least %d characters", domain.ErrPasswordTooShort, MinPasswordLength)
	}
	if len(req.Password) > MaxPasswordBytes {
		return UserView{}, fmt.Errorf("%w: at most %d bytes", domain.ErrPasswordTooLong, MaxPasswordBytes)
	}
	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return UserView{}, fmt.Errorf("%w: %q", domain.ErrRoleInvalid, role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return UserView{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.Create(ctx, domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
		Role:         role,
	})
	if err != nil {
		return UserView{}, err
	}

	s.logger.WithFields(log.Fields{"user_id": created.ID, "role": created.Role}).Info("user created")
	return toView(created), nil
}

// GetUser возвращает пользователя по id.
func (s *Service) GetUser(ctx context.Context, id int64) (UserView, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return UserView{}, err
	}
	return toView(u), nil
}

// GetUserByEmail ищет пользователя по email без учёта регистра.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (UserView, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return UserView{}, err
	}
	return toView(u), nil
}

// Authenticate проверяет пару email/пароль. Неизвестный email, неверный пароль и
// заблокированный пользователь дают одну и ту же ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (UserView, error) {
	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, domain.ErrUserNotFound) {
		return UserView{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return UserView{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.WithError(err).WithField("user_id", u.ID).Warn("stored password hash is unusable")
		}
		return UserView{}, domain.ErrInvalidCredentials
	}
	if !u.IsActive {
		return UserView{}, domain.ErrInvalidCredentials
	}
	return toView(u), nil
}

// GetUsers возвращает страницу пользователей.
func (s *Service) GetUsers(ctx context.Context, pageable query.Pageable, predicate domain.UserPredicate) (query.Page[UserView], error) {
	page, err := query.GetPage(ctx, s.users, pageable, predicate.Filter())
	if err != nil {
		return query.Page[UserView]{}, err
	}
	return query.Map(page, toView), nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", domain.ErrEmailInvalid, raw)
	}
	return email, nil
}
