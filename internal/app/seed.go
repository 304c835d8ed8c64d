package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/users"
)

// SeedFile — файл начального наполнения каталога и пользователей.
type SeedFile struct {
	Products []SeedProduct `yaml:"products"`
	Users    []SeedUser    `yaml:"users"`
}

type SeedProduct struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Price       string      `yaml:"price"`
	StockCount  int         `yaml:"stockCount"`
	Images      []SeedImage `yaml:"images"`
}

type SeedImage struct {
	URL     string `yaml:"url"`
	AltText string `yaml:"altText"`
	IsMain  bool   `yaml:"isMain"`
}

// SeedUser содержит открытый пароль; в хранилище попадает только bcrypt-хеш.
type SeedUser struct {
	Username string      `yaml:"username"`
	Email    string      `yaml:"email"`
	Password string      `yaml:"password"`
	Role     domain.Role `yaml:"role"`
}

// SeedResult считает созданные и пропущенные записи.
type SeedResult struct {
	Products     int
	Images       int
	Users        int
	SkippedUsers int
}

// ParseSeed читает YAML. Неизвестные поля считаются ошибкой.
func ParseSeed(r io.Reader) (SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return SeedFile{}, nil
		}
		return SeedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	return seed, nil
}

// LoadSeedFile читает seed из файла.
func LoadSeedFile(path string) (SeedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedFile{}, err
	}
	defer f.Close()
	return ParseSeed(f)
}

// Seeder наполняет хранилище через сервисы, поэтому данные проходят ту же валидацию, что и API.
type Seeder struct {
	catalog *catalog.Service
	users   *users.Service
	logger  *log.Entry
}

// NewSeeder создаёт seeder.
func NewSeeder(catalogSvc *catalog.Service, usersSvc *users.Service, logger *log.Entry) *Seeder {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}
	return &Seeder{catalog: catalogSvc, users: usersSvc, logger: logger}
}

// Apply создаёт товары и пользователей. Пользователь с уже занятым email пропускается,
// любая другая ошибка прерывает загрузку.
func (s *Seeder) Apply(ctx context.Context, seed SeedFile) (SeedResult, error) {
	var res SeedResult

	for i, p := range seed.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return res, fmt.Errorf("product #%d %q: price: %w", i+1, p.Name, err)
		}
		product, err := s.catalog.CreateProduct(ctx, catalog.CreateProductRequest{
			Name:        p.Name,
			Description: p.Description,
			Price:       price,
			StockCount:  p.StockCount,
		})
		if err != nil {
			return res, fmt.Errorf("product #%d %q: %w", i+1, p.Name, err)
		}
		res.Products++

		for j, img := range p.Images {
			if _, err := s.catalog.AddImage(ctx, product.ID, catalog.AddImageRequest{
				URL:       img.URL,
				AltText:   img.AltText,
				SortOrder: j,
				IsMain:    img.IsMain,
			}); err != nil {
				return res, fmt.Errorf("product %q image #%d: %w", p.Name, j+1, err)
			}
			res.Images++
		}
	}

	for _, u := range seed.Users {
		_, err := s.users.CreateUser(ctx, users.CreateUserRequest{
			Username: u.Username,
			Email:    u.Email,
			Password: u.Password,
			Role:     u.Role,
		})
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			s.logger.WithField("email", u.Email).Info("user already exists, skipping")
			res.SkippedUsers++
		case err != nil:
			return res, fmt.Errorf("user %q: %w", u.Email, err)
		default:
			res.Users++
		}
	}

	s.logger.WithFields(log.Fields{
		"products":      res.Products,
		"images":        res.Images,
		"users":         res.Users,
		"skipped_users": res.SkippedUsers,
	}).Info("seed applied")
	return res, nil
}
