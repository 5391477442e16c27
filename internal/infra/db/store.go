package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coffeeshop/internal/config"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	case config.DriverPostgres, "":
		if cfg.PostgresDSN == "" {
			slog.Warn("POSTGRES_DSN not set; starting without a database")
			return &Store{DB: nil}, nil
		}
		dialector = postgres.Open(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
	return Open(dialector)
}

// Open connects with duplicate-key errors translated to gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector) (*Store, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialector.Name(), err)
	}
	return &Store{DB: gdb}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	return s.DB.WithContext(ctx).AutoMigrate(&DrinkModel{})
}

// Reset drops and recreates the drinks table, then seeds the starter menu.
func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	tx := s.DB.WithContext(ctx)
	if err := tx.Migrator().DropTable(&DrinkModel{}); err != nil {
		return fmt.Errorf("drop drinks: %w", err)
	}
	if err := tx.AutoMigrate(&DrinkModel{}); err != nil {
		return fmt.Errorf("create drinks: %w", err)
	}
	repo := NewDrinkRepository(s.DB)
	for _, drink := range SeedDrinks() {
		if _, err := repo.Create(ctx, drink); err != nil {
			return fmt.Errorf("seed drinks: %w", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func IsUnavailable(err error) bool {
	return errors.Is(err, errDBUnavailable)
}
