package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"coffeeshop/internal/config"
	"coffeeshop/internal/domain"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBDriver = config.DriverSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "drinks.db")
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func latte() domain.Drink {
	return domain.Drink{
		Title: "latte",
		Recipe: domain.Recipe{
			{Name: "espresso", Color: "brown", Parts: 1},
			{Name: "milk", Color: "white", Parts: 3},
		},
	}
}

func TestDrinkRepository_CreateGetList(t *testing.T) {
	repo := NewDrinkRepository(newSQLiteStore(t).DB)
	ctx := context.Background()

	created, err := repo.Create(ctx, latte())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected id to be assigned")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "latte" || len(got.Recipe) != 2 || got.Recipe[1].Name != "milk" {
		t.Fatalf("unexpected drink: %+v", got)
	}

	if _, err := repo.Create(ctx, domain.Drink{Title: "mocha", Recipe: domain.Recipe{{Name: "cocoa", Color: "brown", Parts: 1}}}); err != nil {
		t.Fatalf("create second: %v", err)
	}
	drinks, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(drinks) != 2 || drinks[0].Title != "latte" || drinks[1].Title != "mocha" {
		t.Fatalf("unexpected list: %+v", drinks)
	}
}

func TestDrinkRepository_DuplicateTitleConflicts(t *testing.T) {
	repo := NewDrinkRepository(newSQLiteStore(t).DB)
	ctx := context.Background()

	if _, err := repo.Create(ctx, latte()); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := repo.Create(ctx, latte())
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDrinkRepository_UpdateAndDelete(t *testing.T) {
	repo := NewDrinkRepository(newSQLiteStore(t).DB)
	ctx := context.Background()

	created, err := repo.Create(ctx, latte())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created.Title = "flat white"
	if err := repo.Update(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "flat white" {
		t.Fatalf("expected updated title, got %s", got.Title)
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDrinkRepository_MissingRows(t *testing.T) {
	repo := NewDrinkRepository(newSQLiteStore(t).DB)
	ctx := context.Background()

	if _, err := repo.Get(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get: expected not found, got %v", err)
	}
	if err := repo.Update(ctx, domain.Drink{ID: 42, Title: "ghost", Recipe: latte().Recipe}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	if err := repo.Delete(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
}

func TestStoreResetSeedsMenu(t *testing.T) {
	store := newSQLiteStore(t)
	repo := NewDrinkRepository(store.DB)
	ctx := context.Background()

	if _, err := repo.Create(ctx, latte()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	drinks, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(drinks) != 1 || drinks[0].Title != "water" {
		t.Fatalf("expected seeded menu, got %+v", drinks)
	}
	if drinks[0].Recipe[0].Color != "blue" || drinks[0].Recipe[0].Parts != 1 {
		t.Fatalf("unexpected seed recipe: %+v", drinks[0].Recipe)
	}
}

func TestNoDatabaseMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.PostgresDSN = ""
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.DB != nil {
		t.Fatal("expected nil db without dsn")
	}
	repo := NewDrinkRepository(store.DB)
	if _, err := repo.List(context.Background()); !IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if err := store.Migrate(context.Background()); !IsUnavailable(err) {
		t.Fatalf("expected unavailable migrate, got %v", err)
	}
}
