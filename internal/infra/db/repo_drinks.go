package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"coffeeshop/internal/domain"

	"gorm.io/gorm"
)

type DrinkRepository struct {
	db *gorm.DB
}

func NewDrinkRepository(db *gorm.DB) *DrinkRepository {
	return &DrinkRepository{db: db}
}

// SeedDrinks is the menu installed by Store.Reset.
func SeedDrinks() []domain.Drink {
	return []domain.Drink{{
		Title:  "water",
		Recipe: domain.Recipe{{Name: "water", Color: "blue", Parts: 1}},
	}}
}

func (r *DrinkRepository) List(ctx context.Context) ([]domain.Drink, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []DrinkModel
	if err := r.db.WithContext(ctx).Order("id asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Drink, 0, len(models))
	for _, model := range models {
		drink, err := drinkFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, drink)
	}
	return out, nil
}

func (r *DrinkRepository) Get(ctx context.Context, id int64) (*domain.Drink, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model DrinkModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	drink, err := drinkFromModel(model)
	if err != nil {
		return nil, err
	}
	return &drink, nil
}

func (r *DrinkRepository) Create(ctx context.Context, drink domain.Drink) (domain.Drink, error) {
	if r.db == nil {
		return domain.Drink{}, errDBUnavailable
	}
	recipe, err := json.Marshal(drink.Recipe)
	if err != nil {
		return domain.Drink{}, err
	}
	model := DrinkModel{Title: drink.Title, Recipe: string(recipe)}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.Drink{}, fmt.Errorf("%w: drink %q already exists", domain.ErrConflict, drink.Title)
		}
		return domain.Drink{}, err
	}
	drink.ID = model.ID
	return drink, nil
}

func (r *DrinkRepository) Update(ctx context.Context, drink domain.Drink) error {
	if r.db == nil {
		return errDBUnavailable
	}
	recipe, err := json.Marshal(drink.Recipe)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&DrinkModel{}).
		Where("id = ?", drink.ID).
		Updates(map[string]any{"title": drink.Title, "recipe": string(recipe)})
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return fmt.Errorf("%w: drink %q already exists", domain.ErrConflict, drink.Title)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DrinkRepository) Delete(ctx context.Context, id int64) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).Delete(&DrinkModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func drinkFromModel(model DrinkModel) (domain.Drink, error) {
	var recipe domain.Recipe
	if err := json.Unmarshal([]byte(model.Recipe), &recipe); err != nil {
		return domain.Drink{}, fmt.Errorf("decode recipe for drink %d: %w", model.ID, err)
	}
	return domain.Drink{ID: model.ID, Title: model.Title, Recipe: recipe}, nil
}
