package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"coffeeshop/internal/domain"
)

type DrinkService struct {
	Drinks DrinkRepository
	Logger *slog.Logger
}

type CreateDrinkInput struct {
	Title  string
	Recipe json.RawMessage
}

// UpdateDrinkInput leaves a field unchanged when it is nil.
type UpdateDrinkInput struct {
	Title  *string
	Recipe json.RawMessage
}

func NewDrinkService(drinks DrinkRepository, logger *slog.Logger) *DrinkService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DrinkService{Drinks: drinks, Logger: logger}
}

func (s *DrinkService) ListShort(ctx context.Context) ([]domain.DrinkShort, error) {
	drinks, err := s.Drinks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DrinkShort, 0, len(drinks))
	for _, drink := range drinks {
		out = append(out, drink.Short())
	}
	return out, nil
}

func (s *DrinkService) ListLong(ctx context.Context) ([]domain.DrinkLong, error) {
	drinks, err := s.Drinks.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DrinkLong, 0, len(drinks))
	for _, drink := range drinks {
		out = append(out, drink.Long())
	}
	return out, nil
}

// Create adds a drink and returns the whole menu in long form.
func (s *DrinkService) Create(ctx context.Context, input CreateDrinkInput) ([]domain.DrinkLong, error) {
	title, err := domain.NormalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	recipe, err := domain.ParseRecipe(input.Recipe)
	if err != nil {
		return nil, err
	}
	created, err := s.Drinks.Create(ctx, domain.Drink{Title: title, Recipe: recipe})
	if err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "drink created", "drink_id", created.ID)
	return s.ListLong(ctx)
}

func (s *DrinkService) Update(ctx context.Context, id int64, input UpdateDrinkInput) ([]domain.DrinkLong, error) {
	if input.Title == nil && input.Recipe == nil {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidDrink)
	}
	current, err := s.Drinks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	drink := *current
	if input.Title != nil {
		title, err := domain.NormalizeTitle(*input.Title)
		if err != nil {
			return nil, err
		}
		drink.Title = title
	}
	if input.Recipe != nil {
		recipe, err := domain.ParseRecipe(input.Recipe)
		if err != nil {
			return nil, err
		}
		drink.Recipe = recipe
	}
	if err := s.Drinks.Update(ctx, drink); err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "drink updated", "drink_id", id)
	return s.ListLong(ctx)
}

func (s *DrinkService) Delete(ctx context.Context, id int64) (int64, error) {
	if err := s.Drinks.Delete(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger().ErrorContext(ctx, "drink delete failed", "drink_id", id, "error", err)
		}
		return 0, err
	}
	s.logger().InfoContext(ctx, "drink deleted", "drink_id", id)
	return id, nil
}

func (s *DrinkService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
