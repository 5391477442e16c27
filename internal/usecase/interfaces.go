package usecase

import (
	"context"

	"coffeeshop/internal/domain"
)

type DrinkRepository interface {
	List(ctx context.Context) ([]domain.Drink, error)
	Get(ctx context.Context, id int64) (*domain.Drink, error)
	Create(ctx context.Context, drink domain.Drink) (domain.Drink, error)
	Update(ctx context.Context, drink domain.Drink) error
	Delete(ctx context.Context, id int64) error
}
