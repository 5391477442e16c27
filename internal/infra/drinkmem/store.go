package drinkmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"coffeeshop/internal/domain"
)

// Store is an in-process drink repository. Titles are unique as in the
// database-backed store.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	drinks map[int64]domain.Drink
}

func New(seed ...domain.Drink) *Store {
	s := &Store{
		nextID: 1,
		drinks: make(map[int64]domain.Drink),
	}
	for _, drink := range seed {
		_, _ = s.Create(context.Background(), drink)
	}
	return s
}

func (s *Store) List(ctx context.Context) ([]domain.Drink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Drink, 0, len(s.drinks))
	for _, drink := range s.drinks {
		out = append(out, cloneDrink(drink))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Drink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	drink, ok := s.drinks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneDrink(drink)
	return &out, nil
}

func (s *Store) Create(ctx context.Context, drink domain.Drink) (domain.Drink, error) {
	if err := ctx.Err(); err != nil {
		return domain.Drink{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.titleTaken(drink.Title, 0) {
		return domain.Drink{}, fmt.Errorf("%w: drink %q already exists", domain.ErrConflict, drink.Title)
	}
	drink = cloneDrink(drink)
	drink.ID = s.nextID
	s.nextID++
	s.drinks[drink.ID] = drink
	return cloneDrink(drink), nil
}

func (s *Store) Update(ctx context.Context, drink domain.Drink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drinks[drink.ID]; !ok {
		return domain.ErrNotFound
	}
	if s.titleTaken(drink.Title, drink.ID) {
		return fmt.Errorf("%w: drink %q already exists", domain.ErrConflict, drink.Title)
	}
	s.drinks[drink.ID] = cloneDrink(drink)
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drinks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.drinks, id)
	return nil
}

func (s *Store) titleTaken(title string, except int64) bool {
	for id, existing := range s.drinks {
		if id != except && existing.Title == title {
			return true
		}
	}
	return false
}

func cloneDrink(drink domain.Drink) domain.Drink {
	drink.Recipe = append(domain.Recipe(nil), drink.Recipe...)
	return drink
}
