package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxTitleLength = 80

type Ingredient struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Parts int    `json:"parts"`
}

type Recipe []Ingredient

type Drink struct {
	ID     int64
	Title  string
	Recipe Recipe
}

type ShortIngredient struct {
	Color string `json:"color"`
	Parts int    `json:"parts"`
}

// DrinkShort is the public menu representation; ingredient names are hidden.
type DrinkShort struct {
	ID     int64             `json:"id"`
	Title  string            `json:"title"`
	Recipe []ShortIngredient `json:"recipe"`
}

type DrinkLong struct {
	ID     int64        `json:"id"`
	Title  string       `json:"title"`
	Recipe []Ingredient `json:"recipe"`
}

func (d Drink) Short() DrinkShort {
	recipe := make([]ShortIngredient, 0, len(d.Recipe))
	for _, ing := range d.Recipe {
		recipe = append(recipe, ShortIngredient{Color: ing.Color, Parts: ing.Parts})
	}
	return DrinkShort{ID: d.ID, Title: d.Title, Recipe: recipe}
}

func (d Drink) Long() DrinkLong {
	recipe := make([]Ingredient, len(d.Recipe))
	copy(recipe, d.Recipe)
	return DrinkLong{ID: d.ID, Title: d.Title, Recipe: recipe}
}

func NormalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidDrink)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidDrink, MaxTitleLength)
	}
	return title, nil
}

// ParseRecipe accepts either a list of ingredients or a single ingredient
// object.
func ParseRecipe(raw json.RawMessage) (Recipe, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: recipe is required", ErrInvalidDrink)
	}
	var recipe Recipe
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &recipe); err != nil {
			return nil, fmt.Errorf("%w: recipe: %v", ErrInvalidDrink, err)
		}
	case '{':
		var ing Ingredient
		if err := json.Unmarshal(trimmed, &ing); err != nil {
			return nil, fmt.Errorf("%w: recipe: %v", ErrInvalidDrink, err)
		}
		recipe = Recipe{ing}
	default:
		return nil, fmt.Errorf("%w: recipe must be an object or a list", ErrInvalidDrink)
	}
	if err := recipe.Validate(); err != nil {
		return nil, err
	}
	return recipe, nil
}

func (r Recipe) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: recipe must have at least one ingredient", ErrInvalidDrink)
	}
	for i, ing := range r {
		if strings.TrimSpace(ing.Name) == "" {
			return fmt.Errorf("%w: ingredient %d: name is required", ErrInvalidDrink, i)
		}
		if ing.Parts <= 0 {
			return fmt.Errorf("%w: ingredient %d: parts must be positive", ErrInvalidDrink, i)
		}
	}
	return nil
}
