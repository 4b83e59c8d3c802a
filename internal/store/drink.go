// Package store persists drinks.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxTitleLength = 80

var (
	ErrNotFound = errors.New("drink not found")
	// ErrConflict reports a duplicate title.
	ErrConflict = errors.New("drink title already exists")
	ErrInvalid  = errors.New("invalid drink")
)

type Ingredient struct {
	Name  string  `json:"name"`
	Color string  `json:"color"`
	Parts float64 `json:"parts"`
}

// Recipe is an ordered list of ingredients. On input a single ingredient
// object is accepted in place of a list.
type Recipe []Ingredient

func (r *Recipe) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var one Ingredient
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*r = Recipe{one}
		return nil
	}
	var many []Ingredient
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*r = many
	return nil
}

type Drink struct {
	ID     int64
	Title  string
	Recipe Recipe
}

// Validate checks the fields a stored drink must have.
func (d Drink) Validate() error {
	title := strings.TrimSpace(d.Title)
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", ErrInvalid)
	case utf8.RuneCountInString(d.Title) > MaxTitleLength:
		return fmt.Errorf("%w: title longer than %d characters", ErrInvalid, MaxTitleLength)
	case len(d.Recipe) == 0:
		return fmt.Errorf("%w: recipe is required", ErrInvalid)
	}
	return nil
}

type ShortIngredient struct {
	Color string  `json:"color"`
	Parts float64 `json:"parts"`
}

// ShortDrink is the public projection: ingredient names are withheld.
type ShortDrink struct {
	ID     int64             `json:"id"`
	Title  string            `json:"title"`
	Recipe []ShortIngredient `json:"recipe"`
}

type LongDrink struct {
	ID     int64        `json:"id"`
	Title  string       `json:"title"`
	Recipe []Ingredient `json:"recipe"`
}

func (d Drink) Short() ShortDrink {
	out := ShortDrink{ID: d.ID, Title: d.Title, Recipe: make([]ShortIngredient, 0, len(d.Recipe))}
	for _, in := range d.Recipe {
		out.Recipe = append(out.Recipe, ShortIngredient{Color: in.Color, Parts: in.Parts})
	}
	return out
}

func (d Drink) Long() LongDrink {
	recipe := make([]Ingredient, len(d.Recipe))
	copy(recipe, d.Recipe)
	return LongDrink{ID: d.ID, Title: d.Title, Recipe: recipe}
}

// Seed is the drink Reset leaves behind.
func Seed() Drink {
	return Drink{Title: "water", Recipe: Recipe{{Name: "water", Color: "blue", Parts: 1}}}
}

func encodeRecipe(r Recipe) (string, error) {
	b, err := json.Marshal([]Ingredient(r))
	if err != nil {
		return "", fmt.Errorf("encode recipe: %w", err)
	}
	return string(b), nil
}

func decodeRecipe(s string) (Recipe, error) {
	var r Recipe
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	return r, nil
}
