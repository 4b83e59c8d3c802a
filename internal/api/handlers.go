package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/keksclan/goBarista/internal/store"
)

type drinkInput struct {
	Title  string       `json:"title"`
	Recipe store.Recipe `json:"recipe"`
}

func decodeInput(c *fiber.Ctx) (drinkInput, error) {
	var in drinkInput
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return in, fiber.ErrBadRequest
	}
	return in, nil
}

func (s *Server) listDrinks(c *fiber.Ctx) error {
	drinks, err := s.store.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]store.ShortDrink, 0, len(drinks))
	for _, d := range drinks {
		out = append(out, d.Short())
	}
	return c.JSON(fiber.Map{"success": true, "drinks": out})
}

func (s *Server) listDrinksDetail(c *fiber.Ctx) error {
	drinks, err := s.store.List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]store.LongDrink, 0, len(drinks))
	for _, d := range drinks {
		out = append(out, d.Long())
	}
	return c.JSON(fiber.Map{"success": true, "drinks": out})
}

func (s *Server) createDrink(c *fiber.Ctx) error {
	in, err := decodeInput(c)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Title) == "" || len(in.Recipe) == 0 {
		return fiber.ErrUnprocessableEntity
	}

	d, err := s.store.Create(c.UserContext(), store.Drink{Title: in.Title, Recipe: in.Recipe})
	if err != nil {
		s.logger.Info("create drink rejected", slog.String("error", err.Error()))
		return fiber.ErrBadRequest
	}
	return c.JSON(fiber.Map{"success": true, "drinks": []store.LongDrink{d.Long()}})
}

func (s *Server) updateDrink(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrNotFound
	}
	in, err := decodeInput(c)
	if err != nil {
		return err
	}

	d, err := s.store.Get(c.UserContext(), int64(id))
	if errors.Is(err, store.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return err
	}

	if strings.TrimSpace(in.Title) != "" {
		d.Title = in.Title
	}
	if len(in.Recipe) > 0 {
		d.Recipe = in.Recipe
	}

	d, err = s.store.Update(c.UserContext(), d)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		s.logger.Info("update drink rejected", slog.Int("id", id), slog.String("error", err.Error()))
		return fiber.ErrBadRequest
	}
	return c.JSON(fiber.Map{"success": true, "drinks": []store.LongDrink{d.Long()}})
}

func (s *Server) deleteDrink(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrNotFound
	}
	err = s.store.Delete(c.UserContext(), int64(id))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.ErrNotFound
	case err != nil:
		s.logger.Info("delete drink rejected", slog.Int("id", id), slog.String("error", err.Error()))
		return fiber.ErrBadRequest
	}
	return c.JSON(fiber.Map{"success": true, "delete": id})
}
