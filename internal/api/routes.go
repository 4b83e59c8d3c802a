package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	baristafiber "github.com/keksclan/goBarista/adapters/fiber"
)

const (
	PermGetDrinksDetail = "get:drinks-detail"
	PermPostDrinks      = "post:drinks"
	PermPatchDrinks     = "patch:drinks"
	PermDeleteDrinks    = "delete:drinks"
)

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	s.app.Get("/drinks", s.listDrinks)
	s.app.Get("/drinks-detail", baristafiber.RequiresAuth(s.auth, PermGetDrinksDetail), s.listDrinksDetail)
	s.app.Post("/drinks", baristafiber.RequiresAuth(s.auth, PermPostDrinks), s.createDrink)
	s.app.Patch("/drinks/:id<int>", baristafiber.RequiresAuth(s.auth, PermPatchDrinks), s.updateDrink)
	s.app.Delete("/drinks/:id<int>", baristafiber.RequiresAuth(s.auth, PermDeleteDrinks), s.deleteDrink)
}
