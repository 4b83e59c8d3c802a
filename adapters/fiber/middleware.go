// Package baristafiber provides Fiber middleware that enforces a permission
// on a route.
//
// On success the verified claims are stored in c.Locals under LocalsKey. On
// failure the request is answered with the authorization error's status and
// the common JSON body.
//
// Concurrency: All exported functions are safe for concurrent use.
package baristafiber

import (
	"github.com/gofiber/fiber/v2"
	"github.com/keksclan/goBarista/adapters/common"
	"github.com/keksclan/goBarista/authz"
)

// LocalsKey is the c.Locals key holding authz.Claims.
const LocalsKey = "claims"

// RequiresAuth returns middleware that lets the request through only when
// its bearer token carries permission.
func RequiresAuth(a common.Authorizer, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := a.Authorize(c.UserContext(), c.Get(fiber.HeaderAuthorization), permission)
		if err != nil {
			status, body := common.FromError(err)
			return c.Status(status).JSON(body)
		}
		c.Locals(LocalsKey, claims)
		return c.Next()
	}
}

// Wrap is RequiresAuth for a single handler that takes the claims directly.
func Wrap(a common.Authorizer, permission string, fn func(c *fiber.Ctx, claims authz.Claims) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := a.Authorize(c.UserContext(), c.Get(fiber.HeaderAuthorization), permission)
		if err != nil {
			status, body := common.FromError(err)
			return c.Status(status).JSON(body)
		}
		c.Locals(LocalsKey, claims)
		return fn(c, claims)
	}
}

// ClaimsFromLocals returns the claims stored by the middleware, or nil.
func ClaimsFromLocals(c *fiber.Ctx) authz.Claims {
	v, _ := c.Locals(LocalsKey).(authz.Claims)
	return v
}
