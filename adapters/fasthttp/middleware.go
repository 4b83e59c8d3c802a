// Package baristafasthttp wraps fasthttp request handlers with a permission
// check.
//
// On success the verified claims are stored as the user value
// ClaimsUserValueKey. On failure the handler is not called and the response
// carries the authorization error as JSON.
//
// Concurrency: All exported functions are safe for concurrent use.
package baristafasthttp

import (
	"encoding/json"

	"github.com/keksclan/goBarista/adapters/common"
	"github.com/keksclan/goBarista/authz"
	"github.com/valyala/fasthttp"
)

const ClaimsUserValueKey = "claims"

// RequiresAuth runs next only when the request's bearer token carries
// permission.
func RequiresAuth(a common.Authorizer, permission string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		header := string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))
		claims, err := a.Authorize(ctx, header, permission)
		if err != nil {
			status, body := common.FromError(err)
			writeJSON(ctx, status, body)
			return
		}
		ctx.SetUserValue(ClaimsUserValueKey, claims)
		next(ctx)
	}
}

// ClaimsFromCtx returns the claims stored by RequiresAuth, or nil.
func ClaimsFromCtx(ctx *fasthttp.RequestCtx) authz.Claims {
	v, _ := ctx.UserValue(ClaimsUserValueKey).(authz.Claims)
	return v
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	b, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(b)
}
