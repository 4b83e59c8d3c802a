package baristafasthttp

import (
	"context"
	"net"
	"testing"

	"github.com/keksclan/goBarista/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type stubAuthorizer struct {
	claims authz.Claims
	err    error

	gotHeader, gotPerm string
}

func (s *stubAuthorizer) Authorize(_ context.Context, header, required string) (authz.Claims, error) {
	s.gotHeader, s.gotPerm = header, required
	return s.claims, s.err
}

func serve(t *testing.T, h fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func do(t *testing.T, c *fasthttp.Client, header string) (int, string) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://barista.test/drinks-detail")
	if header != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, header)
	}
	require.NoError(t, c.Do(req, resp))
	return resp.StatusCode(), string(resp.Body())
}

func TestRequiresAuthGranted(t *testing.T) {
	stub := &stubAuthorizer{claims: authz.Claims{"sub": "auth0|barista"}}
	c := serve(t, RequiresAuth(stub, "get:drinks-detail", func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(ClaimsFromCtx(ctx).Subject())
	}))

	status, body := do(t, c, "Bearer tok")
	assert.Equal(t, 200, status)
	assert.Equal(t, "auth0|barista", body)
	assert.Equal(t, "Bearer tok", stub.gotHeader)
	assert.Equal(t, "get:drinks-detail", stub.gotPerm)
}

func TestRequiresAuthDenied(t *testing.T) {
	stub := &stubAuthorizer{err: authz.ErrPermissionDenied}
	called := false
	c := serve(t, RequiresAuth(stub, "delete:drinks", func(*fasthttp.RequestCtx) { called = true }))

	status, body := do(t, c, "Bearer tok")
	assert.Equal(t, 403, status)
	assert.JSONEq(t, `{"success":false,"error":403,"message":"Permission not found."}`, body)
	assert.False(t, called)
}

func TestRequiresAuthMissingHeader(t *testing.T) {
	_, extractErr := authz.ExtractToken("")
	stub := &stubAuthorizer{err: extractErr}
	c := serve(t, RequiresAuth(stub, "get:drinks-detail", func(*fasthttp.RequestCtx) {}))

	status, _ := do(t, c, "")
	assert.Equal(t, 401, status)
	assert.Empty(t, stub.gotHeader)
}
