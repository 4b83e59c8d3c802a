package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keksclan/goBarista/authz"
	"github.com/keksclan/goBarista/internal/metrics"
	"github.com/keksclan/goBarista/internal/store"
	"github.com/keksclan/goBarista/internal/testidp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv *Server
	idp *testidp.IdP
	st  store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idp := testidp.New(t, "key1")

	st, err := store.NewSQLiteStore(t.Context(), filepath.Join(t.TempDir(), "drinks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Reset(t.Context()))

	m := metrics.New()
	v, err := authz.New(authz.Config{
		Issuer:   idp.Issuer(),
		Audience: testidp.Audience,
		JWKSURL:  idp.JWKSURL(),
	}, authz.WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	return &fixture{srv: New(Config{}, st, v, m, nil), idp: idp, st: st}
}

func (f *fixture) token(perms ...string) string {
	return f.idp.Bearer("key1", f.idp.Claims(perms...))
}

func (f *fixture) do(t *testing.T, method, path, auth, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestListDrinksIsPublic(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/drinks", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	drinks := body["drinks"].([]any)
	require.Len(t, drinks, 1)
	water := drinks[0].(map[string]any)
	assert.Equal(t, "water", water["title"])
	recipe := water["recipe"].([]any)
	assert.Equal(t, map[string]any{"color": "blue", "parts": float64(1)}, recipe[0])
}

func TestListDrinksDetail(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/drinks-detail", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, map[string]any{"success": false, "error": float64(401), "message": "Authorization header is expected."}, body)

	status, body = f.do(t, http.MethodGet, "/drinks-detail", f.token("post:drinks"), "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Permission not found.", body["message"])

	status, body = f.do(t, http.MethodGet, "/drinks-detail", f.token("get:drinks-detail"), "")
	require.Equal(t, http.StatusOK, status)
	water := body["drinks"].([]any)[0].(map[string]any)
	recipe := water["recipe"].([]any)
	assert.Equal(t, map[string]any{"name": "water", "color": "blue", "parts": float64(1)}, recipe[0])
}

func TestCreateDrink(t *testing.T) {
	f := newFixture(t)
	auth := f.token("post:drinks")

	status, body := f.do(t, http.MethodPost, "/drinks", auth,
		`{"title":"latte","recipe":{"name":"milk","color":"white","parts":3}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	created := body["drinks"].([]any)
	require.Len(t, created, 1)
	latte := created[0].(map[string]any)
	assert.Equal(t, "latte", latte["title"])
	assert.NotZero(t, latte["id"])

	status, body = f.do(t, http.MethodPost, "/drinks", auth,
		`{"title":"latte","recipe":[{"name":"milk","color":"white","parts":1}]}`)
	assert.Equal(t, http.StatusBadRequest, status, "duplicate title")
	assert.Equal(t, "Bad request", body["message"])

	status, _ = f.do(t, http.MethodPost, "/drinks", auth, `{"title":`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = f.do(t, http.MethodPost, "/drinks", auth, `{"title":"mocha"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "Request Unprocessable", body["message"])

	status, _ = f.do(t, http.MethodPost, "/drinks", f.token("get:drinks-detail"), `{"title":"x","recipe":[]}`)
	assert.Equal(t, http.StatusForbidden, status)

	drinks, err := f.st.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, drinks, 2)
}

func TestUpdateDrink(t *testing.T) {
	f := newFixture(t)
	auth := f.token("patch:drinks")
	seed, err := f.st.List(t.Context())
	require.NoError(t, err)
	id := seed[0].ID

	status, body := f.do(t, http.MethodPatch, "/drinks/"+itoa(id), auth, `{"title":"sparkling water"}`)
	require.Equal(t, http.StatusOK, status)
	updated := body["drinks"].([]any)[0].(map[string]any)
	assert.Equal(t, "sparkling water", updated["title"])

	got, err := f.st.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "sparkling water", got.Title)
	assert.Equal(t, store.Seed().Recipe, got.Recipe, "recipe untouched when omitted")

	status, _ = f.do(t, http.MethodPatch, "/drinks/"+itoa(id), auth, `{"title":"","recipe":[{"name":"ice","color":"white","parts":2}]}`)
	require.Equal(t, http.StatusOK, status)
	got, err = f.st.Get(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "sparkling water", got.Title)
	assert.Equal(t, "ice", got.Recipe[0].Name)

	status, body = f.do(t, http.MethodPatch, "/drinks/9999", auth, `{"title":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", body["message"])

	status, _ = f.do(t, http.MethodPatch, "/drinks/abc", auth, `{"title":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPatch, "/drinks/"+itoa(id), "", `{"title":"anon"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDeleteDrink(t *testing.T) {
	f := newFixture(t)
	seed, err := f.st.List(t.Context())
	require.NoError(t, err)
	id := seed[0].ID

	status, _ := f.do(t, http.MethodDelete, "/drinks/"+itoa(id), f.token("patch:drinks"), "")
	assert.Equal(t, http.StatusForbidden, status)

	auth := f.token("delete:drinks")
	status, body := f.do(t, http.MethodDelete, "/drinks/"+itoa(id), auth, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"success": true, "delete": float64(id)}, body)

	status, _ = f.do(t, http.MethodDelete, "/drinks/"+itoa(id), auth, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestErrorBodies(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, map[string]any{"success": false, "error": float64(404), "message": "Not Found"}, body)

	status, body = f.do(t, http.MethodPut, "/drinks", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, false, body["success"])
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	status, body := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	_, _ = f.do(t, http.MethodGet, "/drinks-detail", f.token("get:drinks-detail"), "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(raw)
	assert.Regexp(t, `barista_token_validations_total\{[^}]*result="ok"[^}]*\} 1`, text)
	assert.Contains(t, text, `barista_http_requests_total{method="GET",route="/drinks-detail",status="200"} 1`)
	assert.Contains(t, text, `barista_jwks_refreshes_total{result="ok"} 1`)
}

func TestCORS(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/drinks", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
