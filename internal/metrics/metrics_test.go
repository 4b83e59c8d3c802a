package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keksclan/goBarista/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()

	c.AuthorizationSucceeded()
	c.AuthorizationSucceeded()
	c.AuthorizationFailed(authz.KindTokenExpired)
	c.KeySetRefreshed(nil)
	c.KeySetRefreshed(errors.New("timeout"))
	c.ObserveRequest("GET", "/drinks", 200, 3*time.Millisecond)

	assert.InDelta(t, 2, counterValue(t, c, "barista_token_validations_total", "result", "ok"), 0)
	assert.InDelta(t, 1, counterValue(t, c, "barista_token_validations_total", "reason", "TOKEN_EXPIRED"), 0)
	assert.InDelta(t, 1, counterValue(t, c, "barista_jwks_refreshes_total", "result", "ok"), 0)
	assert.InDelta(t, 1, counterValue(t, c, "barista_jwks_refreshes_total", "result", "failed"), 0)
	assert.InDelta(t, 1, counterValue(t, c, "barista_http_requests_total", "route", "/drinks"), 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.AuthorizationFailed(authz.KindPermissionDenied)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `barista_token_validations_total{reason="PERMISSION_DENIED",result="failed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.AuthorizationSucceeded()
	assert.InDelta(t, 0, counterValue(t, b, "barista_token_validations_total", "result", "ok"), 0)
}

// counterValue returns the counter in family name whose label key equals value.
func counterValue(t *testing.T, c *Collector, name, key, value string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == key && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
