package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/v1/deployments/{chainId}/{address}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})
	return r
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	Init(true, "test")
	r := newRouter()

	for _, path := range []string{
		"/api/v1/deployments/1/0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"/api/v1/deployments/31337/0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
		"/health",
		"/wp-admin/setup.php",
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues("GET", "/api/v1/deployments/{chainId}/{address}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		httpRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")))
}

func TestDeploymentCounters(t *testing.T) {
	Init(true, "test")

	DeploymentRecord("script", "success")
	DeploymentRecord("script", "success")
	DeploymentLookup("get", "not_found")
	DeploymentVerify("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(deploymentRecordTotal.WithLabelValues("script", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(deploymentLookupTotal.WithLabelValues("get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(deploymentVerifyTotal.WithLabelValues("error")))
}

func TestHandler(t *testing.T) {
	Init(true, "test")
	DeploymentRecord("ignition", "success")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `deployment_record_total{service="test",source="ignition",status="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestDisabled(t *testing.T) {
	Init(false, "test")
	t.Cleanup(func() { Init(true, "test") })

	assert.False(t, Enabled())
	DeploymentRecord("script", "success")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, Middleware(next))
}
