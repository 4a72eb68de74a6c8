package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMetrics_CountersAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := New()
	m.OperationsCreated.Inc()
	m.UploadsFailed.WithLabelValues("validation").Add(2)

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := scrape(t, m)
	assert.Contains(t, body, "shudh_operations_created_total 1")
	assert.Contains(t, body, `shudh_operation_uploads_failed_total{reason="validation"} 2`)
	assert.Contains(t, body, "http_request_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_RegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.OperationsCreated.Inc()

	assert.Contains(t, scrape(t, a), "shudh_operations_created_total 1")
	assert.Contains(t, scrape(t, b), "shudh_operations_created_total 0")
}
