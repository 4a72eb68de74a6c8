package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	ginmiddleware "github.com/slok/go-http-metrics/middleware/gin"
)

const (
	operationsCreatedMetricName = "shudh_operations_created_total"
	uploadsFailedMetricName     = "shudh_operation_uploads_failed_total"
	cacheWarmMetricName         = "shudh_cache_warm_runs_total"
)

// Metrics owns a private registry so several servers can coexist in one
// process (tests).
type Metrics struct {
	Registry *prometheus.Registry

	OperationsCreated prometheus.Counter
	UploadsFailed     *prometheus.CounterVec
	CacheWarmRuns     *prometheus.CounterVec

	http middleware.Middleware
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		OperationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: operationsCreatedMetricName,
			Help: "Operations stored through the upload endpoint.",
		}),
		UploadsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: uploadsFailedMetricName,
			Help: "Rejected or failed uploads by reason.",
		}, []string{"reason"}),
		CacheWarmRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: cacheWarmMetricName,
			Help: "Recent-operations cache warm runs by result.",
		}, []string{"result"}),
		http: middleware.New(middleware.Config{
			Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Registry: reg}),
		}),
	}
}

// GinMiddleware records request duration and size per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return ginmiddleware.Handler("", m.http)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
