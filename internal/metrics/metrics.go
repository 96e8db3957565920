// Package metrics exposes the Prometheus collectors of the scoring core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "csarena"

// Registry is a dedicated registry so tests and embedders do not collide
// with the default one.
var Registry = prometheus.NewRegistry()

var auto = promauto.With(Registry)

var (
	GradesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grading",
		Name:      "grades_total",
		Help:      "Committed grading decisions by verdict.",
	}, []string{"verdict"})

	GradeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grading",
		Name:      "errors_total",
		Help:      "Rejected or failed grading calls by error kind.",
	}, []string{"kind"})

	ControlOps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control",
		Name:      "operations_total",
		Help:      "Committed contest control operations by action.",
	}, []string{"action"})

	Rebuilds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "standings",
		Name:      "rebuilds_total",
		Help:      "Team score aggregate rebuilds.",
	})

	EventsPublished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_published_total",
		Help:      "Events fanned out by the local broker by type.",
	}, []string{"type"})

	EventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Events that could not be delivered (slow subscriber or relay failure).",
	})

	Subscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "subscribers",
		Help:      "Currently connected event stream subscribers.",
	})

	httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records the latency of every request by its route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
