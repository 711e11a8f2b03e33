// Package metrics expone contadores Prometheus de validaciones y de resolución de certificados.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/cfdi-validator/internal/domain/entity"
	"github.com/jhoicas/cfdi-validator/internal/infrastructure/sat/resolver"
)

const namespace = "cfdi"

// Collector agrupa las métricas del servicio sobre un registro propio.
type Collector struct {
	registry *prometheus.Registry

	validations *prometheus.CounterVec
	stages      *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	duration    prometheus.Histogram

	resolved    *prometheus.CounterVec
	failed      *prometheus.CounterVec
	cacheWrites prometheus.Counter
	statusCalls *prometheus.CounterVec
}

// NewCollector crea y registra las métricas. Con withRuntime agrega los colectores de
// proceso y de Go (la API los publica; los tests no).
func NewCollector(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Documentos validados por resultado.",
		}, []string{"outcome"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_stage_total",
			Help:      "Última etapa superada por cada documento.",
		}, []string{"stage"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Diagnósticos emitidos por severidad.",
		}, []string{"severity"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Duración de la validación de un documento.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certificates",
			Name:      "resolved_total",
			Help:      "Certificados resueltos por origen (local, cache, network, stale).",
		}, []string{"source"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certificates",
			Name:      "failed_total",
			Help:      "Resoluciones fallidas por código.",
		}, []string{"code"}),
		cacheWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "certificates",
			Name:      "cache_write_failures_total",
			Help:      "Escrituras de caché fallidas (no impiden la resolución).",
		}),
		statusCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "queries_total",
			Help:      "Consultas al servicio de estado del SAT por resultado.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(c.validations, c.stages, c.diagnostics, c.duration,
		c.resolved, c.failed, c.cacheWrites, c.statusCalls)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return c
}

// Registry registro subyacente.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler handler HTTP de exposición.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ── Validación ───────────────────────────────────────────────────────────────

// ObserveReport registra el resultado de una validación.
func (c *Collector) ObserveReport(r *entity.ValidationReport) {
	c.validations.WithLabelValues(r.Outcome).Inc()
	c.stages.WithLabelValues(string(r.Stage)).Inc()
	for _, d := range r.Diagnostics {
		c.diagnostics.WithLabelValues(string(d.Severity)).Inc()
	}
	c.duration.Observe(r.Duration.Seconds())
}

// ObserveStatus registra una consulta de estado; err nil cuenta como "ok".
func (c *Collector) ObserveStatus(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.statusCalls.WithLabelValues(result).Inc()
}

// ── resolver.Observer ────────────────────────────────────────────────────────

// Resolved implementa resolver.Observer.
func (c *Collector) Resolved(source resolver.Source, _ string) {
	c.resolved.WithLabelValues(string(source)).Inc()
}

// Failed implementa resolver.Observer.
func (c *Collector) Failed(code resolver.Code, _ string, _ error) {
	c.failed.WithLabelValues(code.String()).Inc()
}

// CacheWriteFailed implementa resolver.Observer.
func (c *Collector) CacheWriteFailed(string, error) {
	c.cacheWrites.Inc()
}

var _ resolver.Observer = (*Collector)(nil)
