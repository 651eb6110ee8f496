// Package metrics expone en Prometheus la emisión electrónica: duración y resultado
// de cada emisión, intentos contra el SRI y evaluaciones de las compuertas.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics colectores registrados en un Registerer propio.
type Metrics struct {
	registry *prometheus.Registry

	EmissionDuration *prometheus.HistogramVec
	Emissions        *prometheus.CounterVec
	AuthorityCalls   *prometheus.CounterVec
	Entitlement      *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// New crea los colectores sobre un registro nuevo (no el global, para poder
// instanciarlo más de una vez en tests).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EmissionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "sri_emission_duration_seconds",
			Help: "Duración de una emisión completa, incluida la espera de autorización",
			// La consulta de autorización puede tardar hasta ~90 s en el peor caso.
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
		}, []string{"document_type", "status"}),

		Emissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sri_emissions_total",
			Help: "Emisiones procesadas por tipo de comprobante y estado final",
		}, []string{"document_type", "status"}),

		AuthorityCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sri_authority_attempts_total",
			Help: "Intentos contra los web services del SRI por fase y resultado",
		}, []string{"phase", "outcome"}),

		Entitlement: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sri_entitlement_checks_total",
			Help: "Evaluaciones de las compuertas de suscripción y licencia",
		}, []string{"gate", "offline", "authorized"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Peticiones HTTP atendidas",
		}, []string{"method", "path", "status"}),
	}
}

// ObserveEmission implementa emission.Metrics.
func (m *Metrics) ObserveEmission(documentType, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EmissionDuration.WithLabelValues(documentType, status).Observe(elapsed.Seconds())
	m.Emissions.WithLabelValues(documentType, status).Inc()
}

// ObserveAttempt implementa sri.Observer.
func (m *Metrics) ObserveAttempt(phase, outcome string) {
	if m != nil {
		m.AuthorityCalls.WithLabelValues(phase, outcome).Inc()
	}
}

// ObserveEntitlement implementa entitlement.Observer.
func (m *Metrics) ObserveEntitlement(gate string, offline, authorized bool) {
	if m != nil {
		m.Entitlement.WithLabelValues(gate, strconv.FormatBool(offline), strconv.FormatBool(authorized)).Inc()
	}
}

// Handler exposición en formato texto de Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware cuenta las peticiones por ruta (patrón, no path crudo). excluded no se cuenta.
func (m *Metrics) Middleware(excluded string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == excluded {
			return c.Next()
		}
		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.HTTPRequests.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		return err
	}
}
