package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contactguard"

// Registry owns every collector contactd exports. It uses its own prometheus.Registry so
// tests can build as many as they like.
type Registry struct {
	reg *prometheus.Registry

	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	InFlight     prometheus.Gauge
	Checks       *prometheus.CounterVec
	StoreErrors  *prometheus.CounterVec
	BreakerState prometheus.Gauge
	Submissions  *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests partitioned by method, route and status.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency partitioned by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Requests currently being served.",
		}),
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limiter_checks_total",
			Help:      "Limiter verdicts partitioned by limiter, outcome and reason.",
		}, []string{"limiter", "outcome", "reason"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Counter store failures turned into policy verdicts.",
		}, []string{"limiter"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_breaker_state",
			Help:      "Counter store circuit breaker: 0 closed, 1 half-open, 2 open.",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Contact submissions partitioned by outcome.",
		}, []string{"outcome"}),
	}
	r.reg.MustRegister(
		r.Requests, r.Duration, r.InFlight,
		r.Checks, r.StoreErrors, r.BreakerState, r.Submissions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveCheck counts one limiter verdict.
func (r *Registry) ObserveCheck(limiter string, allowed bool, reason string) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	r.Checks.WithLabelValues(limiter, outcome, reason).Inc()
}

// ObserveStoreError counts one failed store call.
func (r *Registry) ObserveStoreError(limiter string) {
	r.StoreErrors.WithLabelValues(limiter).Inc()
}

// SetBreakerState maps a breaker state name onto the gauge; unknown names read as open.
func (r *Registry) SetBreakerState(state string) {
	switch state {
	case "closed":
		r.BreakerState.Set(0)
	case "half-open":
		r.BreakerState.Set(1)
	default:
		r.BreakerState.Set(2)
	}
}

// ObserveSubmission counts a contact submission by outcome.
func (r *Registry) ObserveSubmission(outcome string) {
	r.Submissions.WithLabelValues(outcome).Inc()
}

// TrackLocalKeys exports fn as the number of keys held by the in-memory store.
func (r *Registry) TrackLocalKeys(fn func() int) {
	r.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "local_store_keys",
		Help:      "Keys tracked by the in-memory counter store.",
	}, func() float64 { return float64(fn()) }))
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
