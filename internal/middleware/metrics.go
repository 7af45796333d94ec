package middleware

import (
	"net/http"
	"strconv"
	"time"

	"contact-guard/internal/metrics"
)

// Metrics records request count, latency and in-flight requests. Paths outside routes are
// reported as "other" to keep label cardinality bounded.
func Metrics(m *metrics.Registry, routes ...string) func(http.Handler) http.Handler {
	known := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		known[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if _, ok := known[route]; !ok {
				route = "other"
			}

			m.InFlight.Inc()
			defer m.InFlight.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.Status())).Inc()
			m.Duration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
