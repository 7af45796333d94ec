package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCheck(t *testing.T) {
	r := NewRegistry()
	r.ObserveCheck("ip", true, "ok")
	r.ObserveCheck("ip", false, "rate_limited")
	r.ObserveCheck("ip", false, "rate_limited")
	r.ObserveStoreError("email")

	if got := testutil.ToFloat64(r.Checks.WithLabelValues("ip", "allowed", "ok")); got != 1 {
		t.Fatalf("expected 1 allowed check, got %f", got)
	}
	if got := testutil.ToFloat64(r.Checks.WithLabelValues("ip", "denied", "rate_limited")); got != 2 {
		t.Fatalf("expected 2 denied checks, got %f", got)
	}
	if got := testutil.ToFloat64(r.StoreErrors.WithLabelValues("email")); got != 1 {
		t.Fatalf("expected 1 store error, got %f", got)
	}
}

func TestSetBreakerState(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		state string
		want  float64
	}{
		{"closed", 0},
		{"half-open", 1},
		{"open", 2},
	}
	for _, tt := range tests {
		r.SetBreakerState(tt.state)
		if got := testutil.ToFloat64(r.BreakerState); got != tt.want {
			t.Fatalf("state %s: expected %f, got %f", tt.state, tt.want, got)
		}
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	r := NewRegistry()
	keys := 3
	r.TrackLocalKeys(func() int { return keys })
	r.ObserveSubmission("delivered")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"contactguard_local_store_keys 3",
		`contactguard_submissions_total{outcome="delivered"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("expected %q in scrape output", want)
		}
	}
}
