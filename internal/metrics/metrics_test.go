package metrics

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestMetrics_IncAndGet(t *testing.T) {
	m := New()
	m.Inc(MatchesTotal)
	m.Inc(MatchesTotal)
	if got := m.Get(MatchesTotal); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
	if got := m.Get("unknown"); got != 0 {
		t.Fatalf("got %d, want 0", got)
	}

	// nil receivers are tolerated so metrics stay optional in tests.
	var nilM *Metrics
	nilM.Inc(MatchesTotal)
	if got := nilM.Get(MatchesTotal); got != 0 {
		t.Fatalf("nil metrics Get=%d, want 0", got)
	}
}

func TestMetrics_ConcurrentInc(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Inc(ConnectionsTotal)
			}
		}()
	}
	wg.Wait()
	if got := m.Get(ConnectionsTotal); got != 800 {
		t.Fatalf("got %d, want 800", got)
	}
}

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(RelayedOffers)
	m.Inc(AuthFailure)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "# TYPE call_relay_events_total counter") {
		t.Fatalf("missing TYPE line:\n%s", body)
	}
	if !strings.Contains(body, `call_relay_events_total{event="relayed_offers"} 1`) {
		t.Fatalf("missing relayed_offers counter:\n%s", body)
	}
	if !strings.Contains(body, `call_relay_events_total{event="auth_failure"} 1`) {
		t.Fatalf("missing auth_failure counter:\n%s", body)
	}
}
