// Package metrics is a minimal, concurrency-safe counter registry for
// internal events, exposed in Prometheus' text format via PrometheusHandler.
package metrics

import "sync"

// Event names counted by the signaling server.
const (
	ConnectionsTotal  = "connections_total"
	AuthFailure       = "auth_failure"
	RoomsCreated      = "rooms_created"
	RoomsDeleted      = "rooms_deleted"
	MatchesTotal      = "matches_total"
	RelayedOffers     = "relayed_offers"
	RelayedAnswers    = "relayed_answers"
	RelayedCandidates = "relayed_candidates"

	DropReasonRateLimited     = "rate_limited"
	DropReasonNoPeerCandidate = "candidate_without_peer"
)

type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
