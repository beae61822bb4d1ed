package metrics

import "sync"

// Counter names used by the viewer session.
const (
	CounterSessionGrants      = "session_grants"
	CounterAnswersSent        = "answers_sent"
	CounterCandidatesSent     = "candidates_sent"
	CounterCandidatesReceived = "candidates_received"
	CounterStalePayloads      = "stale_payloads_discarded"
	CounterRelayErrors        = "relay_errors"
	CounterTracksBound        = "tracks_bound"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The viewer is a short-lived client process; counters are logged as a final
// snapshot on shutdown rather than scraped.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

// Inc is a nil-safe increment so callers can run without a registry.
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

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
