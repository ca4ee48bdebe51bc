// Package workerstats tracks the per-worker counters surfaced in response
// headers (Stat-Thread-*) and in /metrics.
package workerstats

import "go.uber.org/atomic"

// Stats is one worker's counters. Each field is only ever mutated by its
// owning worker goroutine, but is read cross-goroutine by /metrics, so
// the fields are atomic rather than plain ints.
type Stats struct {
	ID      int
	total   atomic.Int64
	static  atomic.Int64
	dynamic atomic.Int64
}

// New returns a Stats for the worker with the given id. id == threads
// (the last slot) is conventionally the VIP worker.
func New(id int) *Stats {
	return &Stats{ID: id}
}

// IncStatic records one statically-served request.
func (s *Stats) IncStatic() {
	s.total.Inc()
	s.static.Inc()
}

// IncDynamic records one dynamically-served (CGI) request.
func (s *Stats) IncDynamic() {
	s.total.Inc()
	s.dynamic.Inc()
}

// Snapshot is a point-in-time read of a worker's counters.
type Snapshot struct {
	ID      int
	Total   int64
	Static  int64
	Dynamic int64
}

// Snapshot reads the current counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ID:      s.ID,
		Total:   s.total.Load(),
		Static:  s.static.Load(),
		Dynamic: s.dynamic.Load(),
	}
}
