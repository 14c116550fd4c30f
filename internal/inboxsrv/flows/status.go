// Package flows runs the long-lived daemons: the developer merge loop that
// turns relocated project reports into searchable profiles, and the ops
// listener that exposes loop health to supervision.
package flows

import (
	"sync/atomic"
	"time"
)

// LoopStatus tracks one daemon loop's health counters. Safe for concurrent
// use; the loop writes, the ops listener reads.
type LoopStatus struct {
	name      string
	startedAt time.Time

	cycles            atomic.Int64
	jobs              atomic.Int64
	failures          atomic.Int64
	consecutiveErrors atomic.Int64
	inFlight          atomic.Int64
	lastCycleMillis   atomic.Int64
	lastCycleUnix     atomic.Int64
}

// NewLoopStatus returns a status tracker for the named loop.
func NewLoopStatus(name string) *LoopStatus {
	return &LoopStatus{
		name:      name,
		startedAt: time.Now().UTC(),
	}
}

// RecordCycle records the outcome of one completed poll cycle.
func (s *LoopStatus) RecordCycle(jobs, failures, consecutiveErrors int, took time.Duration) {
	s.cycles.Add(1)
	s.jobs.Add(int64(jobs))
	s.failures.Add(int64(failures))
	s.consecutiveErrors.Store(int64(consecutiveErrors))
	s.lastCycleMillis.Store(took.Milliseconds())
	s.lastCycleUnix.Store(time.Now().Unix())
}

// RecordInFlight adjusts the number of jobs currently being processed.
func (s *LoopStatus) RecordInFlight(delta int) {
	s.inFlight.Add(int64(delta))
}

// StatusSnapshot is a point-in-time view of the loop counters, served by the
// ops listener and printed by the status command.
type StatusSnapshot struct {
	Loop              string `json:"loop"`
	StartedAt         string `json:"started_at"`
	Cycles            int64  `json:"cycles"`
	Jobs              int64  `json:"jobs"`
	Failures          int64  `json:"failures"`
	ConsecutiveErrors int64  `json:"consecutive_errors"`
	InFlight          int64  `json:"in_flight"`
	LastCycleMillis   int64  `json:"last_cycle_ms"`
	LastCycleAt       string `json:"last_cycle_at,omitempty"`
}

// Snapshot returns the current counter values.
func (s *LoopStatus) Snapshot() StatusSnapshot {
	snap := StatusSnapshot{
		Loop:              s.name,
		StartedAt:         s.startedAt.Format(time.RFC3339),
		Cycles:            s.cycles.Load(),
		Jobs:              s.jobs.Load(),
		Failures:          s.failures.Load(),
		ConsecutiveErrors: s.consecutiveErrors.Load(),
		InFlight:          s.inFlight.Load(),
		LastCycleMillis:   s.lastCycleMillis.Load(),
	}
	if at := s.lastCycleUnix.Load(); at > 0 {
		snap.LastCycleAt = time.Unix(at, 0).UTC().Format(time.RFC3339)
	}
	return snap
}
