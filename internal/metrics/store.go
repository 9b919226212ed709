package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// Store maintains in-memory gauges and counters for monitoring sessions.
type Store struct {
	polls               atomic.Uint64
	fetchFailures       atomic.Uint64
	targetMissing       atomic.Uint64
	fullReports         atomic.Uint64
	connectAttempts     atomic.Uint64
	serverFullRetries   atomic.Uint64
	connected           atomic.Uint64
	aborts              atomic.Uint64
	occupancy           atomic.Int64
	capacity            atomic.Int64
	readinessState      atomic.Int64
	readinessReason     atomic.Value
	readyTransitions    atomic.Uint64
	notReadyTransitions atomic.Uint64
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	store := &Store{}
	store.readinessReason.Store("")
	return store
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	Polls               uint64
	FetchFailures       uint64
	TargetMissing       uint64
	FullReports         uint64
	ConnectAttempts     uint64
	ServerFullRetries   uint64
	Connected           uint64
	Aborts              uint64
	Occupancy           int64
	Capacity            int64
	Ready               bool
	ReadyReason         string
	ReadyTransitions    uint64
	NotReadyTransitions uint64
}

// Snapshot returns a point-in-time copy of the metrics.
func (s *Store) Snapshot() Snapshot {
	readyReason, _ := s.readinessReason.Load().(string)
	return Snapshot{
		Polls:               s.polls.Load(),
		FetchFailures:       s.fetchFailures.Load(),
		TargetMissing:       s.targetMissing.Load(),
		FullReports:         s.fullReports.Load(),
		ConnectAttempts:     s.connectAttempts.Load(),
		ServerFullRetries:   s.serverFullRetries.Load(),
		Connected:           s.connected.Load(),
		Aborts:              s.aborts.Load(),
		Occupancy:           s.occupancy.Load(),
		Capacity:            s.capacity.Load(),
		Ready:               s.readinessState.Load() == 1,
		ReadyReason:         readyReason,
		ReadyTransitions:    s.readyTransitions.Load(),
		NotReadyTransitions: s.notReadyTransitions.Load(),
	}
}

// SessionRecorder returns an implementation of SessionRecorder backed by the store.
func (s *Store) SessionRecorder() SessionRecorder {
	return sessionRecorder{store: s}
}

type sessionRecorder struct {
	store *Store
}

func (r sessionRecorder) IncPolls()             { r.store.polls.Add(1) }
func (r sessionRecorder) IncFetchFailures()     { r.store.fetchFailures.Add(1) }
func (r sessionRecorder) IncTargetMissing()     { r.store.targetMissing.Add(1) }
func (r sessionRecorder) IncFullReports()       { r.store.fullReports.Add(1) }
func (r sessionRecorder) IncConnectAttempts()   { r.store.connectAttempts.Add(1) }
func (r sessionRecorder) IncServerFullRetries() { r.store.serverFullRetries.Add(1) }
func (r sessionRecorder) IncConnected()         { r.store.connected.Add(1) }
func (r sessionRecorder) IncAborts()            { r.store.aborts.Add(1) }

func (r sessionRecorder) ObserveOccupancy(occupancy, capacity int) {
	if occupancy < 0 {
		occupancy = 0
	}
	r.store.occupancy.Store(int64(occupancy))
	r.store.capacity.Store(int64(capacity))
}

func (s *Store) ObserveReadiness(ready bool, reason string) {
	prev := s.readinessState.Load()
	if ready {
		if prev == 0 {
			s.readyTransitions.Add(1)
		}
		s.readinessState.Store(1)
		s.readinessReason.Store("")
		return
	}
	if prev == 1 {
		s.notReadyTransitions.Add(1)
	}
	s.readinessState.Store(0)
	s.readinessReason.Store(reason)
}

// WritePrometheus renders the current metrics using the Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	readyValue := 0
	if snap.Ready {
		readyValue = 1
	}
	reason := snap.ReadyReason
	if !snap.Ready && reason == "" {
		reason = "unknown"
	}
	if snap.Ready && reason == "" {
		reason = "ready"
	}
	lines := []string{
		"# HELP slotwatch_polls_total Directory poll cycles started.",
		"# TYPE slotwatch_polls_total counter",
		fmt.Sprintf("slotwatch_polls_total %d", snap.Polls),
		"# HELP slotwatch_fetch_failures_total Directory fetches that failed.",
		"# TYPE slotwatch_fetch_failures_total counter",
		fmt.Sprintf("slotwatch_fetch_failures_total %d", snap.FetchFailures),
		"# HELP slotwatch_target_missing_total Polls where the watched server was absent.",
		"# TYPE slotwatch_target_missing_total counter",
		fmt.Sprintf("slotwatch_target_missing_total %d", snap.TargetMissing),
		"# HELP slotwatch_full_reports_total Distinct server-full statuses announced.",
		"# TYPE slotwatch_full_reports_total counter",
		fmt.Sprintf("slotwatch_full_reports_total %d", snap.FullReports),
		"# HELP slotwatch_connect_attempts_total Connect commands issued to the client.",
		"# TYPE slotwatch_connect_attempts_total counter",
		fmt.Sprintf("slotwatch_connect_attempts_total %d", snap.ConnectAttempts),
		"# HELP slotwatch_server_full_retries_total Connect attempts refused because the server filled up.",
		"# TYPE slotwatch_server_full_retries_total counter",
		fmt.Sprintf("slotwatch_server_full_retries_total %d", snap.ServerFullRetries),
		"# HELP slotwatch_connected_total Sessions that ended with a confirmed connection.",
		"# TYPE slotwatch_connected_total counter",
		fmt.Sprintf("slotwatch_connected_total %d", snap.Connected),
		"# HELP slotwatch_aborts_total Sessions that ended without a connection.",
		"# TYPE slotwatch_aborts_total counter",
		fmt.Sprintf("slotwatch_aborts_total %d", snap.Aborts),
		"# HELP slotwatch_watched_occupancy_number Last observed player count of the watched server.",
		"# TYPE slotwatch_watched_occupancy_number gauge",
		fmt.Sprintf("slotwatch_watched_occupancy_number %d", snap.Occupancy),
		"# HELP slotwatch_watched_capacity_number Last observed player capacity of the watched server.",
		"# TYPE slotwatch_watched_capacity_number gauge",
		fmt.Sprintf("slotwatch_watched_capacity_number %d", snap.Capacity),
		"# HELP slotwatch_ready Whether the directory is being polled successfully (1=ready).",
		"# TYPE slotwatch_ready gauge",
		fmt.Sprintf("slotwatch_ready %d", readyValue),
		"# HELP slotwatch_ready_info Reason associated with the most recent readiness evaluation.",
		"# TYPE slotwatch_ready_info gauge",
		fmt.Sprintf("slotwatch_ready_info{reason=%q} 1", reason),
		"# HELP slotwatch_ready_transitions_total Count of readiness state transitions by resulting state.",
		"# TYPE slotwatch_ready_transitions_total counter",
		fmt.Sprintf("slotwatch_ready_transitions_total{state=%q} %d", "ready", snap.ReadyTransitions),
		fmt.Sprintf("slotwatch_ready_transitions_total{state=%q} %d", "not_ready", snap.NotReadyTransitions),
		"",
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// NewHTTPHandler returns an http.Handler that serves Prometheus formatted metrics.
func NewHTTPHandler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if r.Method == http.MethodHead {
			return
		}
		if err := store.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
