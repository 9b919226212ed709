// Package monitor implements the watch/connect state machine: it polls the
// directory for one server, issues a connect command when a slot opens and
// follows the client console until the join succeeds or is refused.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pingsantohq/slotwatch/internal/console"
	"github.com/pingsantohq/slotwatch/internal/detect"
	"github.com/pingsantohq/slotwatch/internal/events"
	"github.com/pingsantohq/slotwatch/internal/metrics"
	"github.com/pingsantohq/slotwatch/pkg/types"
)

const (
	defaultPollInterval  = time.Second
	defaultCheckInterval = time.Second
)

// ErrUserReturn is returned by a ClientPrompt when the operator chose to go
// back instead of retrying.
var ErrUserReturn = errors.New("operator returned to selection")

// Fetcher returns the current filtered server list.
type Fetcher interface {
	Fetch(ctx context.Context) ([]types.ServerRecord, error)
}

// FetchObserver is notified of every directory fetch outcome.
type FetchObserver interface {
	ObserveFetch(ts time.Time, err error)
}

// CancelFunc reports whether the operator asked to stop since the last call.
type CancelFunc func() bool

// ClientPrompt asks the operator to start the game client. A nil error means
// the lookup should be retried.
type ClientPrompt func(ctx context.Context) error

// Config holds the session timing.
type Config struct {
	PollInterval  time.Duration
	CheckInterval time.Duration
	RetryDelay    time.Duration
}

// Dependencies are the collaborators of a Session. Directory and Bridge are
// required; everything else has a no-op default.
type Dependencies struct {
	Directory    Fetcher
	Bridge       console.Bridge
	Cancelled    CancelFunc
	AwaitClient  ClientPrompt
	Events       events.Recorder
	Metrics      metrics.SessionRecorder
	Health       FetchObserver
	Logger       *log.Logger
	Sleep        func(ctx context.Context, d time.Duration) error
	Now          func() time.Time
	NewSessionID func() string
}

// WatchState is owned by exactly one Session and never shared.
type WatchState struct {
	WatchedID          types.ServerID
	LastKnownMap       string
	LastReportedStatus string
}

// Session monitors one server from selection until it terminates.
type Session struct {
	cfg  Config
	deps Dependencies

	id     string
	state  State
	watch  WatchState
	result Outcome
}

// New validates dependencies and fills defaults.
func New(cfg Config, deps Dependencies) (*Session, error) {
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory fetcher is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("console bridge is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = cfg.PollInterval
	}
	if deps.Cancelled == nil {
		deps.Cancelled = func() bool { return false }
	}
	if deps.Events == nil {
		deps.Events = events.NoopRecorder{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopSessionRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Sleep == nil {
		deps.Sleep = sleep
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}
	return &Session{cfg: cfg, deps: deps, state: StateIdle}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return s.state }

func (s *Session) Watch() WatchState { return s.watch }

// Outcome returns the terminal outcome once the session has ended.
func (s *Session) Outcome() Outcome { return s.result }

// Start moves an idle session to Watching for target.
func (s *Session) Start(target types.ServerRecord) error {
	if s.state != StateIdle {
		return fmt.Errorf("session already %s", s.state)
	}
	s.id = s.deps.NewSessionID()
	s.watch = WatchState{
		WatchedID:    target.ID,
		LastKnownMap: target.Map.Name,
	}
	s.state = StateWatching
	s.deps.Logger.Printf("session %s watching server %s (%s)", s.id, target.ID, target.Endpoint())
	s.emit(types.EventWatchStarted, &target, "watching "+target.Name, nil)
	return nil
}

// Run starts the session for target and polls until a terminal outcome or
// until ctx is cancelled.
func (s *Session) Run(ctx context.Context, target types.ServerRecord) (Outcome, error) {
	if err := s.Start(target); err != nil {
		return Watching, err
	}
	for {
		out, err := s.Step(ctx)
		if err != nil {
			return out, err
		}
		if out.Terminal() {
			return out, nil
		}
		if out == ServerFull {
			// The retry delay was already served inside the attempt.
			continue
		}
		if err := s.deps.Sleep(ctx, s.cfg.PollInterval); err != nil {
			s.state = StateTerminated
			return Watching, err
		}
	}
}

// Step executes one poll cycle. The only error it returns is ctx's; every
// other failure becomes an Outcome.
func (s *Session) Step(ctx context.Context) (Outcome, error) {
	if s.state != StateWatching {
		return s.result, fmt.Errorf("step in state %s", s.state)
	}
	if err := ctx.Err(); err != nil {
		s.state = StateTerminated
		return Watching, err
	}
	if s.deps.Cancelled() {
		return s.terminate(UserReturn, nil), nil
	}

	s.deps.Metrics.IncPolls()
	servers, err := s.deps.Directory.Fetch(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.state = StateTerminated
			return Watching, ctxErr
		}
		s.observeFetch(err)
		s.deps.Metrics.IncFetchFailures()
		s.deps.Logger.Printf("session %s fetch failed: %v", s.id, err)
		s.emit(types.EventFetchFailed, nil, "failed to fetch server status", map[string]string{"error": err.Error()})
		return SourceUnavailable, nil
	}
	s.observeFetch(nil)

	rec, ok := types.FindServer(servers, s.watch.WatchedID)
	if !ok {
		s.deps.Metrics.IncTargetMissing()
		s.emit(types.EventTargetNotFound, nil, "chosen server not found in status update", nil)
		return TargetNotFound, nil
	}
	s.deps.Metrics.ObserveOccupancy(rec.Occupancy, rec.Capacity)

	if rec.Map.Name != s.watch.LastKnownMap {
		previous := s.watch.LastKnownMap
		s.watch.LastKnownMap = rec.Map.Name
		s.emit(types.EventMapChanged, &rec, "map changed to "+rec.Map.Name, map[string]string{"previous": previous})
	}

	if rec.HasFreeSlot() {
		s.emit(types.EventSlotAvailable, &rec, "slot available, connecting", nil)
		return s.attempt(ctx, rec)
	}

	summary := rec.StatusSummary()
	if summary != s.watch.LastReportedStatus {
		s.watch.LastReportedStatus = summary
		s.deps.Metrics.IncFullReports()
		s.emit(types.EventServerFull, &rec, summary, nil)
	}
	return Watching, nil
}

func (s *Session) attempt(ctx context.Context, rec types.ServerRecord) (Outcome, error) {
	s.state = StateConnectAttempt
	s.deps.Metrics.IncConnectAttempts()

	reader, out, err := s.issue(ctx, rec)
	if err != nil || out != Watching {
		return out, err
	}

	for {
		if s.deps.Cancelled() {
			return s.terminate(UserReturn, nil), nil
		}
		delta, err := reader.ReadDelta(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.state = StateTerminated
				return Watching, ctxErr
			}
			return s.terminate(DetectorError, fmt.Errorf("read console: %w", err)), nil
		}

		switch detect.Classify(delta) {
		case detect.SignalConnected:
			if err := s.deps.Bridge.Celebrate(ctx); err != nil {
				s.deps.Logger.Printf("session %s notification failed: %v", s.id, err)
			}
			s.deps.Metrics.IncConnected()
			s.emit(types.EventConnected, &rec, "successfully connected to the server", nil)
			return s.terminate(ConnectedSuccess, nil), nil
		case detect.SignalServerFull:
			s.deps.Metrics.IncServerFullRetries()
			s.emit(types.EventRetry, &rec, "server is full", map[string]string{"retry_in": s.cfg.RetryDelay.String()})
			if err := s.deps.Sleep(ctx, s.cfg.RetryDelay); err != nil {
				s.state = StateTerminated
				return Watching, err
			}
			s.state = StateWatching
			return ServerFull, nil
		}

		if err := s.deps.Sleep(ctx, s.cfg.CheckInterval); err != nil {
			s.state = StateTerminated
			return Watching, err
		}
	}
}

// issue captures the console baseline and submits the connect command. A
// missing client is retried for as long as the operator confirms the prompt.
func (s *Session) issue(ctx context.Context, rec types.ServerRecord) (console.Reader, Outcome, error) {
	for {
		reader, err := s.deps.Bridge.OpenConsole(ctx)
		if err == nil {
			err = s.deps.Bridge.IssueConnect(ctx, rec.Endpoint())
		}
		if err == nil {
			s.deps.Logger.Printf("session %s issued %q", s.id, console.ConnectCommand(rec.Endpoint()))
			return reader, Watching, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.state = StateTerminated
			return nil, Watching, ctxErr
		}

		switch {
		case errors.Is(err, console.ErrClientNotFound):
			if s.deps.AwaitClient == nil {
				return nil, s.terminate(ClientNotFound, err), nil
			}
			s.emit(types.EventClientMissing, &rec, "no game client window found", map[string]string{"error": err.Error()})
			promptErr := s.deps.AwaitClient(ctx)
			if promptErr == nil {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.state = StateTerminated
				return nil, Watching, ctxErr
			}
			if errors.Is(promptErr, ErrUserReturn) {
				return nil, s.terminate(UserReturn, nil), nil
			}
			return nil, s.terminate(ClientNotFound, err), nil
		case errors.Is(err, console.ErrTerminalNotFound):
			return nil, s.terminate(TerminalNotFound, err), nil
		default:
			return nil, s.terminate(DetectorError, err), nil
		}
	}
}

func (s *Session) terminate(out Outcome, cause error) Outcome {
	s.state = StateTerminated
	s.result = out
	if out != ConnectedSuccess {
		s.deps.Metrics.IncAborts()
	}
	switch {
	case out == UserReturn:
		s.emit(types.EventReturned, nil, "returning to server selection", nil)
	case cause != nil:
		s.deps.Logger.Printf("session %s terminated (%s): %v", s.id, out, cause)
		s.emit(types.EventError, nil, cause.Error(), map[string]string{"outcome": out.String()})
	}
	s.deps.Logger.Printf("session %s finished: %s", s.id, out)
	return out
}

func (s *Session) observeFetch(err error) {
	if s.deps.Health != nil {
		s.deps.Health.ObserveFetch(s.deps.Now().UTC(), err)
	}
}

func (s *Session) emit(t types.EventType, rec *types.ServerRecord, msg string, details map[string]string) {
	ev := types.Event{
		Type:      t,
		Timestamp: s.deps.Now(),
		SessionID: s.id,
		ServerID:  s.watch.WatchedID,
		Message:   msg,
		Details:   details,
	}
	if rec != nil {
		copyRec := *rec
		ev.Server = &copyRec
	}
	s.deps.Events.Record(ev)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
