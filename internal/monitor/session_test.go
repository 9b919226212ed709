package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pingsantohq/slotwatch/internal/console"
	"github.com/pingsantohq/slotwatch/internal/directory"
	"github.com/pingsantohq/slotwatch/internal/events"
	"github.com/pingsantohq/slotwatch/internal/metrics"
	"github.com/pingsantohq/slotwatch/pkg/types"
)

type fetchStep struct {
	servers []types.ServerRecord
	err     error
}

type scriptedFetcher struct {
	steps []fetchStep
	calls int
}

func (f *scriptedFetcher) Fetch(ctx context.Context) ([]types.ServerRecord, error) {
	if len(f.steps) == 0 {
		return nil, errors.New("no script")
	}
	idx := f.calls
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	f.calls++
	step := f.steps[idx]
	return step.servers, step.err
}

type scriptReader struct {
	deltas []string
	err    error
	reads  int
}

func (r *scriptReader) ReadDelta(ctx context.Context) (string, error) {
	if r.reads >= len(r.deltas) {
		r.reads++
		if r.err != nil {
			return "", r.err
		}
		return "", nil
	}
	d := r.deltas[r.reads]
	r.reads++
	return d, nil
}

type recordingBridge struct {
	readers    []*scriptReader
	openErrs   []error
	issueErrs  []error
	opens      int
	connects   []string
	celebrated int
}

func (b *recordingBridge) OpenConsole(ctx context.Context) (console.Reader, error) {
	call := b.opens
	b.opens++
	if call < len(b.openErrs) && b.openErrs[call] != nil {
		return nil, b.openErrs[call]
	}
	if len(b.readers) == 0 {
		return &scriptReader{}, nil
	}
	r := b.readers[0]
	b.readers = b.readers[1:]
	return r, nil
}

func (b *recordingBridge) IssueConnect(ctx context.Context, endpoint string) error {
	call := len(b.connects)
	b.connects = append(b.connects, endpoint)
	if call < len(b.issueErrs) && b.issueErrs[call] != nil {
		return b.issueErrs[call]
	}
	return nil
}

func (b *recordingBridge) Celebrate(ctx context.Context) error {
	b.celebrated++
	return nil
}

type sleepLog struct {
	slept []time.Duration
}

func (s *sleepLog) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return ctx.Err()
}

type fetchLog struct {
	errs []error
}

func (f *fetchLog) ObserveFetch(ts time.Time, err error) {
	f.errs = append(f.errs, err)
}

const (
	pollInterval  = 500 * time.Millisecond
	checkInterval = time.Second
	retryDelay    = 2 * time.Second
)

func server(occupancy, capacity int, mapName string) types.ServerRecord {
	return types.ServerRecord{
		ID:        "1270014976",
		Game:      "IW5",
		Name:      "^1Watched ^7Server",
		Occupancy: occupancy,
		Capacity:  capacity,
		Map:       types.MapInfo{Name: mapName, Alias: "Alias " + mapName},
		Address:   "203.0.113.9",
		Port:      27016,
	}
}

func other() types.ServerRecord {
	return types.ServerRecord{ID: "other", Game: "IW5", Occupancy: 1, Capacity: 18}
}

func snapshot(records ...types.ServerRecord) fetchStep {
	return fetchStep{servers: records}
}

type harness struct {
	session *Session
	fetcher *scriptedFetcher
	bridge  *recordingBridge
	events  *events.Buffer
	sleeps  *sleepLog
	store   *metrics.Store
	health  *fetchLog
}

func newHarness(t *testing.T, fetcher *scriptedFetcher, bridge *recordingBridge, mutate func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		fetcher: fetcher,
		bridge:  bridge,
		events:  &events.Buffer{},
		sleeps:  &sleepLog{},
		store:   metrics.NewStore(),
		health:  &fetchLog{},
	}
	deps := Dependencies{
		Directory:    fetcher,
		Bridge:       bridge,
		Events:       h.events,
		Metrics:      h.store.SessionRecorder(),
		Health:       h.health,
		Sleep:        h.sleeps.Sleep,
		NewSessionID: func() string { return "sess-1" },
	}
	if mutate != nil {
		mutate(&deps)
	}
	session, err := New(Config{PollInterval: pollInterval, CheckInterval: checkInterval, RetryDelay: retryDelay}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.session = session
	return h
}

func (h *harness) eventTypes() []types.EventType {
	evs := h.events.Events()
	out := make([]types.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestFullStatusAnnouncedOncePerDistinctValue(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{
		snapshot(server(18, 18, "mp_dome")),
		snapshot(server(18, 18, "mp_dome")),
		snapshot(server(18, 18, "mp_dome")),
		snapshot(server(18, 18, "mp_seatown")),
		snapshot(server(18, 18, "mp_seatown")),
	}}
	h := newHarness(t, fetcher, &recordingBridge{}, nil)
	if err := h.session.Start(server(18, 18, "mp_dome")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < len(fetcher.steps); i++ {
		out, err := h.session.Step(context.Background())
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if out != Watching {
			t.Fatalf("step %d: expected watching, got %s", i, out)
		}
	}

	if got := h.events.Count(types.EventServerFull); got != 2 {
		t.Fatalf("expected 2 server-full announcements, got %d (%v)", got, h.eventTypes())
	}
	if got := h.events.Count(types.EventMapChanged); got != 1 {
		t.Fatalf("expected 1 map change, got %d", got)
	}
	if h.session.Watch().LastReportedStatus != "18/18 - mp_seatown - Alias mp_seatown" {
		t.Fatalf("unexpected last status %q", h.session.Watch().LastReportedStatus)
	}
	if len(h.bridge.connects) != 0 {
		t.Fatalf("no connect expected while full, got %v", h.bridge.connects)
	}
	if snap := h.store.Snapshot(); snap.FullReports != 2 || snap.Polls != 5 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestConnectAttemptOnlyWhenSlotFree(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{
		snapshot(other(), server(17, 18, "mp_dome")),
		snapshot(other(), server(18, 18, "mp_dome")),
		snapshot(other(), server(17, 18, "mp_dome")),
	}}
	bridge := &recordingBridge{readers: []*scriptReader{
		{deltas: []string{"Com_ERROR: EXE_SERVERISFULL"}},
		{deltas: []string{"", "loading...", "not allowing server to override saved dvar foo"}},
	}}
	h := newHarness(t, fetcher, bridge, nil)

	out, err := h.session.Run(context.Background(), server(18, 18, "mp_dome"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != ConnectedSuccess {
		t.Fatalf("expected connected, got %s", out)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 poll cycles, got %d", fetcher.calls)
	}
	if len(bridge.connects) != 2 {
		t.Fatalf("expected connects on cycles 1 and 3, got %v", bridge.connects)
	}
	for _, endpoint := range bridge.connects {
		if endpoint != "203.0.113.9:27016" {
			t.Fatalf("unexpected endpoint %q", endpoint)
		}
	}
	if bridge.celebrated != 1 {
		t.Fatalf("expected one celebration, got %d", bridge.celebrated)
	}
	if h.session.State() != StateTerminated || h.session.Outcome() != ConnectedSuccess {
		t.Fatalf("unexpected final state %s/%s", h.session.State(), h.session.Outcome())
	}

	// cycle 1: retry delay; cycle 2: poll interval; cycle 3: two empty checks.
	want := []time.Duration{retryDelay, pollInterval, checkInterval, checkInterval}
	if fmt.Sprint(h.sleeps.slept) != fmt.Sprint(want) {
		t.Fatalf("unexpected sleeps %v, want %v", h.sleeps.slept, want)
	}

	snap := h.store.Snapshot()
	if snap.ConnectAttempts != 2 || snap.ServerFullRetries != 1 || snap.Connected != 1 || snap.Aborts != 0 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
	for _, ev := range h.events.Events() {
		if ev.SessionID != "sess-1" {
			t.Fatalf("event without session id: %+v", ev)
		}
	}
}

func TestServerFullDuringAttemptReturnsToWatching(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{snapshot(server(17, 18, "mp_dome"))}}
	bridge := &recordingBridge{readers: []*scriptReader{{deltas: []string{"Com_ERROR: EXE_SERVERISFULL"}}}}
	h := newHarness(t, fetcher, bridge, nil)
	if err := h.session.Start(server(17, 18, "mp_dome")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, err := h.session.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if out != ServerFull {
		t.Fatalf("expected server-full, got %s", out)
	}
	if h.session.State() != StateWatching {
		t.Fatalf("expected watching after retry, got %s", h.session.State())
	}
	if len(h.sleeps.slept) != 1 || h.sleeps.slept[0] != retryDelay {
		t.Fatalf("expected retry delay sleep, got %v", h.sleeps.slept)
	}
	if h.events.Count(types.EventRetry) != 1 {
		t.Fatalf("expected a retry announcement, got %v", h.eventTypes())
	}
}

func TestTargetNotFoundKeepsPolling(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{
		snapshot(other()),
		snapshot(),
		snapshot(other(), server(18, 18, "mp_dome")),
	}}
	h := newHarness(t, fetcher, &recordingBridge{}, nil)
	if err := h.session.Start(server(18, 18, "mp_dome")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []Outcome{TargetNotFound, TargetNotFound, Watching}
	for i, expected := range want {
		out, err := h.session.Step(context.Background())
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if out != expected {
			t.Fatalf("step %d: got %s want %s", i, out, expected)
		}
		if h.session.State() != StateWatching {
			t.Fatalf("step %d: unexpected state %s", i, h.session.State())
		}
	}
	if h.events.Count(types.EventTargetNotFound) != 2 {
		t.Fatalf("expected two not-found announcements, got %v", h.eventTypes())
	}
}

func TestFetchFailureThenRecovery(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{
		{err: fmt.Errorf("%w: status 502 Bad Gateway", directory.ErrSourceUnavailable)},
		{err: fmt.Errorf("%w: timeout", directory.ErrSourceUnavailable)},
		snapshot(server(18, 18, "mp_seatown")),
	}}
	h := newHarness(t, fetcher, &recordingBridge{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	polls := 0
	h.session.deps.Sleep = func(ctx context.Context, d time.Duration) error {
		polls++
		if polls == 3 {
			cancel()
		}
		return ctx.Err()
	}

	out, err := h.session.Run(ctx, server(18, 18, "mp_dome"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v (%s)", err, out)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 fetches, got %d", fetcher.calls)
	}
	if h.events.Count(types.EventFetchFailed) != 2 {
		t.Fatalf("expected two fetch failures, got %v", h.eventTypes())
	}
	if h.events.Count(types.EventMapChanged) != 1 || h.session.Watch().LastKnownMap != "mp_seatown" {
		t.Fatalf("expected map tracking to resume, got %v", h.eventTypes())
	}
	if len(h.health.errs) != 3 || h.health.errs[0] == nil || h.health.errs[2] != nil {
		t.Fatalf("unexpected health observations %v", h.health.errs)
	}
	if h.session.State() != StateTerminated {
		t.Fatalf("expected terminated after cancellation, got %s", h.session.State())
	}
}

func TestMapChangeAnnouncedBeforeConnect(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{snapshot(server(10, 18, "mp_seatown"))}}
	bridge := &recordingBridge{readers: []*scriptReader{{deltas: []string{"not allowing server to override saved dvar x"}}}}
	h := newHarness(t, fetcher, bridge, nil)
	if err := h.session.Start(server(18, 18, "mp_dome")); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, err := h.session.Step(context.Background())
	if err != nil || out != ConnectedSuccess {
		t.Fatalf("expected connected, got %s err=%v", out, err)
	}
	got := h.eventTypes()
	want := []types.EventType{types.EventWatchStarted, types.EventMapChanged, types.EventSlotAvailable, types.EventConnected}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected event order %v, want %v", got, want)
	}
}

func TestCancelWhileWatching(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{snapshot(server(18, 18, "mp_dome"))}}
	h := newHarness(t, fetcher, &recordingBridge{}, func(d *Dependencies) {
		d.Cancelled = func() bool { return true }
	})

	out, err := h.session.Run(context.Background(), server(18, 18, "mp_dome"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != UserReturn {
		t.Fatalf("expected user return, got %s", out)
	}
	if fetcher.calls != 0 {
		t.Fatalf("expected no fetch after cancel, got %d", fetcher.calls)
	}
	if h.events.Count(types.EventReturned) != 1 {
		t.Fatalf("expected a return announcement, got %v", h.eventTypes())
	}
	if _, err := h.session.Step(context.Background()); err == nil {
		t.Fatalf("expected error stepping a terminated session")
	}
}

func TestCancelDuringAttempt(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{snapshot(server(17, 18, "mp_dome"))}}
	bridge := &recordingBridge{readers: []*scriptReader{{deltas: []string{"", "loading..."}}}}
	checks := 0
	h := newHarness(t, fetcher, bridge, func(d *Dependencies) {
		d.Cancelled = func() bool {
			checks++
			return checks > 3
		}
	})

	out, err := h.session.Run(context.Background(), server(17, 18, "mp_dome"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != UserReturn {
		t.Fatalf("expected user return, got %s", out)
	}
	if len(bridge.connects) != 1 {
		t.Fatalf("expected a single connect, got %v", bridge.connects)
	}
	if snap := h.store.Snapshot(); snap.Aborts != 1 {
		t.Fatalf("expected abort to be counted, got %+v", snap)
	}
}

func TestClientNotFoundPromptsAndRetries(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []fetchStep{snapshot(server(17, 18, "mp_dome"))}}
	bridge := &recordingBridge{
		openErrs: []error{fmt.Errorf("%w: no window", console.ErrClientNotFound)},
		readers:  []*scriptReader{{deltas: []string{"not allowing server to override saved dvar x"}}},
	}
	prompts := 0
	h := newHarness(t, fetcher, bridge, func(d *Dependencies) {
		d.AwaitClient = func(ctx context.Context) error {
			prompts++
			return nil
		}
	})

	out, err := h.session.Run(context.Background(), server(17, 18, "mp_dome"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != ConnectedSuccess {
		t.Fatalf("expected connected after prompt, got %s", out)
	}
	if prompts != 1 || bridge.opens != 2 {
		t.Fatalf("expected one prompt and two lookups, got prompts=%d opens=%d", prompts, bridge.opens)
	}
	if h.events.Count(types.EventClientMissing) != 1 {
		t.Fatalf("expected client-missing announcement, got %v", h.eventTypes())
	}
}

func TestBridgeFailuresTerminate(t *testing.T) {
	clientMissing := fmt.Errorf("%w: no window", console.ErrClientNotFound)
	tests := []struct {
		name     string
		bridge   *recordingBridge
		prompt   ClientPrompt
		expected Outcome
	}{
		{
			name:     "client missing without prompt",
			bridge:   &recordingBridge{openErrs: []error{clientMissing}},
			expected: ClientNotFound,
		},
		{
			name:     "client missing during connect",
			bridge:   &recordingBridge{issueErrs: []error{clientMissing}},
			expected: ClientNotFound,
		},
		{
			name:     "prompt declined",
			bridge:   &recordingBridge{openErrs: []error{clientMissing}},
			prompt:   func(ctx context.Context) error { return errors.New("stdin closed") },
			expected: ClientNotFound,
		},
		{
			name:     "prompt returned",
			bridge:   &recordingBridge{openErrs: []error{clientMissing}},
			prompt:   func(ctx context.Context) error { return ErrUserReturn },
			expected: UserReturn,
		},
		{
			name:     "terminal missing",
			bridge:   &recordingBridge{openErrs: []error{fmt.Errorf("%w: no static", console.ErrTerminalNotFound)}},
			expected: TerminalNotFound,
		},
		{
			name:     "read failure",
			bridge:   &recordingBridge{readers: []*scriptReader{{err: errors.New("control vanished")}}},
			expected: DetectorError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &scriptedFetcher{steps: []fetchStep{snapshot(server(17, 18, "mp_dome"))}}
			h := newHarness(t, fetcher, tt.bridge, func(d *Dependencies) {
				d.AwaitClient = tt.prompt
			})
			out, err := h.session.Run(context.Background(), server(17, 18, "mp_dome"))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if out != tt.expected {
				t.Fatalf("got %s want %s", out, tt.expected)
			}
			if fetcher.calls != 1 {
				t.Fatalf("bridge failures must not be retried automatically, got %d polls", fetcher.calls)
			}
			if h.session.State() != StateTerminated {
				t.Fatalf("expected terminated, got %s", h.session.State())
			}
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}, Dependencies{Bridge: &recordingBridge{}}); err == nil {
		t.Fatalf("expected error without directory")
	}
	if _, err := New(Config{}, Dependencies{Directory: &scriptedFetcher{}}); err == nil {
		t.Fatalf("expected error without bridge")
	}

	s, err := New(Config{PollInterval: 3 * time.Second}, Dependencies{Directory: &scriptedFetcher{}, Bridge: &recordingBridge{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.cfg.RetryDelay != 3*time.Second || s.cfg.CheckInterval != time.Second {
		t.Fatalf("unexpected defaults %+v", s.cfg)
	}
	if err := s.Start(server(1, 18, "mp_dome")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.ID() == "" {
		t.Fatalf("expected generated session id")
	}
	if err := s.Start(server(1, 18, "mp_dome")); err == nil {
		t.Fatalf("expected error starting twice")
	}
}
