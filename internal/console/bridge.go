// Package console drives the locally running game client: it types the
// connect command into the client window and reads back what the client
// prints to its console.
package console

import (
	"context"
	"errors"
	"io"
	"log"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrClientNotFound is returned when no client window matches the title pattern.
	ErrClientNotFound = errors.New("game client window not found")
	// ErrTerminalNotFound is returned when the console text control cannot be located.
	ErrTerminalNotFound = errors.New("console text control not found")
)

// Bridge is the narrow surface the monitor needs from the game client.
// Every call re-resolves the client window; no handle outlives one attempt.
type Bridge interface {
	// IssueConnect focuses the client and submits "connect <endpoint>".
	IssueConnect(ctx context.Context, endpoint string) error
	// OpenConsole snapshots the current console text as the baseline for ReadDelta.
	OpenConsole(ctx context.Context) (Reader, error)
	// Celebrate foregrounds the game window if present and plays the notification sound.
	Celebrate(ctx context.Context) error
}

// Reader yields console text appended since the previous read.
type Reader interface {
	ReadDelta(ctx context.Context) (string, error)
}

// Config selects the windows and controls the bridge operates on.
type Config struct {
	ClientTitlePattern string
	GameTitle          string
	TerminalClass      string
	TerminalPrefix     string
	SoundFile          string
	// FocusDelay is how long to wait after focusing the client before typing.
	FocusDelay time.Duration
}

// Dependencies allow test overrides for logging.
type Dependencies struct {
	Logger *log.Logger
}

// NewSystem returns the bridge for the current platform.
func NewSystem(cfg Config, deps Dependencies) (Bridge, error) {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.FocusDelay <= 0 {
		cfg.FocusDelay = 100 * time.Millisecond
	}
	pattern, err := regexp.Compile(cfg.ClientTitlePattern)
	if err != nil {
		return nil, err
	}
	return newSystemBridge(cfg, pattern, deps)
}

// ConnectCommand renders the console command for endpoint.
func ConnectCommand(endpoint string) string {
	return "connect " + endpoint
}

// deltaTracker remembers the last observed buffer and returns only what was
// appended since. When the console drops its oldest lines the longest tail of
// the previous buffer that starts the current one is skipped. A buffer with no
// such overlap (the console was cleared) is returned whole.
type deltaTracker struct {
	prev string
}

func newDeltaTracker(baseline string) *deltaTracker {
	return &deltaTracker{prev: baseline}
}

func (t *deltaTracker) next(current string) string {
	if current == t.prev {
		return ""
	}
	delta := current[overlap(t.prev, current):]
	t.prev = current
	return delta
}

// overlap returns the length of the longest non-empty tail of prev, starting
// at a line boundary, that current begins with.
func overlap(prev, current string) int {
	if strings.HasPrefix(current, prev) {
		return len(prev)
	}
	for i := 0; i < len(prev); {
		nl := strings.IndexByte(prev[i:], '\n')
		if nl < 0 {
			break
		}
		i += nl + 1
		if i < len(prev) && strings.HasPrefix(current, prev[i:]) {
			return len(prev) - i
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
