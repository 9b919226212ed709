package console

import (
	"context"
	"testing"
	"time"
)

func TestDeltaTracker(t *testing.T) {
	tr := newDeltaTracker("----------------------\nready\n")

	steps := []struct {
		current string
		want    string
	}{
		{current: "----------------------\nready\n", want: ""},
		{current: "----------------------\nready\nloading...\n", want: "loading...\n"},
		{current: "----------------------\nready\nloading...\n", want: ""},
		{current: "----------------------\nready\nloading...\nnot allowing server to override saved dvar foo\n", want: "not allowing server to override saved dvar foo\n"},
		{current: "----------------------\ncleared\n", want: "----------------------\ncleared\n"},
	}
	for i, step := range steps {
		if got := tr.next(step.current); got != step.want {
			t.Fatalf("step %d: got %q want %q", i, got, step.want)
		}
	}
}

func TestDeltaTrackerScrollback(t *testing.T) {
	tr := newDeltaTracker("----------------------\nnot allowing server to override saved dvar cg_fov\nline a\nline b\n")

	steps := []struct {
		current string
		want    string
	}{
		// oldest line dropped, one line appended
		{current: "not allowing server to override saved dvar cg_fov\nline a\nline b\nloading...\n", want: "loading...\n"},
		// two lines dropped, two appended
		{current: "line b\nloading...\nEXE_SERVERISFULL\nline c\n", want: "EXE_SERVERISFULL\nline c\n"},
		// only the tail survives as the first line
		{current: "line c\nline d\n", want: "line d\n"},
		{current: "fresh\n", want: "fresh\n"},
	}
	for i, step := range steps {
		if got := tr.next(step.current); got != step.want {
			t.Fatalf("step %d: got %q want %q", i, got, step.want)
		}
	}
}

func TestConnectCommand(t *testing.T) {
	if got := ConnectCommand("203.0.113.9:27016"); got != "connect 203.0.113.9:27016" {
		t.Fatalf("unexpected command %q", got)
	}
}

func TestNewSystemRejectsBadPattern(t *testing.T) {
	if _, err := NewSystem(Config{ClientTitlePattern: "(["}, Dependencies{}); err == nil {
		t.Fatalf("expected pattern error")
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); err == nil {
		t.Fatalf("expected cancellation error")
	}
}
