package shell

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

// Input owns the operator's input stream. A single goroutine reads lines so
// menus can block on ReadLine while a running session polls CancelRequested.
type Input struct {
	lines chan string

	mu  sync.Mutex
	err error
}

func NewInput(r io.Reader) *Input {
	in := &Input{lines: make(chan string, 16)}
	go in.scan(r)
	return in
}

func (in *Input) scan(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		in.lines <- scanner.Text()
	}
	in.mu.Lock()
	in.err = scanner.Err()
	in.mu.Unlock()
	close(in.lines)
}

// ReadLine blocks for the next trimmed line. It returns io.EOF once the
// stream is exhausted.
func (in *Input) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-in.lines:
		if !ok {
			return "", in.closeErr()
		}
		return strings.TrimSpace(line), nil
	}
}

// CancelRequested drains pending lines without blocking and reports whether
// any of them was key.
func (in *Input) CancelRequested(key string) bool {
	requested := false
	for {
		select {
		case line, ok := <-in.lines:
			if !ok {
				return requested
			}
			if strings.EqualFold(strings.TrimSpace(line), key) {
				requested = true
			}
		default:
			return requested
		}
	}
}

// CancelFunc adapts CancelRequested to the monitor's cancel predicate.
func (in *Input) CancelFunc(key string) func() bool {
	return func() bool { return in.CancelRequested(key) }
}

func (in *Input) closeErr() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.err != nil {
		return in.err
	}
	return io.EOF
}
