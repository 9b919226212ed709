package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

const prefix = "slotwatch "

func New(w io.Writer) *log.Logger {
	if w == nil {
		w = io.Discard
	}
	return log.New(w, prefix, log.LstdFlags|log.LUTC)
}

// Open returns a logger appending to path, or a discarding logger when path
// is empty. The returned closer must be called on shutdown.
func Open(path string) (*log.Logger, io.Closer, error) {
	if path == "" {
		return New(io.Discard), io.NopCloser(nil), nil
	}
	if path == "-" {
		return New(os.Stderr), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure log dir %q: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return New(f), f, nil
}
