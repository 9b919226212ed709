package events

import (
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/pingsantohq/slotwatch/pkg/types"
)

type Recorder interface {
	Record(event types.Event)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(event types.Event) {}

type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event types.Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}

// Buffer keeps every recorded event in memory.
type Buffer struct {
	mu     sync.Mutex
	events []types.Event
}

func (b *Buffer) Record(event types.Event) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

func (b *Buffer) Events() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Event(nil), b.events...)
}

// Count returns how many events of type t were recorded.
func (b *Buffer) Count(t types.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// LogRecorder writes every event to a diagnostic logger.
type LogRecorder struct {
	logger *log.Logger
}

func NewLogRecorder(logger *log.Logger) LogRecorder {
	return LogRecorder{logger: logger}
}

func (l LogRecorder) Record(event types.Event) {
	if l.logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString("event type=" + string(event.Type))
	if event.SessionID != "" {
		b.WriteString(" session=" + event.SessionID)
	}
	if event.ServerID != "" {
		b.WriteString(" server=" + string(event.ServerID))
	}
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + event.Details[k])
	}
	if event.Message != "" {
		b.WriteString(" msg=" + event.Message)
	}
	l.logger.Print(b.String())
}
