// Package shell is the operator-facing side of slotwatch: timestamped colored
// announcements, the server table and the selection menus.
package shell

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pingsantohq/slotwatch/pkg/types"
)

const timestampLayout = "15:04:05.000"

// Option customises a Printer.
type Option func(*Printer)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Printer) {
		if now != nil {
			p.now = now
		}
	}
}

// WithColor enables or disables ANSI output. Disabled output strips markers.
func WithColor(enabled bool) Option {
	return func(p *Printer) {
		p.color = enabled
	}
}

// Printer serialises writes to the operator terminal.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	now   func() time.Time
	color bool
}

// NewPrinter returns a colored Printer writing to out.
func NewPrinter(out io.Writer, opts ...Option) *Printer {
	p := &Printer{out: out, now: time.Now, color: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Line prints text prefixed with the current time.
func (p *Printer) Line(color, text string) {
	p.write(p.timestamp() + p.render(color, text) + "\n")
}

// Plain prints text without a timestamp.
func (p *Printer) Plain(text string) {
	p.write(p.render("", text) + "\n")
}

// Prompt prints a timestamped line without the trailing newline.
func (p *Printer) Prompt(color, text string) {
	p.write(p.timestamp() + p.render(color, text))
}

// Blank prints an empty line.
func (p *Printer) Blank() {
	p.write("\n")
}

// ServerTable prints the numbered server list with aligned columns.
func (p *Printer) ServerTable(servers []types.ServerRecord) {
	p.Line(Blue, "Available servers:")
	for _, row := range serverRows(servers, p.color) {
		p.Plain(row)
	}
}

func (p *Printer) timestamp() string {
	ts := "[" + p.now().Format(timestampLayout) + "] "
	if !p.color {
		return ts
	}
	return Cyan + ts + Reset
}

func (p *Printer) render(color, text string) string {
	if !p.color {
		return displayText(text)
	}
	if color == "" {
		return RenderColors(text)
	}
	return color + RenderColors(text) + Reset
}

func (p *Printer) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.out, s)
}

func serverRows(servers []types.ServerRecord, color bool) []string {
	var nameWidth, mapWidth, aliasWidth int
	for _, srv := range servers {
		nameWidth = max(nameWidth, width(srv.Name))
		mapWidth = max(mapWidth, width(srv.Map.Name))
		aliasWidth = max(aliasWidth, width(srv.Map.Alias))
	}

	rows := make([]string, 0, len(servers))
	for i, srv := range servers {
		rows = append(rows, fmt.Sprintf("%2d. %s %s - %s - %s",
			i+1,
			pad(srv.Name, nameWidth),
			formatCount(srv.Occupancy, srv.Capacity, color),
			pad(srv.Map.Name, mapWidth),
			pad(srv.Map.Alias, aliasWidth),
		))
	}
	return rows
}

// width is the displayed width of text once color markers are removed.
func width(text string) int {
	return utf8.RuneCountInString(displayText(text))
}

func pad(text string, to int) string {
	if n := to - width(text); n > 0 {
		return text + strings.Repeat(" ", n)
	}
	return text
}
