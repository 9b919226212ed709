package shell

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pingsantohq/slotwatch/pkg/types"
)

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 34, 56, 789_000_000, time.UTC)
}

func newTestPrinter(buf *bytes.Buffer) *Printer {
	return NewPrinter(buf, WithClock(fixedClock), WithColor(false))
}

func TestPrinterLine(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)
	p.Line(Red, "^1hello")
	p.Plain("plain")
	p.Prompt(Yellow, "choose: ")

	want := "[12:34:56.789] hello\nplain\n[12:34:56.789] choose: "
	if buf.String() != want {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPrinterColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, WithClock(fixedClock))
	p.Line(Green, "ok")

	want := Cyan + "[12:34:56.789] " + Reset + Green + "ok" + Reset + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected colored output %q", buf.String())
	}
}

func TestServerRowsAlignByStrippedWidth(t *testing.T) {
	servers := []types.ServerRecord{
		{Name: "^1Red^7Sniper", Occupancy: 18, Capacity: 18, Map: types.MapInfo{Name: "mp_dome", Alias: "Dome"}},
		{Name: "Long Plain Name", Occupancy: 3, Capacity: 18, Map: types.MapInfo{Name: "mp_seatown", Alias: "Seatown"}},
	}
	rows := serverRows(servers, false)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	first := StripColors(rows[0])
	second := StripColors(rows[1])
	if strings.Index(first, "[") != strings.Index(second, "[") {
		t.Fatalf("counts not aligned:\n%q\n%q", first, second)
	}
	if !strings.HasPrefix(first, " 1. RedSniper       [18/18] - mp_dome    - Dome") {
		t.Fatalf("unexpected first row %q", first)
	}
	if !strings.HasPrefix(second, " 2. Long Plain Name [ 3/18] - mp_seatown - Seatown") {
		t.Fatalf("unexpected second row %q", second)
	}
}

func TestServerTableColoredCounts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, WithClock(fixedClock))
	p.ServerTable([]types.ServerRecord{{Name: "A", Occupancy: 18, Capacity: 18}})
	if !strings.Contains(buf.String(), Red+"[18/18]"+Reset) {
		t.Fatalf("expected red full count, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "Available servers:") {
		t.Fatalf("expected table heading, got %q", buf.String())
	}
}

func TestServerTableKeepsLiteralCaretsAfterSinglePass(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf)
	p.ServerTable([]types.ServerRecord{
		{Name: "^^11Clan", Occupancy: 1, Capacity: 18, Map: types.MapInfo{Name: "mp_dome", Alias: "Dome"}},
		{Name: "Clan12345", Occupancy: 2, Capacity: 18, Map: types.MapInfo{Name: "mp_dome", Alias: "Dome"}},
	})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected heading and two rows, got %q", buf.String())
	}
	if lines[1] != " 1. ^1Clan    [ 1/18] - mp_dome - Dome" {
		t.Fatalf("unexpected first row %q", lines[1])
	}
	if lines[2] != " 2. Clan12345 [ 2/18] - mp_dome - Dome" {
		t.Fatalf("unexpected second row %q", lines[2])
	}
}
