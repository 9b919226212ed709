package shell

import (
	"fmt"

	"github.com/pingsantohq/slotwatch/pkg/types"
)

// Announcer renders monitor events for the operator. It implements
// events.Recorder.
type Announcer struct {
	printer   *Printer
	cancelKey string
}

func NewAnnouncer(p *Printer, cancelKey string) *Announcer {
	if cancelKey == "" {
		cancelKey = "r"
	}
	return &Announcer{printer: p, cancelKey: cancelKey}
}

func (a *Announcer) Record(ev types.Event) {
	p := a.printer
	switch ev.Type {
	case types.EventWatchStarted:
		if ev.Server == nil {
			p.Line(Magenta, "Selected server: "+string(ev.ServerID))
			break
		}
		srv := *ev.Server
		p.ServerTable([]types.ServerRecord{srv})
		p.Line(Magenta, "Selected server: "+srv.Name)
		p.Line(Blue, fmt.Sprintf("[%d/%d] - %s - %s", srv.Occupancy, srv.Capacity, srv.Map.Name, srv.Map.Alias))
		p.Line(Yellow, fmt.Sprintf("Press '%s' and enter to return to server selection.", a.cancelKey))
	case types.EventMapChanged:
		name := ev.Message
		if ev.Server != nil {
			name = ev.Server.Map.Name
		}
		p.Line(Yellow, "Map changed to: "+name)
	case types.EventServerFull:
		p.Line(Red, "🔒 Server is full - ["+ev.Message+"]")
	case types.EventSlotAvailable:
		p.Line(Green, "🎮 Slot available! Connecting to the server...")
	case types.EventFetchFailed:
		if reason := ev.Details["error"]; reason != "" {
			p.Line(Red, "Error fetching server status: "+reason)
		}
		p.Line(Red, "❌ Failed to fetch server status.")
	case types.EventTargetNotFound:
		p.Line(Red, "❌ Chosen server not found in status update.")
	case types.EventClientMissing:
		p.Line(Red, "No Plutonium console window found")
	case types.EventConnected:
		p.Line(Green, "✅ Successfully connected to the server!")
	case types.EventRetry:
		delay := ev.Details["retry_in"]
		if delay == "" {
			delay = "a moment"
		}
		p.Line(Yellow, "🔒 Server is full, retrying in "+delay+"...")
	case types.EventReturned:
		p.Line(Yellow, "Returning to server selection.")
	case types.EventError:
		p.Line(Red, "❌ "+ev.Message)
	default:
		if ev.Message != "" {
			p.Line("", ev.Message)
		}
	}
}
