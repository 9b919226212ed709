// Package detect classifies console text written by the game client after a
// connect command.
package detect

import "strings"

// Signal is the classification of one console delta.
type Signal int

const (
	SignalNone Signal = iota
	SignalConnected
	SignalServerFull
)

const (
	// ConnectedMarker is printed by the client once the server's dvars are applied.
	ConnectedMarker = "not allowing server to override saved dvar"
	// ServerFullMarker is the error token printed when the join is refused.
	ServerFullMarker = "EXE_SERVERISFULL"
)

func (s Signal) String() string {
	switch s {
	case SignalConnected:
		return "connected"
	case SignalServerFull:
		return "server-full"
	default:
		return "none"
	}
}

// Classify scans chunk for the two outcome markers. Any other console output
// is ignored. The connected marker wins when both are present.
func Classify(chunk string) Signal {
	if chunk == "" {
		return SignalNone
	}
	if strings.Contains(chunk, ConnectedMarker) {
		return SignalConnected
	}
	if strings.Contains(chunk, ServerFullMarker) {
		return SignalServerFull
	}
	return SignalNone
}
