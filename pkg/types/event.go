package types

import "time"

type EventType string

const (
	EventWatchStarted   EventType = "WatchStarted"
	EventMapChanged     EventType = "MapChanged"
	EventServerFull     EventType = "ServerFull"
	EventSlotAvailable  EventType = "SlotAvailable"
	EventFetchFailed    EventType = "FetchFailed"
	EventTargetNotFound EventType = "TargetNotFound"
	EventClientMissing  EventType = "ClientMissing"
	EventConnected      EventType = "Connected"
	EventRetry          EventType = "Retry"
	EventReturned       EventType = "Returned"
	EventError          EventType = "Error"
)

type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"ts"`
	SessionID string            `json:"session_id,omitempty"`
	ServerID  ServerID          `json:"server_id,omitempty"`
	Message   string            `json:"message,omitempty"`
	Server    *ServerRecord     `json:"server,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}
