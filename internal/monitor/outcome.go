package monitor

// Outcome is the result of one poll cycle or connect attempt.
type Outcome int

const (
	// Watching means the cycle ended without a decision; polling continues.
	Watching Outcome = iota
	ConnectedSuccess
	ServerFull
	UserReturn
	DetectorError
	SourceUnavailable
	TargetNotFound
	ClientNotFound
	TerminalNotFound
)

func (o Outcome) String() string {
	switch o {
	case Watching:
		return "watching"
	case ConnectedSuccess:
		return "connected"
	case ServerFull:
		return "server-full"
	case UserReturn:
		return "user-return"
	case DetectorError:
		return "detector-error"
	case SourceUnavailable:
		return "source-unavailable"
	case TargetNotFound:
		return "target-not-found"
	case ClientNotFound:
		return "client-not-found"
	case TerminalNotFound:
		return "terminal-not-found"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome ends the monitoring session.
func (o Outcome) Terminal() bool {
	switch o {
	case ConnectedSuccess, UserReturn, DetectorError, ClientNotFound, TerminalNotFound:
		return true
	default:
		return false
	}
}

// State is the position of a Session in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateWatching
	StateConnectAttempt
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateConnectAttempt:
		return "connect-attempt"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
