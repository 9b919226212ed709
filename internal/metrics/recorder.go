package metrics

// SessionRecorder receives per-cycle observations from a monitoring session.
type SessionRecorder interface {
	IncPolls()
	IncFetchFailures()
	IncTargetMissing()
	IncFullReports()
	IncConnectAttempts()
	IncServerFullRetries()
	IncConnected()
	IncAborts()
	ObserveOccupancy(occupancy, capacity int)
}

type NoopSessionRecorder struct{}

func (NoopSessionRecorder) IncPolls()                                {}
func (NoopSessionRecorder) IncFetchFailures()                        {}
func (NoopSessionRecorder) IncTargetMissing()                        {}
func (NoopSessionRecorder) IncFullReports()                          {}
func (NoopSessionRecorder) IncConnectAttempts()                      {}
func (NoopSessionRecorder) IncServerFullRetries()                    {}
func (NoopSessionRecorder) IncConnected()                            {}
func (NoopSessionRecorder) IncAborts()                               {}
func (NoopSessionRecorder) ObserveOccupancy(occupancy, capacity int) {}
