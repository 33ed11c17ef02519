package domain

// SessionState is the lifecycle state of a worker session
type SessionState string

// Session state constants
const (
	SessionAwaitingGreeting SessionState = "AWAITING_GREETING"
	SessionReady            SessionState = "READY"
	SessionServing          SessionState = "SERVING"
	SessionDone             SessionState = "DONE"
)

// InsertResult is the outcome of recording a completion
type InsertResult int

const (
	Recorded InsertResult = iota
	AlreadyRecorded
)

func (r InsertResult) String() string {
	if r == AlreadyRecorded {
		return "already_recorded"
	}
	return "recorded"
}

// Progress display modes
const (
	ModeSpinner = "spinner"
	ModeBar     = "bar"
)
