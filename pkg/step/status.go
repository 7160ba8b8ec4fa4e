package step

import "encoding/json"

// Status is the lifecycle state of a Copy.
type Status int32

const (
	StatusEmpty Status = iota
	StatusInit
	StatusIdle
	StatusRunning
	StatusPaused
	StatusHalting
	StatusStopped
	StatusFinished
	StatusDisposed
)

var statusNames = [...]string{
	StatusEmpty:    "Empty",
	StatusInit:     "Initializing",
	StatusIdle:     "Idle",
	StatusRunning:  "Running",
	StatusPaused:   "Paused",
	StatusHalting:  "Halting",
	StatusStopped:  "Stopped",
	StatusFinished: "Finished",
	StatusDisposed: "Disposed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Done reports whether s is a terminal state.
func (s Status) Done() bool {
	return s == StatusStopped || s == StatusFinished || s == StatusDisposed
}
