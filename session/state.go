package session

import "fmt"

// State represents the session lifecycle state. Exactly one is active at
// any time.
type State int

const (
	// StateIdle means no recording is in progress.
	StateIdle State = iota

	// StateRecording means audio is being captured and buffered.
	StateRecording

	// StateProcessing means a finished artifact is being dispatched for
	// transcription.
	StateProcessing

	// StateError means the last acquisition, recording, or dispatch failed.
	// A new Start clears it; the session object remains usable.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Snapshot is the consolidated observable status of a session. It is read
// from the session's authoritative fields; observers receive one on every
// state transition and may poll via Session.Snapshot at any time.
type Snapshot struct {
	State           State
	EnergyLevel     float64
	DurationSeconds int
	LastError       error
}
