package eventbus

import "time"

// Event types published by the broadcast lifecycle.
const (
	BroadcastStartRequested = "broadcast.start_requested"
	BroadcastStartFailed    = "broadcast.start_failed"
	BroadcastStopRequested  = "broadcast.stop_requested"
	BroadcastStopFailed     = "broadcast.stop_failed"

	TerminationArmed     = "termination.armed"
	TerminationCancelled = "termination.cancelled"
	TerminationFired     = "termination.fired"
)

// BroadcastEvent is the Data payload for broadcast.* events.
type BroadcastEvent struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"` // "schedule", "expired", "timer", "external"
	Error  string `json:"error,omitempty"`
}

// TerminationEvent is the Data payload for termination.* events.
type TerminationEvent struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}
