// Package alert runs external hook executables when a punch starts or stops.
package alert

import "time"

// Event names the transition a hook is told about.
type Event string

const (
	EventStart Event = "start"
	EventStop  Event = "stop"
)

// Manifest describes a hook's metadata and the events it wants.
// An empty Events list subscribes to every event.
type Manifest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Executable  string  `json:"executable"`
	Events      []Event `json:"events"`
}

// Request is the JSON document written to a hook's stdin.
type Request struct {
	Event      Event     `json:"event"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	SessionID  string    `json:"session_id,omitempty"`
	Time       time.Time `json:"time"`
}

// Response is what a hook may print on stdout. A hook that prints nothing
// and exits zero has succeeded.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Hook is a discovered or configured executable.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Wants reports whether h subscribes to e.
func (h *Hook) Wants(e Event) bool {
	if len(h.Manifest.Events) == 0 {
		return true
	}
	for _, want := range h.Manifest.Events {
		if want == e {
			return true
		}
	}
	return false
}
