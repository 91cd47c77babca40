package app

import "github.com/Sharonmee/OpenEye/internal/scan"

type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
)

// Event is one update on a job's run, streamed to websocket watchers.
type Event struct {
	JobID string    `json:"job_id"`
	Type  EventType `json:"type"`

	// For status changes
	Status scan.Status `json:"status,omitempty"`
	Error  string      `json:"error,omitempty"`

	// For progress: the engine's own percentage within the named phase.
	Phase   string `json:"phase,omitempty"`
	Percent int    `json:"percent,omitempty"`
}
