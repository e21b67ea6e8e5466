package model

import "time"

// Console entry type constants.
const (
	ConsoleInfo    = "info"
	ConsoleError   = "error"
	ConsoleSuccess = "success"
)

// ConsoleLogEntry is a single line of the client-visible audit trail for an
// instance. Entries are held in a bounded in-memory ring and are not persisted
// beyond the instance's lifetime.
type ConsoleLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
}
