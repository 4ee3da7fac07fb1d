package models

import (
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so the worst of several can be picked with a max.
// ok and info rank equally.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// AlertEvent is a row of the durable alert log. Other components insert them;
// the realtime dispatcher only consumes them.
type AlertEvent struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Severity  Severity  `db:"severity"   json:"severity"`
	Title     string    `db:"title"      json:"title"`
	Message   string    `db:"message"    json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsValidAlertSeverity reports whether s may be stored on an AlertEvent.
func IsValidAlertSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}
