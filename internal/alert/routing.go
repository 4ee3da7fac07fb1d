// Package alert delivers newly recorded AlertEvents to live subscribers and
// records new ones on behalf of the rest of the service.
package alert

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/enrichq/pkg/models"
)

// Presentation channels.
const (
	ChannelBanner    = "banner"
	ChannelToast     = "toast"
	ChannelTransient = "transient"
)

const (
	criticalDwell = 10 * time.Second
	warningDwell  = 5 * time.Second
	infoDwell     = 3 * time.Second
)

// Notice is an AlertEvent prepared for display.
type Notice struct {
	EventID    uuid.UUID       `json:"event_id"`
	Severity   models.Severity `json:"severity"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Channel    string          `json:"channel"`
	Persistent bool            `json:"persistent"`
	Dwell      time.Duration   `json:"-"`
	DwellMs    int64           `json:"dwell_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Route maps an event to its presentation by severity. Unknown severities are
// shown like info.
func Route(ev models.AlertEvent) Notice {
	n := Notice{
		EventID:   ev.ID,
		Severity:  ev.Severity,
		Title:     ev.Title,
		Message:   ev.Message,
		CreatedAt: ev.CreatedAt,
	}

	switch ev.Severity {
	case models.SeverityCritical:
		n.Channel, n.Dwell, n.Persistent = ChannelBanner, criticalDwell, true
	case models.SeverityWarning:
		n.Channel, n.Dwell = ChannelToast, warningDwell
	default:
		n.Channel, n.Dwell = ChannelTransient, infoDwell
	}
	n.DwellMs = n.Dwell.Milliseconds()
	return n
}
