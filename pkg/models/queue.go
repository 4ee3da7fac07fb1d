package models

import "time"

// QueueMetricsSnapshot is a point-in-time read projection of the job store.
// The counts are independent reads and need not be mutually consistent.
type QueueMetricsSnapshot struct {
	Pending      int       `json:"pending"`
	Processing   int       `json:"processing"`
	Completed24h int       `json:"completed_24h"`
	Failed24h    int       `json:"failed_24h"`
	Stuck        int       `json:"stuck"`
	ComputedAt   time.Time `json:"computed_at"`
}

// SuccessRate is completed / (completed + failed) over the trailing window.
// With no finished jobs it returns 1.
func (s QueueMetricsSnapshot) SuccessRate() float64 {
	finished := s.Completed24h + s.Failed24h
	if finished == 0 {
		return 1
	}
	return float64(s.Completed24h) / float64(finished)
}
