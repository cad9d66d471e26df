package server

import (
	"time"
)

// StatusAborted marks requests that ended without a response because the
// connection was dropped.
const StatusAborted = 499

// Outcome describes one finished request on the file listener.
type Outcome struct {
	RequestID string        `json:"request_id"`
	Time      time.Time     `json:"time"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Name      string        `json:"name,omitempty"`
	Status    int           `json:"status"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration_ns"`
	ClientIP  string        `json:"client_ip"`
	UserAgent string        `json:"user_agent,omitempty"`
}

// observe fans an outcome out to metrics, the audit trail and the event
// feed. None of them may block the request.
func (s *Server) observe(out Outcome) {
	s.metrics.RecordRequest(out.Status)
	s.audit.Record(out)
	s.events.Publish(out)
}
