package audit

import (
	"time"
)

// Record is a persisted security event. UserID and OrganizationID are
// promoted out of the field map so backends can index them; the full field
// set is retained verbatim for forensics.
type Record struct {
	ID             int64                  `json:"id,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Event          string                 `json:"event"`
	UserID         string                 `json:"user_id,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
}

// NewRecord builds a Record from a security event and its fields
func NewRecord(event string, fields map[string]interface{}, ts time.Time) Record {
	rec := Record{
		Timestamp: ts,
		Event:     event,
		Fields:    fields,
	}
	if v, ok := fields["user_id"].(string); ok {
		rec.UserID = v
	}
	if v, ok := fields["organization_id"].(string); ok {
		rec.OrganizationID = v
	}
	return rec
}

// Recorder is a durable backend for security events
type Recorder interface {
	Record(rec Record) error
	Close() error
}

// SearchFilter narrows a security event search. Zero values mean "any".
type SearchFilter struct {
	Event          string
	UserID         string
	OrganizationID string
	Since          time.Time
	Until          time.Time
	Limit          int
}

// RetentionPeriod is how long persisted security events are kept before the
// maintenance job purges them.
const RetentionPeriod = 90 * 24 * time.Hour
