package model

import "time"

// SessionStatus mirrors the session_status enum in PostgreSQL.
type SessionStatus string

const (
	SessionActive     SessionStatus = "ACTIVE"
	SessionTempClosed SessionStatus = "TEMP_CLOSED"
	SessionPermClosed SessionStatus = "PERM_CLOSED"
)

// Session is a time-boxed attendance window bound to one round.
type Session struct {
	ID        string        `json:"id"`
	JobID     string        `json:"job_id"`
	RoundID   string        `json:"round_id"`
	Status    SessionStatus `json:"status"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	CreatedBy string        `json:"created_by,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Open reports whether the session still blocks a new one from starting.
func (s Session) Open() bool {
	return s.Status == SessionActive || s.Status == SessionTempClosed
}

// Expired reports whether the advisory end time has passed. It is never used
// to reject a scan; the persisted status is authoritative.
func (s Session) Expired(now time.Time) bool {
	return s.EndTime != nil && !now.Before(*s.EndTime)
}
