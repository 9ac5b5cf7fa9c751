package model

import "time"

// AttendanceStatus is the adjudication state of a RoundAttendance.
type AttendanceStatus string

const (
	AttendanceAttended AttendanceStatus = "ATTENDED"
	AttendancePassed   AttendanceStatus = "PASSED"
	AttendanceFailed   AttendanceStatus = "FAILED"
)

// ParseAttendanceStatus converts a raw string, rejecting unknown values.
func ParseAttendanceStatus(s string) (AttendanceStatus, bool) {
	switch st := AttendanceStatus(s); st {
	case AttendanceAttended, AttendancePassed, AttendanceFailed:
		return st, true
	}
	return "", false
}

// RoundAttendance is the single attendance row of a student in a round.
type RoundAttendance struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	JobID     string           `json:"job_id"`
	RoundID   string           `json:"round_id"`
	SessionID string           `json:"session_id"`
	Status    AttendanceStatus `json:"status"`
	MarkedAt  time.Time        `json:"marked_at"`
	MarkedBy  string           `json:"marked_by,omitempty"`
	Location  string           `json:"location,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}
