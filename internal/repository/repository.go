// Package repository defines the storage contracts of the placement core and
// their PostgreSQL implementation. Every uniqueness rule the core relies on
// (one attendance per student per round, one selection and one placement per
// student per job, one open session per round) is enforced by a database
// constraint, never by a read-then-write in Go.
package repository

import (
	"context"
	"errors"
	"time"

	"placement/internal/model"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrConflict is returned when a conditional update finds the row in an
	// unexpected state (a concurrent writer got there first).
	ErrConflict = errors.New("repository: conflicting state")
	// ErrRemoved is returned when a write would bring back a final selection
	// an admin removed.
	ErrRemoved = errors.New("repository: removed by admin")
)

// JobRepository reads recruitment drives.
type JobRepository interface {
	GetJob(ctx context.Context, id string) (model.Job, error)
}

// StudentRepository reads student profiles and applications.
type StudentRepository interface {
	GetProfile(ctx context.Context, userID string) (model.Profile, error)
	ListProfiles(ctx context.Context, userIDs []string) (map[string]model.Profile, error)
	// GetApplication returns the student's non-removed application to a job.
	GetApplication(ctx context.Context, userID, jobID string) (model.Application, error)
	GetApplicationByID(ctx context.Context, id string) (model.Application, error)
}

// RoundRepository manages the ordered rounds of a job.
type RoundRepository interface {
	ListRounds(ctx context.Context, jobID string, includeRemoved bool) ([]model.Round, error)
	GetRound(ctx context.Context, id string) (model.Round, error)
	// CreateRounds appends names after the job's current highest order.
	CreateRounds(ctx context.Context, jobID string, names []string) ([]model.Round, error)
	RemoveRound(ctx context.Context, jobID, roundID string) error
	// SwapRoundOrder exchanges the order values of two non-removed rounds atomically.
	SwapRoundOrder(ctx context.Context, jobID, roundA, roundB string) error
}

// SessionRepository persists attendance windows.
type SessionRepository interface {
	// CreateSession fails with ErrDuplicate when the round already has an
	// ACTIVE or TEMP_CLOSED session.
	CreateSession(ctx context.Context, s model.Session) (model.Session, error)
	GetSession(ctx context.Context, id string) (model.Session, error)
	// LatestSessionsByJob maps round id to that round's most recent session.
	LatestSessionsByJob(ctx context.Context, jobID string) (map[string]model.Session, error)
	ListSessions(ctx context.Context, jobID string) ([]model.Session, error)
	// UpdateSessionStatus moves a session from one status to another and
	// returns ErrConflict if it is no longer in from.
	UpdateSessionStatus(ctx context.Context, id string, from, to model.SessionStatus) (model.Session, error)
}

// AttendanceFilter narrows attendance listings.
type AttendanceFilter struct {
	JobID   string
	RoundID string
	Status  model.AttendanceStatus
	Page    int
	Limit   int
}

// AttendanceRepository persists round attendance.
type AttendanceRepository interface {
	// InsertAttendance fails with ErrDuplicate when (user, round) already exists.
	InsertAttendance(ctx context.Context, a model.RoundAttendance) (model.RoundAttendance, error)
	AttendanceForJob(ctx context.Context, userID, jobID string) ([]model.RoundAttendance, error)
	ListAttendance(ctx context.Context, f AttendanceFilter) ([]model.RoundAttendance, int, error)
	// AttendanceBatch returns the rows among ids that belong to jobID.
	AttendanceBatch(ctx context.Context, jobID string, ids []string) ([]model.RoundAttendance, error)
	// AdvanceAttendance sets status to to when the row is ATTENDED or already
	// to. Any other current status yields ErrConflict.
	AdvanceAttendance(ctx context.Context, id string, to model.AttendanceStatus) (model.RoundAttendance, error)
	// PendingSelectionJobs lists jobs with a PASSED attendance on their final
	// live round that lacks a FinalSelected or a Placement row. Removed
	// selections count as present.
	PendingSelectionJobs(ctx context.Context) ([]string, error)
}

// LegacyRepository persists pre-round attendance stubs.
type LegacyRepository interface {
	GetLegacyByCode(ctx context.Context, code string) (model.LegacyAttendance, error)
	CreateLegacy(ctx context.Context, l model.LegacyAttendance) (model.LegacyAttendance, error)
	// MarkLegacyScanned stamps an unscanned stub and returns ErrConflict if it
	// was already scanned.
	MarkLegacyScanned(ctx context.Context, id, adminID, location string, at time.Time) (model.LegacyAttendance, error)
}

// SelectionInput is one automatic final selection to record.
type SelectionInput struct {
	UserID      string
	JobID       string
	USN         string
	Year        string
	Tier        model.Tier
	Package     *float64
	Role        string
	CompanyName string
	Salary      float64
	At          time.Time
	// Revive clears an admin removal. Without it a removed selection yields
	// ErrRemoved and nothing is written.
	Revive bool
}

// SelectionOutcome reports what ApplyFinalSelection wrote.
type SelectionOutcome struct {
	Selection    model.FinalSelected
	Placement    model.Placement
	PreviousTier model.Tier
	Tier         model.Tier
}

// SelectionFilter narrows final-selection listings.
type SelectionFilter struct {
	JobID string
	Year  string
	Page  int
	Limit int
}

// SelectionRepository persists final selections and placements.
type SelectionRepository interface {
	// ApplyFinalSelection upserts FinalSelected (isManual=false) and Placement
	// keyed by (user, job) and merges the job tier into the student profile,
	// all in one transaction with the profile row locked.
	ApplyFinalSelection(ctx context.Context, in SelectionInput) (SelectionOutcome, error)
	// UpsertManualSelection upserts FinalSelected with isManual=true only. It
	// clears an earlier removal.
	UpsertManualSelection(ctx context.Context, fs model.FinalSelected) (model.FinalSelected, error)
	// GetFinalSelected returns the (user, job) selection, removed or not.
	GetFinalSelected(ctx context.Context, userID, jobID string) (model.FinalSelected, error)
	GetPlacement(ctx context.Context, userID, jobID string) (model.Placement, error)
	// ListFinalSelected lists selections that are not removed.
	ListFinalSelected(ctx context.Context, f SelectionFilter) ([]model.FinalSelected, int, error)
	// RemoveFinalSelected marks a live selection removed. The row stays so
	// reconciliation does not recreate it.
	RemoveFinalSelected(ctx context.Context, jobID, id string, at time.Time) (model.FinalSelected, error)
}

// Store is the full storage surface; both the Postgres and the in-memory
// implementations satisfy it.
type Store interface {
	JobRepository
	StudentRepository
	RoundRepository
	SessionRepository
	AttendanceRepository
	LegacyRepository
	SelectionRepository
}

// Paginate normalizes page/limit and returns the row offset.
func Paginate(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return page, limit, (page - 1) * limit
}
