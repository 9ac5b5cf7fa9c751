// Package model holds the placement portal's persisted entities and the
// small value types shared by every service.
package model

import "time"

// KYC statuses mirror the kyc_status column on profiles.
const (
	KYCPending     = "PENDING"
	KYCUnderReview = "UNDER_REVIEW"
	KYCVerified    = "VERIFIED"
	KYCRejected    = "REJECTED"
	KYCIncomplete  = "INCOMPLETE"
)

// Job is a recruitment drive.
type Job struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	CompanyName     string   `json:"company_name"`
	Tier            Tier     `json:"tier"`
	IsDreamOffer    bool     `json:"is_dream_offer"`
	MinCGPA         *float64 `json:"min_cgpa,omitempty"`
	AllowedBranches []string `json:"allowed_branches"`
	EligibleBatch   string   `json:"eligible_batch,omitempty"`
	MaxBacklogs     *int     `json:"max_backlogs,omitempty"`
	Salary          *float64 `json:"salary,omitempty"`
	MinSalary       *float64 `json:"min_salary,omitempty"`
	MaxSalary       *float64 `json:"max_salary,omitempty"`
}

// Round is one ordered stage of a job's drive.
type Round struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	IsRemoved bool      `json:"is_removed"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the subset of a student's profile the attendance core reads and writes.
type Profile struct {
	UserID               string     `json:"user_id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	USN                  string     `json:"usn,omitempty"`
	Branch               string     `json:"branch,omitempty"`
	Batch                string     `json:"batch,omitempty"`
	KYCStatus            string     `json:"kyc_status"`
	FinalCGPA            *float64   `json:"final_cgpa,omitempty"`
	CGPA                 *float64   `json:"cgpa,omitempty"`
	ActiveBacklogs       bool       `json:"active_backlogs"`
	HasBacklogs          string     `json:"has_backlogs,omitempty"`
	HighestPlacementTier Tier       `json:"highest_placement_tier,omitempty"`
	PlacedAt             *time.Time `json:"placed_at,omitempty"`
	ProfilePhoto         string     `json:"profile_photo,omitempty"`
	Phone                string     `json:"phone,omitempty"`
	ParentPhone          string     `json:"parent_phone,omitempty"`
}

// EffectiveCGPA prefers the final CGPA over the running one.
func (p Profile) EffectiveCGPA() float64 {
	if p.FinalCGPA != nil && *p.FinalCGPA > 0 {
		return *p.FinalCGPA
	}
	if p.CGPA != nil {
		return *p.CGPA
	}
	return 0
}

// HasActiveBacklog reports either backlog flag.
func (p Profile) HasActiveBacklog() bool {
	return p.ActiveBacklogs || p.HasBacklogs == "yes"
}

// KYCVerified reports whether identity verification is complete.
func (p Profile) KYCVerified() bool { return p.KYCStatus == KYCVerified }

// Application links a student to a job they applied for.
type Application struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	JobID     string    `json:"job_id"`
	IsRemoved bool      `json:"is_removed"`
	CreatedAt time.Time `json:"created_at"`
}

// FinalSelected records a student confirmed hired for a job.
type FinalSelected struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	JobID      string     `json:"job_id"`
	USN        string     `json:"usn,omitempty"`
	Year       string     `json:"year,omitempty"`
	Tier       Tier       `json:"tier"`
	Package    *float64   `json:"package,omitempty"`
	Role       string     `json:"role,omitempty"`
	IsManual   bool       `json:"is_manual"`
	SelectedAt time.Time  `json:"selected_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	RemovedAt  *time.Time `json:"removed_at,omitempty"`
}

// Removed reports whether an admin removed the selection.
func (f FinalSelected) Removed() bool { return f.RemovedAt != nil }

// Placement is the reporting summary kept in lockstep with FinalSelected.
type Placement struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	JobID       string    `json:"job_id"`
	Tier        Tier      `json:"tier"`
	Salary      float64   `json:"salary"`
	CompanyName string    `json:"company_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LegacyAttendance is the pre-round attendance stub keyed by the application id
// that older QR codes carried.
type LegacyAttendance struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	JobID     string     `json:"job_id"`
	QRCode    string     `json:"qr_code"`
	ScannedAt *time.Time `json:"scanned_at,omitempty"`
	ScannedBy string     `json:"scanned_by,omitempty"`
	Location  string     `json:"location,omitempty"`
}

// AdminContext is the authorization capability carried into every admin operation.
type AdminContext struct {
	AdminID string
}

// StudentContext identifies the student on the token-issuance path.
type StudentContext struct {
	UserID string
}
