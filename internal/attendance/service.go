// Package attendance runs both halves of round attendance: the student poll
// that hands out signed QR tokens, and the admin two-phase scan that verifies
// a token and then commits the attendance row.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/metrics"
	"placement/internal/model"
	"placement/internal/qrtoken"
	"placement/internal/repository"
)

// Store is the storage the attendance service needs.
type Store interface {
	repository.JobRepository
	repository.StudentRepository
	repository.RoundRepository
	repository.SessionRepository
	repository.AttendanceRepository
	repository.LegacyRepository
}

// Service coordinates token issuance, scan verification and attendance commits.
type Service struct {
	store   Store
	signer  *qrtoken.Signer
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a service backed by store and signer.
func NewService(store Store, signer *qrtoken.Signer, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, signer: signer, log: log, metrics: m, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StudentInfo is what the scanning admin sees to match the student in person.
type StudentInfo struct {
	UserID       string  `json:"userId"`
	Name         string  `json:"name"`
	Email        string  `json:"email,omitempty"`
	USN          string  `json:"usn,omitempty"`
	Branch       string  `json:"branch,omitempty"`
	ProfilePhoto string  `json:"profilePhoto,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	ParentPhone  string  `json:"parentPhone,omitempty"`
	CGPA         float64 `json:"cgpa,omitempty"`
}

// RoundInfo identifies a round in scan responses.
type RoundInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// JobInfo identifies a job in scan responses.
type JobInfo struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Company string `json:"company"`
}

func studentInfo(p model.Profile) StudentInfo {
	return StudentInfo{
		UserID:       p.UserID,
		Name:         p.Name,
		Email:        p.Email,
		USN:          p.USN,
		Branch:       p.Branch,
		ProfilePhoto: p.ProfilePhoto,
		Phone:        p.Phone,
		ParentPhone:  p.ParentPhone,
		CGPA:         p.EffectiveCGPA(),
	}
}

func jobInfo(j model.Job) JobInfo {
	return JobInfo{ID: j.ID, Title: j.Title, Company: j.CompanyName}
}

func roundInfo(r model.Round) RoundInfo {
	return RoundInfo{ID: r.ID, Name: r.Name, Order: r.Order}
}

func validID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "%s must be a valid id", field)
	}
	return nil
}

func (s *Service) getJob(ctx context.Context, jobID string) (model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Job{}, apperr.NotFound("job not found")
		}
		return model.Job{}, apperr.Internal(fmt.Errorf("get job: %w", err))
	}
	return job, nil
}

// requireCandidate checks that userID has a live application to jobID and a
// verified KYC, returning the profile.
func (s *Service) requireCandidate(ctx context.Context, userID, jobID string) (model.Profile, error) {
	if _, err := s.store.GetApplication(ctx, userID, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Profile{}, apperr.Forbidden(apperr.CodeNotApplied, "student has not applied to this job")
		}
		return model.Profile{}, apperr.Internal(fmt.Errorf("get application: %w", err))
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.Profile{}, apperr.Internal(fmt.Errorf("get profile: %w", err))
	}
	if err != nil || !profile.KYCVerified() {
		return model.Profile{}, apperr.Forbidden(apperr.CodeKYCNotVerified, "student's KYC is not verified")
	}
	return profile, nil
}

// attendanceByRound loads a student's attendance for a job keyed by round id.
func (s *Service) attendanceByRound(ctx context.Context, userID, jobID string) (map[string]model.RoundAttendance, error) {
	rows, err := s.store.AttendanceForJob(ctx, userID, jobID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("attendance for job: %w", err))
	}
	out := make(map[string]model.RoundAttendance, len(rows))
	for _, a := range rows {
		out[a.RoundID] = a
	}
	return out, nil
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Row is an attendance row joined with the student and round it belongs to.
type Row struct {
	model.RoundAttendance
	Student   StudentInfo `json:"student"`
	RoundName string      `json:"roundName"`
	Order     int         `json:"roundOrder"`
}

// List pages through a job's round attendance with optional round and status filters.
func (s *Service) List(ctx context.Context, f repository.AttendanceFilter) (Page[Row], error) {
	if err := validID("jobId", f.JobID); err != nil {
		return Page[Row]{}, err
	}
	if f.RoundID != "" {
		if err := validID("roundId", f.RoundID); err != nil {
			return Page[Row]{}, err
		}
	}
	rows, total, err := s.store.ListAttendance(ctx, f)
	if err != nil {
		return Page[Row]{}, apperr.Internal(fmt.Errorf("list attendance: %w", err))
	}
	rounds, err := s.store.ListRounds(ctx, f.JobID, true)
	if err != nil {
		return Page[Row]{}, apperr.Internal(fmt.Errorf("list rounds: %w", err))
	}
	byID := make(map[string]model.Round, len(rounds))
	for _, r := range rounds {
		byID[r.ID] = r
	}
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.UserID)
	}
	profiles, err := s.store.ListProfiles(ctx, ids)
	if err != nil {
		return Page[Row]{}, apperr.Internal(fmt.Errorf("list profiles: %w", err))
	}

	page, limit, _ := repository.Paginate(f.Page, f.Limit)
	out := Page[Row]{Items: make([]Row, 0, len(rows)), Total: total, Page: page, Limit: limit}
	for _, a := range rows {
		r := byID[a.RoundID]
		p, ok := profiles[a.UserID]
		if !ok {
			p = model.Profile{UserID: a.UserID}
		}
		out.Items = append(out.Items, Row{RoundAttendance: a, Student: studentInfo(p), RoundName: r.Name, Order: r.Order})
	}
	return out, nil
}
