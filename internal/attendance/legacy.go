package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/model"
	"placement/internal/repository"
)

// legacyCode extracts the application id older QR codes carried, either as
// the raw string or as {"applicationId": "..."}.
func legacyCode(raw string) string {
	var body struct {
		ApplicationID string `json:"applicationId"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err == nil && body.ApplicationID != "" {
		return body.ApplicationID
	}
	return raw
}

// legacyScan records pre-round attendance in a single step. A stub keyed by
// the application id is created on first scan; a scanned stub yields
// ALREADY_ATTENDED.
func (s *Service) legacyScan(ctx context.Context, admin model.AdminContext, raw, jobFilter, location string) (ScanResult, error) {
	code := legacyCode(raw)
	now := s.now().UTC()

	stub, err := s.store.GetLegacyByCode(ctx, code)
	switch {
	case err == nil:
		if stub.ScannedAt != nil {
			return ScanResult{}, s.legacyDuplicate(ctx, stub)
		}
		marked, err := s.store.MarkLegacyScanned(ctx, stub.ID, admin.AdminID, location, now)
		if errors.Is(err, repository.ErrConflict) {
			return ScanResult{}, s.legacyDuplicate(ctx, stub)
		}
		if err != nil {
			return ScanResult{}, apperr.Internal(fmt.Errorf("mark legacy scanned: %w", err))
		}
		stub = marked
	case errors.Is(err, repository.ErrNotFound):
		app, err := s.store.GetApplicationByID(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ScanResult{}, apperr.NotFound("invalid QR code: not a valid token and no matching application")
			}
			return ScanResult{}, apperr.Internal(fmt.Errorf("get application: %w", err))
		}
		if jobFilter != "" && app.JobID != jobFilter {
			return ScanResult{}, apperr.Validation(apperr.CodeWrongJob, "this application is for a different job")
		}
		stub, err = s.store.CreateLegacy(ctx, model.LegacyAttendance{
			StudentID: app.UserID,
			JobID:     app.JobID,
			QRCode:    code,
			ScannedAt: &now,
			ScannedBy: admin.AdminID,
			Location:  location,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			existing, err := s.store.GetLegacyByCode(ctx, code)
			if err != nil {
				return ScanResult{}, apperr.Internal(fmt.Errorf("reload legacy attendance: %w", err))
			}
			return ScanResult{}, s.legacyDuplicate(ctx, existing)
		}
		if err != nil {
			return ScanResult{}, apperr.Internal(fmt.Errorf("create legacy attendance: %w", err))
		}
	default:
		return ScanResult{}, apperr.Internal(fmt.Errorf("get legacy attendance: %w", err))
	}

	s.log.Info("legacy attendance recorded",
		zap.String("admin_id", admin.AdminID),
		zap.String("application_id", code),
		zap.String("user_id", stub.StudentID),
		zap.String("job_id", stub.JobID),
	)
	profile, job := s.legacyContext(ctx, stub)
	return ScanResult{
		Message:   "Attendance recorded successfully (legacy mode)",
		Legacy:    true,
		Student:   studentInfo(profile),
		Job:       jobInfo(job),
		ScannedAt: stub.ScannedAt,
	}, nil
}

func (s *Service) legacyDuplicate(ctx context.Context, stub model.LegacyAttendance) error {
	profile, job := s.legacyContext(ctx, stub)
	return apperr.Conflict(apperr.CodeAlreadyAttended, "attendance already recorded").
		With("student", studentInfo(profile)).
		With("job", jobInfo(job)).
		With("scannedAt", stub.ScannedAt)
}

// legacyContext loads display info for a stub; missing rows leave fields blank.
func (s *Service) legacyContext(ctx context.Context, stub model.LegacyAttendance) (model.Profile, model.Job) {
	profile, err := s.store.GetProfile(ctx, stub.StudentID)
	if err != nil {
		profile = model.Profile{UserID: stub.StudentID}
	}
	var job model.Job
	if stub.JobID != "" {
		job, _ = s.store.GetJob(ctx, stub.JobID)
	}
	return profile, job
}
