package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/model"
	"placement/internal/repository"
)

// ManualRequest is an admin override. Empty fields fall back to the job.
type ManualRequest struct {
	UserID  string
	Tier    string
	Package *float64
	Role    string
}

// ManualSelect upserts a FinalSelected with isManual=true. It writes no
// Placement and leaves the student's placement tier alone.
func (s *Service) ManualSelect(ctx context.Context, admin model.AdminContext, jobID string, req ManualRequest) (model.FinalSelected, error) {
	if req.UserID == "" {
		return model.FinalSelected{}, apperr.Validation(apperr.CodeInvalidRequest, "userId is required")
	}
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return model.FinalSelected{}, err
	}
	if _, err := s.store.GetApplication(ctx, req.UserID, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.FinalSelected{}, apperr.Validation(apperr.CodeNotApplied, "student has not applied to this job")
		}
		return model.FinalSelected{}, apperr.Internal(fmt.Errorf("get application: %w", err))
	}

	tier := job.Tier
	if req.Tier != "" {
		if tier, err = model.ParseTier(req.Tier); err != nil {
			return model.FinalSelected{}, apperr.Validation(apperr.CodeInvalidRequest, "%v", err)
		}
	}
	if !tier.Valid() {
		tier = model.TierThree
	}
	pkg := req.Package
	if pkg == nil {
		pkg = job.MaxSalary
	}
	role := req.Role
	if role == "" {
		role = job.Title
	}

	profile, err := s.store.GetProfile(ctx, req.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.FinalSelected{}, apperr.Internal(fmt.Errorf("get profile: %w", err))
	}
	fs, err := s.store.UpsertManualSelection(ctx, model.FinalSelected{
		UserID:     req.UserID,
		JobID:      jobID,
		USN:        profile.USN,
		Year:       profile.Batch,
		Tier:       tier,
		Package:    pkg,
		Role:       role,
		SelectedAt: s.now().UTC(),
	})
	if err != nil {
		return model.FinalSelected{}, apperr.Internal(fmt.Errorf("upsert manual selection: %w", err))
	}
	s.log.Info("final selection manual added",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", jobID),
		zap.String("user_id", req.UserID),
	)
	return fs, nil
}

// Page is one page of final selections.
type Page struct {
	Items []model.FinalSelected `json:"items"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// List pages through a job's final selections, optionally by year.
func (s *Service) List(ctx context.Context, f repository.SelectionFilter) (Page, error) {
	if _, err := uuid.Parse(f.JobID); err != nil {
		return Page{}, apperr.Validation(apperr.CodeInvalidRequest, "jobId must be a valid id")
	}
	items, total, err := s.store.ListFinalSelected(ctx, f)
	if err != nil {
		return Page{}, apperr.Internal(fmt.Errorf("list final selections: %w", err))
	}
	page, limit, _ := repository.Paginate(f.Page, f.Limit)
	if items == nil {
		items = []model.FinalSelected{}
	}
	return Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Remove marks a selection of the job as removed. The placement and tier
// written by an earlier cascade are kept, and background repair will not
// recreate the selection; re-running the batch or a manual add restores it.
func (s *Service) Remove(ctx context.Context, admin model.AdminContext, jobID, selectionID string) error {
	if _, err := uuid.Parse(jobID); err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "jobId must be a valid id")
	}
	if _, err := uuid.Parse(selectionID); err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "selectionId must be a valid id")
	}
	fs, err := s.store.RemoveFinalSelected(ctx, jobID, selectionID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("selection not found")
		}
		return apperr.Internal(fmt.Errorf("remove final selection: %w", err))
	}
	s.log.Info("final selection removed",
		zap.String("admin_id", admin.AdminID),
		zap.String("job_id", jobID),
		zap.String("selection_id", selectionID),
		zap.String("user_id", fs.UserID),
	)
	return nil
}
