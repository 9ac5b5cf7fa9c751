package repository

import (
	"context"
	"database/sql"

	"placement/internal/model"
)

const profileColumns = `user_id, name, email, COALESCE(usn, ''), COALESCE(branch, ''), COALESCE(batch, ''),
	kyc_status, final_cgpa, cgpa, active_backlogs, COALESCE(has_backlogs, ''),
	COALESCE(highest_placement_tier, ''), placed_at, COALESCE(profile_photo, ''),
	COALESCE(phone, ''), COALESCE(parent_phone, '')`

func scanProfile(s scanner) (model.Profile, error) {
	var (
		pr        model.Profile
		finalCGPA sql.NullFloat64
		cgpa      sql.NullFloat64
		tier      string
		placedAt  sql.NullTime
	)
	err := s.Scan(&pr.UserID, &pr.Name, &pr.Email, &pr.USN, &pr.Branch, &pr.Batch,
		&pr.KYCStatus, &finalCGPA, &cgpa, &pr.ActiveBacklogs, &pr.HasBacklogs,
		&tier, &placedAt, &pr.ProfilePhoto, &pr.Phone, &pr.ParentPhone)
	if err != nil {
		return model.Profile{}, err
	}
	pr.FinalCGPA = floatPtr(finalCGPA)
	pr.CGPA = floatPtr(cgpa)
	pr.HighestPlacementTier = model.Tier(tier)
	if placedAt.Valid {
		t := placedAt.Time
		pr.PlacedAt = &t
	}
	return pr, nil
}

// GetProfile returns a student's profile.
func (p *Postgres) GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	pr, err := scanProfile(row)
	if err != nil {
		return model.Profile{}, notFound(err)
	}
	return pr, nil
}

// ListProfiles returns the profiles of userIDs keyed by user id. Missing ids are skipped.
func (p *Postgres) ListProfiles(ctx context.Context, userIDs []string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id IN (`+placeholders(1, len(userIDs))+`)`,
		anySlice(userIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		pr, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[pr.UserID] = pr
	}
	return out, rows.Err()
}

// GetApplication returns the non-removed application of a student to a job.
func (p *Postgres) GetApplication(ctx context.Context, userID, jobID string) (model.Application, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, job_id, is_removed, created_at
		FROM applications
		WHERE user_id = $1 AND job_id = $2 AND is_removed = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, jobID)
	var a model.Application
	if err := row.Scan(&a.ID, &a.UserID, &a.JobID, &a.IsRemoved, &a.CreatedAt); err != nil {
		return model.Application{}, notFound(err)
	}
	return a, nil
}

// GetApplicationByID returns an application by id, removed or not.
func (p *Postgres) GetApplicationByID(ctx context.Context, id string) (model.Application, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, job_id, is_removed, created_at FROM applications WHERE id::text = $1
	`, id)
	var a model.Application
	if err := row.Scan(&a.ID, &a.UserID, &a.JobID, &a.IsRemoved, &a.CreatedAt); err != nil {
		return model.Application{}, notFound(err)
	}
	return a, nil
}
