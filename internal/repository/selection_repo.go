package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"placement/internal/model"
)

const selectionColumns = `id, user_id, job_id, COALESCE(usn, ''), COALESCE(year, ''), tier, package,
	COALESCE(role, ''), is_manual, selected_at, updated_at, removed_at`

func scanSelection(s scanner) (model.FinalSelected, error) {
	var (
		fs   model.FinalSelected
		tier    string
		pkg     sql.NullFloat64
		removed sql.NullTime
	)
	if err := s.Scan(&fs.ID, &fs.UserID, &fs.JobID, &fs.USN, &fs.Year, &tier, &pkg, &fs.Role, &fs.IsManual, &fs.SelectedAt, &fs.UpdatedAt, &removed); err != nil {
		return model.FinalSelected{}, err
	}
	fs.Tier = model.Tier(tier)
	fs.Package = floatPtr(pkg)
	if removed.Valid {
		fs.RemovedAt = &removed.Time
	}
	return fs, nil
}

const placementColumns = `id, user_id, job_id, tier, salary, company_name, created_at, updated_at`

func scanPlacement(s scanner) (model.Placement, error) {
	var (
		pl   model.Placement
		tier string
	)
	if err := s.Scan(&pl.ID, &pl.UserID, &pl.JobID, &tier, &pl.Salary, &pl.CompanyName, &pl.CreatedAt, &pl.UpdatedAt); err != nil {
		return model.Placement{}, err
	}
	pl.Tier = model.Tier(tier)
	return pl, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// ApplyFinalSelection runs the selection cascade for one student in a single
// transaction. The profile row is read FOR UPDATE so two jobs concluding for
// the same student cannot lose a tier upgrade. A removed selection is only
// overwritten when in.Revive is set; the conditional DO UPDATE then returns
// no row and the transaction rolls back with ErrRemoved.
func (p *Postgres) ApplyFinalSelection(ctx context.Context, in SelectionInput) (SelectionOutcome, error) {
	var out SelectionOutcome
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		fs, err := scanSelection(tx.QueryRowContext(ctx, `
			INSERT INTO final_selected (id, user_id, job_id, usn, year, tier, package, role, is_manual, selected_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)
			ON CONFLICT (user_id, job_id) DO UPDATE SET
				tier = EXCLUDED.tier,
				package = EXCLUDED.package,
				role = EXCLUDED.role,
				is_manual = FALSE,
				updated_at = EXCLUDED.updated_at,
				removed_at = NULL
			WHERE $10 OR final_selected.removed_at IS NULL
			RETURNING `+selectionColumns,
			uuid.NewString(), in.UserID, in.JobID, nullString(in.USN), nullString(in.Year),
			string(in.Tier), nullFloat(in.Package), nullString(in.Role), in.At, in.Revive))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRemoved
		}
		if err != nil {
			return fmt.Errorf("upsert final_selected: %w", err)
		}
		out.Selection = fs

		pl, err := scanPlacement(tx.QueryRowContext(ctx, `
			INSERT INTO placements (id, user_id, job_id, tier, salary, company_name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (user_id, job_id) DO UPDATE SET
				tier = EXCLUDED.tier,
				salary = EXCLUDED.salary,
				updated_at = EXCLUDED.updated_at
			RETURNING `+placementColumns,
			uuid.NewString(), in.UserID, in.JobID, string(in.Tier), in.Salary, in.CompanyName, in.At))
		if err != nil {
			return fmt.Errorf("upsert placement: %w", err)
		}
		out.Placement = pl

		var current string
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(highest_placement_tier, '') FROM profiles WHERE user_id = $1 FOR UPDATE
		`, in.UserID).Scan(&current); err != nil {
			return fmt.Errorf("lock profile: %w", notFound(err))
		}
		out.PreviousTier = model.Tier(current)
		out.Tier = model.MergeTier(out.PreviousTier, in.Tier)
		if out.Tier != out.PreviousTier {
			if _, err := tx.ExecContext(ctx, `
				UPDATE profiles SET highest_placement_tier = $2, placed_at = $3 WHERE user_id = $1
			`, in.UserID, string(out.Tier), in.At); err != nil {
				return fmt.Errorf("merge tier: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return SelectionOutcome{}, err
	}
	return out, nil
}

// UpsertManualSelection records an admin override. It never touches the
// placement or the profile tier.
func (p *Postgres) UpsertManualSelection(ctx context.Context, fs model.FinalSelected) (model.FinalSelected, error) {
	out, err := scanSelection(p.db.QueryRowContext(ctx, `
		INSERT INTO final_selected (id, user_id, job_id, usn, year, tier, package, role, is_manual, selected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $9)
		ON CONFLICT (user_id, job_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			package = EXCLUDED.package,
			role = EXCLUDED.role,
			is_manual = TRUE,
			updated_at = EXCLUDED.updated_at,
			removed_at = NULL
		RETURNING `+selectionColumns,
		uuid.NewString(), fs.UserID, fs.JobID, nullString(fs.USN), nullString(fs.Year),
		string(fs.Tier), nullFloat(fs.Package), nullString(fs.Role), fs.SelectedAt))
	if err != nil {
		return model.FinalSelected{}, err
	}
	return out, nil
}

// GetFinalSelected returns the selection for (user, job), removed or not.
func (p *Postgres) GetFinalSelected(ctx context.Context, userID, jobID string) (model.FinalSelected, error) {
	fs, err := scanSelection(p.db.QueryRowContext(ctx, `
		SELECT `+selectionColumns+` FROM final_selected WHERE user_id = $1 AND job_id = $2
	`, userID, jobID))
	if err != nil {
		return model.FinalSelected{}, notFound(err)
	}
	return fs, nil
}

// GetPlacement returns the placement for (user, job).
func (p *Postgres) GetPlacement(ctx context.Context, userID, jobID string) (model.Placement, error) {
	pl, err := scanPlacement(p.db.QueryRowContext(ctx, `
		SELECT `+placementColumns+` FROM placements WHERE user_id = $1 AND job_id = $2
	`, userID, jobID))
	if err != nil {
		return model.Placement{}, notFound(err)
	}
	return pl, nil
}

// ListFinalSelected pages through a job's selections, newest first.
func (p *Postgres) ListFinalSelected(ctx context.Context, f SelectionFilter) ([]model.FinalSelected, int, error) {
	_, limit, offset := Paginate(f.Page, f.Limit)
	where := ` WHERE job_id = $1 AND removed_at IS NULL`
	args := []any{f.JobID}
	if f.Year != "" {
		args = append(args, f.Year)
		where += ` AND year = $2`
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM final_selected`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := p.db.QueryContext(ctx, `SELECT `+selectionColumns+` FROM final_selected`+where+
		` ORDER BY selected_at DESC LIMIT `+placeholders(len(args)+1, 1)+` OFFSET `+placeholders(len(args)+2, 1),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.FinalSelected
	for rows.Next() {
		fs, err := scanSelection(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, fs)
	}
	return out, total, rows.Err()
}

// RemoveFinalSelected stamps removed_at on a live selection of the job.
func (p *Postgres) RemoveFinalSelected(ctx context.Context, jobID, id string, at time.Time) (model.FinalSelected, error) {
	fs, err := scanSelection(p.db.QueryRowContext(ctx, `
		UPDATE final_selected SET removed_at = $3, updated_at = $3
		WHERE id = $1 AND job_id = $2 AND removed_at IS NULL
		RETURNING `+selectionColumns,
		id, jobID, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.FinalSelected{}, ErrNotFound
		}
		return model.FinalSelected{}, err
	}
	return fs, nil
}
