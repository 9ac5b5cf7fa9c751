package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"placement/internal/model"
)

const attendanceColumns = `id, user_id, job_id, round_id, session_id, status, marked_at,
	COALESCE(marked_by, ''), COALESCE(location, ''), updated_at`

func scanAttendance(s scanner) (model.RoundAttendance, error) {
	var (
		a      model.RoundAttendance
		status string
	)
	if err := s.Scan(&a.ID, &a.UserID, &a.JobID, &a.RoundID, &a.SessionID, &status, &a.MarkedAt, &a.MarkedBy, &a.Location, &a.UpdatedAt); err != nil {
		return model.RoundAttendance{}, err
	}
	a.Status = model.AttendanceStatus(status)
	return a, nil
}

func collectAttendance(rows *sql.Rows) ([]model.RoundAttendance, error) {
	defer rows.Close()
	var out []model.RoundAttendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAttendance creates the (user, round) row or reports ErrDuplicate.
func (p *Postgres) InsertAttendance(ctx context.Context, a model.RoundAttendance) (model.RoundAttendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.AttendanceAttended
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO round_attendance (id, user_id, job_id, round_id, session_id, status, marked_at, marked_by, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, round_id) DO NOTHING
		RETURNING `+attendanceColumns,
		a.ID, a.UserID, a.JobID, a.RoundID, a.SessionID, string(a.Status), a.MarkedAt, nullString(a.MarkedBy), nullString(a.Location))
	out, err := scanAttendance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return model.RoundAttendance{}, ErrDuplicate
		}
		return model.RoundAttendance{}, err
	}
	return out, nil
}

// AttendanceForJob returns every round attendance of a student for a job.
func (p *Postgres) AttendanceForJob(ctx context.Context, userID, jobID string) ([]model.RoundAttendance, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+` FROM round_attendance WHERE user_id = $1 AND job_id = $2
	`, userID, jobID)
	if err != nil {
		return nil, err
	}
	return collectAttendance(rows)
}

// ListAttendance pages through a job's attendance, newest first.
func (p *Postgres) ListAttendance(ctx context.Context, f AttendanceFilter) ([]model.RoundAttendance, int, error) {
	_, limit, offset := Paginate(f.Page, f.Limit)
	where := ` WHERE job_id = $1`
	args := []any{f.JobID}
	if f.RoundID != "" {
		args = append(args, f.RoundID)
		where += ` AND round_id = $2`
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += ` AND status = ` + placeholders(len(args), 1)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM round_attendance`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + attendanceColumns + ` FROM round_attendance` + where +
		` ORDER BY marked_at DESC LIMIT ` + placeholders(len(args)+1, 1) + ` OFFSET ` + placeholders(len(args)+2, 1)
	rows, err := p.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectAttendance(rows)
	return out, total, err
}

// AttendanceBatch loads the rows among ids that belong to jobID.
func (p *Postgres) AttendanceBatch(ctx context.Context, jobID string, ids []string) ([]model.RoundAttendance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]any{jobID}, anySlice(ids)...)
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+` FROM round_attendance
		WHERE job_id = $1 AND id IN (`+placeholders(2, len(ids))+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	return collectAttendance(rows)
}

// AdvanceAttendance moves ATTENDED to a verdict. Re-applying the same verdict
// is a no-op that still returns the row; PASSED <-> FAILED is refused.
func (p *Postgres) AdvanceAttendance(ctx context.Context, id string, to model.AttendanceStatus) (model.RoundAttendance, error) {
	a, err := scanAttendance(p.db.QueryRowContext(ctx, `
		UPDATE round_attendance
		SET status = $2,
		    updated_at = CASE WHEN status = $2 THEN updated_at ELSE NOW() END
		WHERE id = $1 AND status IN ('ATTENDED', $2)
		RETURNING `+attendanceColumns,
		id, string(to)))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.RoundAttendance{}, err
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM round_attendance WHERE id = $1)`, id).Scan(&exists); err != nil {
		return model.RoundAttendance{}, err
	}
	if !exists {
		return model.RoundAttendance{}, ErrNotFound
	}
	return model.RoundAttendance{}, ErrConflict
}

// PendingSelectionJobs finds jobs whose final-round PASSED rows are missing
// cascade output. A removed selection counts as present.
func (p *Postgres) PendingSelectionJobs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ra.job_id::text
		FROM round_attendance ra
		JOIN job_rounds r ON r.id = ra.round_id AND r.is_removed = FALSE
		WHERE ra.status = 'PASSED'
		  AND r.round_order = (
		      SELECT MAX(round_order) FROM job_rounds
		      WHERE job_id = ra.job_id AND is_removed = FALSE)
		  AND NOT EXISTS (
		      SELECT 1 FROM final_selected fs
		      WHERE fs.user_id = ra.user_id AND fs.job_id = ra.job_id AND fs.removed_at IS NOT NULL)
		  AND (
		      NOT EXISTS (SELECT 1 FROM final_selected fs WHERE fs.user_id = ra.user_id AND fs.job_id = ra.job_id)
		      OR NOT EXISTS (SELECT 1 FROM placements pl WHERE pl.user_id = ra.user_id AND pl.job_id = ra.job_id))
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
