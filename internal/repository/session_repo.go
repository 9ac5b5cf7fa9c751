package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"placement/internal/model"
)

const sessionColumns = `id, job_id, round_id, status, start_time, end_time, COALESCE(created_by, ''), created_at, updated_at`

func scanSession(s scanner) (model.Session, error) {
	var (
		ss     model.Session
		status string
		end    sql.NullTime
	)
	if err := s.Scan(&ss.ID, &ss.JobID, &ss.RoundID, &status, &ss.StartTime, &end, &ss.CreatedBy, &ss.CreatedAt, &ss.UpdatedAt); err != nil {
		return model.Session{}, err
	}
	ss.Status = model.SessionStatus(status)
	if end.Valid {
		t := end.Time
		ss.EndTime = &t
	}
	return ss, nil
}

// CreateSession inserts a session. The partial unique index on open sessions
// turns a second concurrent start into ErrDuplicate.
func (p *Postgres) CreateSession(ctx context.Context, s model.Session) (model.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	var end sql.NullTime
	if s.EndTime != nil {
		end = sql.NullTime{Time: *s.EndTime, Valid: true}
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO drive_sessions (id, job_id, round_id, status, start_time, end_time, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+sessionColumns,
		s.ID, s.JobID, s.RoundID, string(s.Status), s.StartTime, end, nullString(s.CreatedBy))
	out, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Session{}, ErrDuplicate
		}
		return model.Session{}, err
	}
	return out, nil
}

// GetSession returns a session by id.
func (p *Postgres) GetSession(ctx context.Context, id string) (model.Session, error) {
	s, err := scanSession(p.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM drive_sessions WHERE id = $1`, id))
	if err != nil {
		return model.Session{}, notFound(err)
	}
	return s, nil
}

// LatestSessionsByJob maps each round of a job to its latest session.
func (p *Postgres) LatestSessionsByJob(ctx context.Context, jobID string) (map[string]model.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT ON (round_id) `+sessionColumns+`
		FROM drive_sessions
		WHERE job_id = $1
		ORDER BY round_id, created_at DESC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]model.Session)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out[s.RoundID] = s
	}
	return out, rows.Err()
}

// ListSessions returns every session of a job, newest first.
func (p *Postgres) ListSessions(ctx context.Context, jobID string) ([]model.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM drive_sessions WHERE job_id = $1 ORDER BY created_at DESC
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateSessionStatus is a compare-and-set on the status column.
func (p *Postgres) UpdateSessionStatus(ctx context.Context, id string, from, to model.SessionStatus) (model.Session, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE drive_sessions SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+sessionColumns,
		id, string(from), string(to))
	s, err := scanSession(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Session{}, ErrConflict
		}
		if isUniqueViolation(err) {
			return model.Session{}, ErrDuplicate
		}
		return model.Session{}, err
	}
	return s, nil
}
