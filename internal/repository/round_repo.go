package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"placement/internal/model"
)

const roundColumns = `id, job_id, name, round_order, is_removed, created_at`

func scanRound(s scanner) (model.Round, error) {
	var r model.Round
	err := s.Scan(&r.ID, &r.JobID, &r.Name, &r.Order, &r.IsRemoved, &r.CreatedAt)
	return r, err
}

// ListRounds returns a job's rounds ordered by round_order.
func (p *Postgres) ListRounds(ctx context.Context, jobID string, includeRemoved bool) ([]model.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM job_rounds WHERE job_id = $1`
	if !includeRemoved {
		query += ` AND is_removed = FALSE`
	}
	query += ` ORDER BY round_order ASC, created_at ASC`

	rows, err := p.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRound returns a round by id.
func (p *Postgres) GetRound(ctx context.Context, id string) (model.Round, error) {
	r, err := scanRound(p.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM job_rounds WHERE id = $1`, id))
	if err != nil {
		return model.Round{}, notFound(err)
	}
	return r, nil
}

// CreateRounds appends rounds after the job's highest non-removed order. The
// job row is locked so concurrent creators serialize.
func (p *Postgres) CreateRounds(ctx context.Context, jobID string, names []string) ([]model.Round, error) {
	var created []model.Round
	err := p.withTx(ctx, func(tx *sql.Tx) error {
		var locked string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&locked); err != nil {
			return notFound(err)
		}
		var maxOrder int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(round_order), 0) FROM job_rounds WHERE job_id = $1 AND is_removed = FALSE
		`, jobID).Scan(&maxOrder); err != nil {
			return err
		}
		for i, name := range names {
			row := tx.QueryRowContext(ctx, `
				INSERT INTO job_rounds (id, job_id, name, round_order)
				VALUES ($1, $2, $3, $4)
				RETURNING `+roundColumns,
				uuid.NewString(), jobID, name, maxOrder+i+1)
			r, err := scanRound(row)
			if err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return err
			}
			created = append(created, r)
		}
		return nil
	})
	return created, err
}

// RemoveRound soft-deletes a round. Its order value is left untouched.
func (p *Postgres) RemoveRound(ctx context.Context, jobID, roundID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE job_rounds SET is_removed = TRUE
		WHERE id = $1 AND job_id = $2 AND is_removed = FALSE
	`, roundID, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapRoundOrder exchanges two rounds' orders. The partial unique index on
// (job_id, round_order) for live rounds is not deferrable, so the first round
// is parked on a negative order while the second moves.
func (p *Postgres) SwapRoundOrder(ctx context.Context, jobID, roundA, roundB string) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, round_order FROM job_rounds
			WHERE job_id = $1 AND id IN ($2, $3) AND is_removed = FALSE
			ORDER BY id
			FOR UPDATE
		`, jobID, roundA, roundB)
		if err != nil {
			return err
		}
		orders := make(map[string]int, 2)
		for rows.Next() {
			var (
				id    string
				order int
			)
			if err := rows.Scan(&id, &order); err != nil {
				rows.Close()
				return err
			}
			orders[id] = order
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(orders) != 2 {
			return ErrNotFound
		}

		steps := []struct {
			id    string
			order int
		}{
			{roundA, -orders[roundA]},
			{roundB, orders[roundA]},
			{roundA, orders[roundB]},
		}
		for _, st := range steps {
			if _, err := tx.ExecContext(ctx, `UPDATE job_rounds SET round_order = $2 WHERE id = $1`, st.id, st.order); err != nil {
				return fmt.Errorf("swap round %s: %w", st.id, err)
			}
		}
		return nil
	})
}
