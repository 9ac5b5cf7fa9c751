package repository

import (
	"context"
	"database/sql"
	"strings"

	"placement/internal/model"
)

// GetJob returns a job by id.
func (p *Postgres) GetJob(ctx context.Context, id string) (model.Job, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, title, company_name, tier, is_dream_offer, min_cgpa,
		       array_to_string(allowed_branches, ','), COALESCE(eligible_batch, ''), max_backlogs,
		       salary, min_salary, max_salary
		FROM jobs WHERE id = $1
	`, id)

	var (
		j           model.Job
		tier        string
		branches    string
		minCGPA     sql.NullFloat64
		maxBacklogs sql.NullInt32
		salary      sql.NullFloat64
		minSalary   sql.NullFloat64
		maxSalary   sql.NullFloat64
	)
	err := row.Scan(&j.ID, &j.Title, &j.CompanyName, &tier, &j.IsDreamOffer, &minCGPA,
		&branches, &j.EligibleBatch, &maxBacklogs, &salary, &minSalary, &maxSalary)
	if err != nil {
		return model.Job{}, notFound(err)
	}
	j.Tier = model.Tier(tier)
	if branches != "" {
		j.AllowedBranches = strings.Split(branches, ",")
	}
	j.MinCGPA = floatPtr(minCGPA)
	j.Salary = floatPtr(salary)
	j.MinSalary = floatPtr(minSalary)
	j.MaxSalary = floatPtr(maxSalary)
	if maxBacklogs.Valid {
		v := int(maxBacklogs.Int32)
		j.MaxBacklogs = &v
	}
	return j, nil
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
