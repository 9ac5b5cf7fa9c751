package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"placement/internal/model"
)

const legacyColumns = `id, student_id, job_id, qr_code, scanned_at, COALESCE(scanned_by, ''), COALESCE(location, '')`

func scanLegacy(s scanner) (model.LegacyAttendance, error) {
	var (
		l       model.LegacyAttendance
		scanned sql.NullTime
	)
	if err := s.Scan(&l.ID, &l.StudentID, &l.JobID, &l.QRCode, &scanned, &l.ScannedBy, &l.Location); err != nil {
		return model.LegacyAttendance{}, err
	}
	if scanned.Valid {
		t := scanned.Time
		l.ScannedAt = &t
	}
	return l, nil
}

// GetLegacyByCode finds a legacy stub by the code printed in its QR.
func (p *Postgres) GetLegacyByCode(ctx context.Context, code string) (model.LegacyAttendance, error) {
	l, err := scanLegacy(p.db.QueryRowContext(ctx, `SELECT `+legacyColumns+` FROM legacy_attendance WHERE qr_code = $1`, code))
	if err != nil {
		return model.LegacyAttendance{}, notFound(err)
	}
	return l, nil
}

// CreateLegacy inserts a stub; a second stub for the same code is ErrDuplicate.
func (p *Postgres) CreateLegacy(ctx context.Context, l model.LegacyAttendance) (model.LegacyAttendance, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	var scanned sql.NullTime
	if l.ScannedAt != nil {
		scanned = sql.NullTime{Time: *l.ScannedAt, Valid: true}
	}
	out, err := scanLegacy(p.db.QueryRowContext(ctx, `
		INSERT INTO legacy_attendance (id, student_id, job_id, qr_code, scanned_at, scanned_by, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (qr_code) DO NOTHING
		RETURNING `+legacyColumns,
		l.ID, l.StudentID, l.JobID, l.QRCode, scanned, nullString(l.ScannedBy), nullString(l.Location)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return model.LegacyAttendance{}, ErrDuplicate
		}
		return model.LegacyAttendance{}, err
	}
	return out, nil
}

// MarkLegacyScanned stamps a stub that has not been scanned yet.
func (p *Postgres) MarkLegacyScanned(ctx context.Context, id, adminID, location string, at time.Time) (model.LegacyAttendance, error) {
	out, err := scanLegacy(p.db.QueryRowContext(ctx, `
		UPDATE legacy_attendance
		SET scanned_at = $2, scanned_by = $3, location = COALESCE($4, location)
		WHERE id = $1 AND scanned_at IS NULL
		RETURNING `+legacyColumns,
		id, at, nullString(adminID), nullString(location)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LegacyAttendance{}, ErrConflict
		}
		return model.LegacyAttendance{}, err
	}
	return out, nil
}
