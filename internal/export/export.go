// Package export renders a job's round attendance and final selections as
// xlsx workbooks.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/attendance"
	"placement/internal/model"
	"placement/internal/repository"
	"placement/internal/selection"
)

// Kinds of workbook.
const (
	KindAttendance = "attendance"
	KindFinal      = "final"
)

const pageSize = 500

// AttendanceLister pages attendance rows.
type AttendanceLister interface {
	List(ctx context.Context, f repository.AttendanceFilter) (attendance.Page[attendance.Row], error)
}

// SelectionLister pages final selections.
type SelectionLister interface {
	List(ctx context.Context, f repository.SelectionFilter) (selection.Page, error)
}

// Store resolves the job title and student names for the workbook.
type Store interface {
	repository.JobRepository
	ListProfiles(ctx context.Context, userIDs []string) (map[string]model.Profile, error)
}

// Service builds workbooks.
type Service struct {
	attendance AttendanceLister
	selections SelectionLister
	store      Store
	log        *zap.Logger
}

func NewService(a AttendanceLister, s SelectionLister, store Store, log *zap.Logger) *Service {
	return &Service{attendance: a, selections: s, store: store, log: log}
}

// Filter selects what goes into the workbook.
type Filter struct {
	Kind    string
	JobID   string
	RoundID string
	Status  model.AttendanceStatus
	Year    string
}

// Workbook renders the requested export and returns it with a suggested file name.
func (s *Service) Workbook(ctx context.Context, f Filter) (*bytes.Buffer, string, error) {
	if _, err := uuid.Parse(f.JobID); err != nil {
		return nil, "", apperr.Validation(apperr.CodeInvalidRequest, "jobId must be a valid id")
	}
	job, err := s.store.GetJob(ctx, f.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", apperr.NotFound("job %s not found", f.JobID)
		}
		return nil, "", apperr.Internal(fmt.Errorf("get job: %w", err))
	}

	var book *excelize.File
	switch f.Kind {
	case "", KindAttendance:
		f.Kind = KindAttendance
		book, err = s.attendanceBook(ctx, f)
	case KindFinal:
		book, err = s.finalBook(ctx, f)
	default:
		return nil, "", apperr.Validation(apperr.CodeInvalidRequest, "kind must be %s or %s", KindAttendance, KindFinal)
	}
	if err != nil {
		return nil, "", err
	}
	defer book.Close()

	buf := new(bytes.Buffer)
	if err := book.Write(buf); err != nil {
		s.log.Error("write workbook", zap.String("job_id", job.ID), zap.Error(err))
		return nil, "", apperr.Internal(fmt.Errorf("write workbook: %w", err))
	}
	return buf, fileName(job, f.Kind), nil
}

func (s *Service) attendanceBook(ctx context.Context, f Filter) (*excelize.File, error) {
	var rows []attendance.Row
	for page := 1; ; page++ {
		p, err := s.attendance.List(ctx, repository.AttendanceFilter{
			JobID: f.JobID, RoundID: f.RoundID, Status: f.Status, Page: page, Limit: pageSize,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, p.Items...)
		if len(p.Items) < pageSize || len(rows) >= p.Total {
			break
		}
	}

	header := []string{"Round", "Order", "Name", "USN", "Branch", "Email", "Status", "Marked At", "Location"}
	book, sheet, err := newBook("Attendance", header)
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		values := []any{
			r.RoundName, r.Order, r.Student.Name, r.Student.USN, r.Student.Branch, r.Student.Email,
			string(r.Status), r.MarkedAt.UTC().Format(time.RFC3339), r.Location,
		}
		if err := writeRow(book, sheet, i+2, values); err != nil {
			book.Close()
			return nil, err
		}
	}
	return book, nil
}

func (s *Service) finalBook(ctx context.Context, f Filter) (*excelize.File, error) {
	var items []model.FinalSelected
	for page := 1; ; page++ {
		p, err := s.selections.List(ctx, repository.SelectionFilter{JobID: f.JobID, Year: f.Year, Page: page, Limit: pageSize})
		if err != nil {
			return nil, err
		}
		items = append(items, p.Items...)
		if len(p.Items) < pageSize || len(items) >= p.Total {
			break
		}
	}
	ids := make([]string, 0, len(items))
	for _, fs := range items {
		ids = append(ids, fs.UserID)
	}
	profiles, err := s.store.ListProfiles(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list profiles: %w", err))
	}

	header := []string{"Name", "USN", "Year", "Tier", "Package", "Role", "Manual", "Selected At"}
	book, sheet, err := newBook("Final Selected", header)
	if err != nil {
		return nil, err
	}
	for i, fs := range items {
		var pkg any
		if fs.Package != nil {
			pkg = *fs.Package
		}
		values := []any{
			profiles[fs.UserID].Name, fs.USN, fs.Year, string(fs.Tier), pkg, fs.Role, fs.IsManual,
			fs.SelectedAt.UTC().Format(time.RFC3339),
		}
		if err := writeRow(book, sheet, i+2, values); err != nil {
			book.Close()
			return nil, err
		}
	}
	return book, nil
}

func newBook(sheet string, header []string) (*excelize.File, string, error) {
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", sheet); err != nil {
		book.Close()
		return nil, "", apperr.Internal(fmt.Errorf("rename sheet: %w", err))
	}
	style, err := book.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		book.Close()
		return nil, "", apperr.Internal(fmt.Errorf("header style: %w", err))
	}
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := writeRow(book, sheet, 1, values); err != nil {
		book.Close()
		return nil, "", err
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	_ = book.SetCellStyle(sheet, "A1", last+"1", style)
	_ = book.SetColWidth(sheet, "A", last, 18)
	_ = book.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return book, sheet, nil
}

func writeRow(book *excelize.File, sheet string, row int, values []any) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := book.SetSheetRow(sheet, start, &values); err != nil {
		return apperr.Internal(fmt.Errorf("write row %d: %w", row, err))
	}
	return nil
}

func fileName(job model.Job, kind string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, job.CompanyName+" "+job.Title)
	if name == "" {
		name = job.ID
	}
	return fmt.Sprintf("%s_%s.xlsx", name, kind)
}
