// Package memrepo is an in-memory repository.Store. A single mutex guards all
// state so every uniqueness rule holds under concurrent callers, exactly as
// the Postgres constraints do.
package memrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"placement/internal/model"
	"placement/internal/repository"
)

type userJob struct{ user, job string }
type userRound struct{ user, round string }

// Store holds every table in maps.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	jobs         map[string]model.Job
	profiles     map[string]model.Profile
	applications map[string]model.Application
	rounds       map[string]model.Round
	sessions     map[string]model.Session
	sessionSeq   map[string]int64
	seq          int64
	attendance   map[string]model.RoundAttendance
	attendanceBy map[userRound]string
	legacy       map[string]model.LegacyAttendance
	selections   map[string]model.FinalSelected
	selectionBy  map[userJob]string
	placements   map[userJob]model.Placement
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:          time.Now,
		jobs:         make(map[string]model.Job),
		profiles:     make(map[string]model.Profile),
		applications: make(map[string]model.Application),
		rounds:       make(map[string]model.Round),
		sessions:     make(map[string]model.Session),
		sessionSeq:   make(map[string]int64),
		attendance:   make(map[string]model.RoundAttendance),
		attendanceBy: make(map[userRound]string),
		legacy:       make(map[string]model.LegacyAttendance),
		selections:   make(map[string]model.FinalSelected),
		selectionBy:  make(map[userJob]string),
		placements:   make(map[userJob]model.Placement),
	}
}

// Seed is the JSON shape accepted by LoadSeed.
type Seed struct {
	Jobs         []model.Job         `json:"jobs"`
	Profiles     []model.Profile     `json:"profiles"`
	Applications []model.Application `json:"applications"`
}

// LoadSeed fills the store from a JSON file of jobs, profiles and applications.
func (s *Store) LoadSeed(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, j := range seed.Jobs {
		s.PutJob(j)
	}
	for _, p := range seed.Profiles {
		s.PutProfile(p)
	}
	for _, a := range seed.Applications {
		s.PutApplication(a)
	}
	return nil
}

// PutJob inserts or replaces a job.
func (s *Store) PutJob(j model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(p model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// PutApplication inserts or replaces an application.
func (s *Store) PutApplication(a model.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.applications[a.ID] = a
}

// PutLegacy inserts a legacy stub directly.
func (s *Store) PutLegacy(l model.LegacyAttendance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	s.legacy[l.QRCode] = l
}

// ── jobs & students ──

func (s *Store) GetJob(_ context.Context, id string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, repository.ErrNotFound
	}
	return j, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context, userIDs []string) (map[string]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) GetApplication(_ context.Context, userID, jobID string) (model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.applications {
		if a.UserID == userID && a.JobID == jobID && !a.IsRemoved {
			return a, nil
		}
	}
	return model.Application{}, repository.ErrNotFound
}

func (s *Store) GetApplicationByID(_ context.Context, id string) (model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applications[id]
	if !ok {
		return model.Application{}, repository.ErrNotFound
	}
	return a, nil
}

// ── rounds ──

func (s *Store) ListRounds(_ context.Context, jobID string, includeRemoved bool) ([]model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Round
	for _, r := range s.rounds {
		if r.JobID == jobID && (includeRemoved || !r.IsRemoved) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetRound(_ context.Context, id string) (model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return model.Round{}, repository.ErrNotFound
	}
	return r, nil
}

func (s *Store) CreateRounds(_ context.Context, jobID string, names []string) ([]model.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return nil, repository.ErrNotFound
	}
	maxOrder := 0
	for _, r := range s.rounds {
		if r.JobID == jobID && !r.IsRemoved && r.Order > maxOrder {
			maxOrder = r.Order
		}
	}
	out := make([]model.Round, 0, len(names))
	for i, name := range names {
		r := model.Round{
			ID:        uuid.NewString(),
			JobID:     jobID,
			Name:      name,
			Order:     maxOrder + i + 1,
			CreatedAt: s.now(),
		}
		s.rounds[r.ID] = r
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) RemoveRound(_ context.Context, jobID, roundID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok || r.JobID != jobID || r.IsRemoved {
		return repository.ErrNotFound
	}
	r.IsRemoved = true
	s.rounds[roundID] = r
	return nil
}

func (s *Store) SwapRoundOrder(_ context.Context, jobID, roundA, roundB string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, okA := s.rounds[roundA]
	b, okB := s.rounds[roundB]
	if !okA || !okB || a.JobID != jobID || b.JobID != jobID || a.IsRemoved || b.IsRemoved {
		return repository.ErrNotFound
	}
	a.Order, b.Order = b.Order, a.Order
	s.rounds[roundA] = a
	s.rounds[roundB] = b
	return nil
}

// ── sessions ──

func (s *Store) CreateSession(_ context.Context, ss model.Session) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.RoundID == ss.RoundID && existing.Open() {
			return model.Session{}, repository.ErrDuplicate
		}
	}
	if ss.ID == "" {
		ss.ID = uuid.NewString()
	}
	now := s.now()
	ss.CreatedAt, ss.UpdatedAt = now, now
	s.seq++
	s.sessionSeq[ss.ID] = s.seq
	s.sessions[ss.ID] = ss
	return ss, nil
}

func (s *Store) GetSession(_ context.Context, id string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return model.Session{}, repository.ErrNotFound
	}
	return ss, nil
}

// LatestSessionsByJob picks by insertion sequence so equal timestamps stay
// deterministic.
func (s *Store) LatestSessionsByJob(_ context.Context, jobID string) (map[string]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.Session)
	for _, ss := range s.sessions {
		if ss.JobID != jobID {
			continue
		}
		if cur, ok := out[ss.RoundID]; !ok || s.sessionSeq[ss.ID] > s.sessionSeq[cur.ID] {
			out[ss.RoundID] = ss
		}
	}
	return out, nil
}

func (s *Store) ListSessions(_ context.Context, jobID string) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Session
	for _, ss := range s.sessions {
		if ss.JobID == jobID {
			out = append(out, ss)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.sessionSeq[out[i].ID] > s.sessionSeq[out[j].ID] })
	return out, nil
}

func (s *Store) UpdateSessionStatus(_ context.Context, id string, from, to model.SessionStatus) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok || ss.Status != from {
		return model.Session{}, repository.ErrConflict
	}
	ss.Status = to
	ss.UpdatedAt = s.now()
	s.sessions[id] = ss
	return ss, nil
}

// ── attendance ──

func (s *Store) InsertAttendance(_ context.Context, a model.RoundAttendance) (model.RoundAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userRound{a.UserID, a.RoundID}
	if _, exists := s.attendanceBy[key]; exists {
		return model.RoundAttendance{}, repository.ErrDuplicate
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.AttendanceAttended
	}
	a.UpdatedAt = s.now()
	s.attendance[a.ID] = a
	s.attendanceBy[key] = a.ID
	return a, nil
}

func (s *Store) AttendanceForJob(_ context.Context, userID, jobID string) ([]model.RoundAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RoundAttendance
	for _, a := range s.attendance {
		if a.UserID == userID && a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListAttendance(_ context.Context, f repository.AttendanceFilter) ([]model.RoundAttendance, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.RoundAttendance
	for _, a := range s.attendance {
		if a.JobID != f.JobID {
			continue
		}
		if f.RoundID != "" && a.RoundID != f.RoundID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].MarkedAt.After(all[j].MarkedAt) })
	return page(all, f.Page, f.Limit), len(all), nil
}

func page[T any](all []T, p, limit int) []T {
	_, limit, offset := repository.Paginate(p, limit)
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func (s *Store) AttendanceBatch(_ context.Context, jobID string, ids []string) ([]model.RoundAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RoundAttendance
	for _, id := range ids {
		if a, ok := s.attendance[id]; ok && a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) AdvanceAttendance(_ context.Context, id string, to model.AttendanceStatus) (model.RoundAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return model.RoundAttendance{}, repository.ErrNotFound
	}
	switch a.Status {
	case to:
		return a, nil
	case model.AttendanceAttended:
		a.Status = to
		a.UpdatedAt = s.now()
		s.attendance[id] = a
		return a, nil
	default:
		return model.RoundAttendance{}, repository.ErrConflict
	}
}

func (s *Store) PendingSelectionJobs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	final := make(map[string]model.Round)
	for _, r := range s.rounds {
		if r.IsRemoved {
			continue
		}
		if cur, ok := final[r.JobID]; !ok || r.Order > cur.Order {
			final[r.JobID] = r
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, a := range s.attendance {
		if a.Status != model.AttendancePassed || seen[a.JobID] || final[a.JobID].ID != a.RoundID {
			continue
		}
		key := userJob{a.UserID, a.JobID}
		selID, hasSel := s.selectionBy[key]
		if hasSel && s.selections[selID].Removed() {
			continue
		}
		_, hasPl := s.placements[key]
		if !hasSel || !hasPl {
			seen[a.JobID] = true
			out = append(out, a.JobID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ── legacy ──

func (s *Store) GetLegacyByCode(_ context.Context, code string) (model.LegacyAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.legacy[code]
	if !ok {
		return model.LegacyAttendance{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *Store) CreateLegacy(_ context.Context, l model.LegacyAttendance) (model.LegacyAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.legacy[l.QRCode]; exists {
		return model.LegacyAttendance{}, repository.ErrDuplicate
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	s.legacy[l.QRCode] = l
	return l, nil
}

func (s *Store) MarkLegacyScanned(_ context.Context, id, adminID, location string, at time.Time) (model.LegacyAttendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, l := range s.legacy {
		if l.ID != id {
			continue
		}
		if l.ScannedAt != nil {
			return model.LegacyAttendance{}, repository.ErrConflict
		}
		l.ScannedAt = &at
		l.ScannedBy = adminID
		if location != "" {
			l.Location = location
		}
		s.legacy[code] = l
		return l, nil
	}
	return model.LegacyAttendance{}, repository.ErrConflict
}

// ── selections ──

func (s *Store) ApplyFinalSelection(_ context.Context, in repository.SelectionInput) (repository.SelectionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[in.UserID]
	if !ok {
		return repository.SelectionOutcome{}, fmt.Errorf("lock profile: %w", repository.ErrNotFound)
	}

	key := userJob{in.UserID, in.JobID}
	if id, ok := s.selectionBy[key]; ok && s.selections[id].Removed() && !in.Revive {
		return repository.SelectionOutcome{}, repository.ErrRemoved
	}
	fs := s.upsertSelection(model.FinalSelected{
		UserID:     in.UserID,
		JobID:      in.JobID,
		USN:        in.USN,
		Year:       in.Year,
		Tier:       in.Tier,
		Package:    in.Package,
		Role:       in.Role,
		SelectedAt: in.At,
	}, false)

	pl, exists := s.placements[key]
	if !exists {
		pl = model.Placement{ID: uuid.NewString(), UserID: in.UserID, JobID: in.JobID, CompanyName: in.CompanyName, CreatedAt: in.At}
	}
	pl.Tier = in.Tier
	pl.Salary = in.Salary
	pl.UpdatedAt = in.At
	s.placements[key] = pl

	out := repository.SelectionOutcome{Selection: fs, Placement: pl, PreviousTier: profile.HighestPlacementTier}
	out.Tier = model.MergeTier(profile.HighestPlacementTier, in.Tier)
	if out.Tier != profile.HighestPlacementTier {
		profile.HighestPlacementTier = out.Tier
		at := in.At
		profile.PlacedAt = &at
		s.profiles[in.UserID] = profile
	}
	return out, nil
}

// upsertSelection must be called with mu held. Snapshot fields (USN, year)
// are only written on create. Any removal is cleared.
func (s *Store) upsertSelection(fs model.FinalSelected, manual bool) model.FinalSelected {
	key := userJob{fs.UserID, fs.JobID}
	if id, ok := s.selectionBy[key]; ok {
		cur := s.selections[id]
		cur.Tier = fs.Tier
		cur.Package = fs.Package
		cur.Role = fs.Role
		cur.IsManual = manual
		cur.UpdatedAt = fs.SelectedAt
		cur.RemovedAt = nil
		s.selections[id] = cur
		return cur
	}
	fs.ID = uuid.NewString()
	fs.IsManual = manual
	fs.UpdatedAt = fs.SelectedAt
	s.selections[fs.ID] = fs
	s.selectionBy[key] = fs.ID
	return fs
}

func (s *Store) UpsertManualSelection(_ context.Context, fs model.FinalSelected) (model.FinalSelected, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertSelection(fs, true), nil
}

func (s *Store) GetFinalSelected(_ context.Context, userID, jobID string) (model.FinalSelected, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.selectionBy[userJob{userID, jobID}]
	if !ok {
		return model.FinalSelected{}, repository.ErrNotFound
	}
	return s.selections[id], nil
}

func (s *Store) GetPlacement(_ context.Context, userID, jobID string) (model.Placement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pl, ok := s.placements[userJob{userID, jobID}]
	if !ok {
		return model.Placement{}, repository.ErrNotFound
	}
	return pl, nil
}

func (s *Store) ListFinalSelected(_ context.Context, f repository.SelectionFilter) ([]model.FinalSelected, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []model.FinalSelected
	for _, fs := range s.selections {
		if fs.JobID == f.JobID && !fs.Removed() && (f.Year == "" || fs.Year == f.Year) {
			all = append(all, fs)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SelectedAt.After(all[j].SelectedAt) })
	return page(all, f.Page, f.Limit), len(all), nil
}

func (s *Store) RemoveFinalSelected(_ context.Context, jobID, id string, at time.Time) (model.FinalSelected, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.selections[id]
	if !ok || fs.JobID != jobID || fs.Removed() {
		return model.FinalSelected{}, repository.ErrNotFound
	}
	fs.RemovedAt = &at
	fs.UpdatedAt = at
	s.selections[id] = fs
	return fs, nil
}

// Counts reports row totals; tests use it to assert nothing was duplicated.
func (s *Store) Counts() (attendance, selections, placements int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attendance), len(s.selections), len(s.placements)
}

// RoundOrders returns the live orders of a job's rounds, ascending.
func (s *Store) RoundOrders(jobID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, r := range s.rounds {
		if r.JobID == jobID && !r.IsRemoved {
			out = append(out, r.Order)
		}
	}
	slices.Sort(out)
	return out
}
