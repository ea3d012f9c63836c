// Package availability resolves per-day working windows and planned
// unavailability intervals for technicians. The route & time engine and
// the ETA estimator both consult a Provider rather than reading calendars
// directly.
package availability

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/schederr"
)

// Provider yields a technician's working window for a given day, and the
// technician's unavailability intervals across the whole planning horizon.
type Provider interface {
	// DayWindow returns the technician's availability for the given
	// 1-based day number, or ok=false if none is defined for that day
	// (the caller must skip the day entirely).
	DayWindow(ctx context.Context, technicianID uuid.UUID, day int) (window domain.DailyAvailability, ok bool, err error)

	// Unavailabilities returns every unavailability interval on record for
	// the technician, irrespective of day; the caller is responsible for
	// filtering to the interval(s) relevant to a given day's window.
	Unavailabilities(ctx context.Context, technicianID uuid.UUID) ([]domain.TechnicianUnavailability, error)
}

// Static is an in-memory Provider, useful for tests and for the fallback
// heuristic path where availability has already been fetched in bulk.
type Static struct {
	windows      map[uuid.UUID]map[int]domain.DailyAvailability
	unavailSlice map[uuid.UUID][]domain.TechnicianUnavailability
}

// NewStatic builds an empty Static provider ready to be populated.
func NewStatic() *Static {
	return &Static{
		windows:      make(map[uuid.UUID]map[int]domain.DailyAvailability),
		unavailSlice: make(map[uuid.UUID][]domain.TechnicianUnavailability),
	}
}

// SetWindow records a technician's availability window for one day.
func (s *Static) SetWindow(technicianID uuid.UUID, day domain.DailyAvailability) {
	byDay, ok := s.windows[technicianID]
	if !ok {
		byDay = make(map[int]domain.DailyAvailability)
		s.windows[technicianID] = byDay
	}
	byDay[day.DayNumber] = day
}

// AddUnavailability records a hard break interval for a technician.
func (s *Static) AddUnavailability(u domain.TechnicianUnavailability) {
	s.unavailSlice[u.TechnicianID] = append(s.unavailSlice[u.TechnicianID], u)
}

// DayWindow implements Provider.
func (s *Static) DayWindow(_ context.Context, technicianID uuid.UUID, day int) (domain.DailyAvailability, bool, error) {
	byDay, ok := s.windows[technicianID]
	if !ok {
		return domain.DailyAvailability{}, false, nil
	}
	w, ok := byDay[day]
	if !ok || !w.Feasible() {
		return domain.DailyAvailability{}, false, nil
	}
	return w, true, nil
}

// Unavailabilities implements Provider.
func (s *Static) Unavailabilities(_ context.Context, technicianID uuid.UUID) ([]domain.TechnicianUnavailability, error) {
	return s.unavailSlice[technicianID], nil
}

// DBProvider is the production Provider, reading per-day working windows
// and unavailability intervals from the snapshot tables via sqlx.
type DBProvider struct {
	db *sqlx.DB
}

// NewDBProvider builds a DBProvider over db.
func NewDBProvider(db *sqlx.DB) *DBProvider {
	return &DBProvider{db: db}
}

// DayWindow implements Provider.
func (p *DBProvider) DayWindow(ctx context.Context, technicianID uuid.UUID, day int) (domain.DailyAvailability, bool, error) {
	const query = `
		SELECT start_time, end_time, total_duration_seconds
		FROM technician_daily_availability
		WHERE technician_id = $1 AND day_number = $2`

	var row struct {
		Start           time.Time `db:"start_time"`
		End             time.Time `db:"end_time"`
		TotalDurationSec int      `db:"total_duration_seconds"`
	}
	if err := p.db.GetContext(ctx, &row, query, technicianID, day); err != nil {
		if err == sql.ErrNoRows {
			return domain.DailyAvailability{}, false, nil
		}
		return domain.DailyAvailability{}, false, schederr.TransientIO("fetch daily availability", err)
	}

	w := domain.DailyAvailability{
		DayNumber:     day,
		Start:         row.Start,
		End:           row.End,
		TotalDuration: time.Duration(row.TotalDurationSec) * time.Second,
	}
	if !w.Feasible() {
		return domain.DailyAvailability{}, false, nil
	}
	return w, true, nil
}

// Unavailabilities implements Provider.
func (p *DBProvider) Unavailabilities(ctx context.Context, technicianID uuid.UUID) ([]domain.TechnicianUnavailability, error) {
	const query = `
		SELECT start_time, duration_seconds
		FROM technician_unavailabilities
		WHERE technician_id = $1`

	var rows []struct {
		Start           time.Time `db:"start_time"`
		DurationSeconds int       `db:"duration_seconds"`
	}
	if err := p.db.SelectContext(ctx, &rows, query, technicianID); err != nil {
		return nil, schederr.TransientIO("fetch technician unavailabilities", err)
	}

	out := make([]domain.TechnicianUnavailability, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.TechnicianUnavailability{
			TechnicianID: technicianID,
			Start:        r.Start,
			Duration:     time.Duration(r.DurationSeconds) * time.Second,
		})
	}
	return out, nil
}
