// Package repository is the narrow, idempotent data-access layer named in
// the external interfaces: a Postgres-backed implementation of the engine
// <-> data layer capability set, not a general CRUD API. Grounded on
// backend/internal/repository/repository.go's Database wrapper, using
// sqlx for typed row scanning the way the rest of this codebase's
// data-access code does.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/schederr"
)

// Database wraps a sqlx connection pool to the scheduling snapshot tables.
type Database struct {
	*sqlx.DB
}

// NewDatabase opens and pings a Postgres connection.
func NewDatabase(databaseURL string) (*Database, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, schederr.TransientIO("open database", err)
	}
	if err := db.Ping(); err != nil {
		return nil, schederr.TransientIO("ping database", err)
	}
	return &Database{db}, nil
}

// SnapshotRepository implements the engine's narrow capability set:
// fetchActiveTechnicians, fetchPendingJobs, fetchAssignedJobs,
// fetchEquipmentRequirements, updateJobAssignment, updateJobEtas, and
// updateJobFixedSchedule.
type SnapshotRepository struct {
	db *Database
}

// NewSnapshotRepository builds a SnapshotRepository over db.
func NewSnapshotRepository(db *Database) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

type technicianRow struct {
	ID                uuid.UUID `db:"id"`
	HomeAddressID     uuid.UUID `db:"home_address_id"`
	HomeLat           float64   `db:"home_lat"`
	HomeLng           float64   `db:"home_lng"`
	CurrentAddressID  uuid.UUID `db:"current_address_id"`
	CurrentLat        float64   `db:"current_lat"`
	CurrentLng        float64   `db:"current_lng"`
}

// FetchActiveTechnicians returns every technician eligible for planning
// this cycle, with their van-aggregated equipment populated (the
// fetch_van_with_equipment join in the original data-access module).
func (r *SnapshotRepository) FetchActiveTechnicians(ctx context.Context) ([]*domain.Technician, error) {
	const query = `
		SELECT t.id, t.home_address_id, ha.lat AS home_lat, ha.lng AS home_lng,
		       t.current_address_id, ca.lat AS current_lat, ca.lng AS current_lng
		FROM technicians t
		JOIN addresses ha ON ha.id = t.home_address_id
		JOIN addresses ca ON ca.id = t.current_address_id
		WHERE t.is_active = true`

	var rows []technicianRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, schederr.TransientIO("fetch active technicians", err)
	}

	technicians := make([]*domain.Technician, 0, len(rows))
	for _, row := range rows {
		equipment, err := r.fetchVanEquipment(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		technicians = append(technicians, &domain.Technician{
			ID:              row.ID,
			HomeLocation:    domain.Address{ID: row.HomeAddressID, Lat: row.HomeLat, Lng: row.HomeLng},
			CurrentLocation: domain.Address{ID: row.CurrentAddressID, Lat: row.CurrentLat, Lng: row.CurrentLng},
			Equipment:       equipment,
			Schedule:        make(map[int][]domain.PlacedStop),
		})
	}
	return technicians, nil
}

// fetchVanEquipment unions the equipment models across every item carried
// by a technician's assigned van, matching fetch_van_with_equipment.
func (r *SnapshotRepository) fetchVanEquipment(ctx context.Context, technicianID uuid.UUID) (domain.EquipmentSet, error) {
	const query = `
		SELECT e.model
		FROM technician_vans tv
		JOIN van_equipment ve ON ve.van_id = tv.van_id
		JOIN equipment e ON e.id = ve.equipment_id
		WHERE tv.technician_id = $1`

	var models []string
	if err := r.db.SelectContext(ctx, &models, query, technicianID); err != nil {
		return nil, schederr.TransientIO("fetch van equipment", err)
	}
	return domain.NewEquipmentSet(models...), nil
}

type jobRow struct {
	ID                   uuid.UUID  `db:"id"`
	OrderID              uuid.UUID  `db:"order_id"`
	AddressID            uuid.UUID  `db:"address_id"`
	Lat                  float64    `db:"lat"`
	Lng                  float64    `db:"lng"`
	Priority             int        `db:"priority"`
	DurationSeconds      int        `db:"duration_seconds"`
	FixedScheduleTime    *time.Time `db:"fixed_schedule_time"`
	EarliestStartTime    *time.Time `db:"earliest_start_time"`
	FixedAssignment      bool       `db:"fixed_assignment"`
	AssignedTechnicianID *uuid.UUID `db:"assigned_technician_id"`
	Status               string     `db:"status"`
}

func (r *SnapshotRepository) fetchJobs(ctx context.Context, query string, args ...interface{}) ([]*domain.Job, error) {
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, schederr.TransientIO("fetch jobs", err)
	}

	jobs := make([]*domain.Job, 0, len(rows))
	for _, row := range rows {
		equipment, err := r.fetchJobEquipment(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &domain.Job{
			ID:                   row.ID,
			OrderID:              row.OrderID,
			Location:             domain.Address{ID: row.AddressID, Lat: row.Lat, Lng: row.Lng},
			Priority:             row.Priority,
			Duration:             time.Duration(row.DurationSeconds) * time.Second,
			RequiredEquipment:    equipment,
			FixedScheduleTime:    row.FixedScheduleTime,
			EarliestStartTime:    row.EarliestStartTime,
			FixedAssignment:      row.FixedAssignment,
			AssignedTechnicianID: row.AssignedTechnicianID,
			Status:               domain.JobStatus(row.Status),
		})
	}
	return jobs, nil
}

// FetchPendingJobs returns every job still awaiting assignment.
func (r *SnapshotRepository) FetchPendingJobs(ctx context.Context) ([]*domain.Job, error) {
	const query = `
		SELECT j.id, j.order_id, j.address_id, a.lat, a.lng, j.priority, j.duration_seconds,
		       j.fixed_schedule_time, j.earliest_start_time, j.fixed_assignment,
		       j.assigned_technician_id, j.status
		FROM jobs j
		JOIN addresses a ON a.id = j.address_id
		WHERE j.status = 'pending_review'`
	return r.fetchJobs(ctx, query)
}

// FetchAssignedJobs returns the non-fixed jobs currently owned by a
// technician, the input to that technician's route & time engine pass.
func (r *SnapshotRepository) FetchAssignedJobs(ctx context.Context, technicianID uuid.UUID) ([]*domain.Job, error) {
	const query = `
		SELECT j.id, j.order_id, j.address_id, a.lat, a.lng, j.priority, j.duration_seconds,
		       j.fixed_schedule_time, j.earliest_start_time, j.fixed_assignment,
		       j.assigned_technician_id, j.status
		FROM jobs j
		JOIN addresses a ON a.id = j.address_id
		WHERE j.assigned_technician_id = $1
		  AND j.fixed_assignment = false
		  AND j.status IN ('assigned', 'scheduled')`
	return r.fetchJobs(ctx, query, technicianID)
}

func (r *SnapshotRepository) fetchJobEquipment(ctx context.Context, jobID uuid.UUID) (domain.EquipmentSet, error) {
	const query = `SELECT e.model FROM job_equipment je JOIN equipment e ON e.id = je.equipment_id WHERE je.job_id = $1`
	var models []string
	if err := r.db.SelectContext(ctx, &models, query, jobID); err != nil {
		return nil, schederr.TransientIO("fetch job equipment", err)
	}
	return domain.NewEquipmentSet(models...), nil
}

// FetchEquipmentRequirements resolves the equipment models required for a
// vehicle year/make/model and a set of services, as the distinct equipment
// models listed in service_equipment_requirements for that YMM and any of
// the given services. The query text is fixed; the IDs are bound as
// parameters.
func (r *SnapshotRepository) FetchEquipmentRequirements(ctx context.Context, ymmID uuid.UUID, serviceIDs []uuid.UUID) (domain.EquipmentSet, error) {
	if len(serviceIDs) == 0 {
		return domain.NewEquipmentSet(), nil
	}

	const query = `
		SELECT DISTINCT e.model
		FROM service_equipment_requirements ser
		JOIN equipment e ON e.id = ser.equipment_id
		WHERE ser.ymm_id = $1 AND ser.service_id = ANY($2)`

	ids := make([]string, len(serviceIDs))
	for i, id := range serviceIDs {
		ids[i] = id.String()
	}

	var models []string
	if err := r.db.SelectContext(ctx, &models, query, ymmID, pq.Array(ids)); err != nil {
		return nil, schederr.TransientIO("fetch equipment requirements", err)
	}
	return domain.NewEquipmentSet(models...), nil
}

// UpdateJobAssignment idempotently records a job's new owner and status.
func (r *SnapshotRepository) UpdateJobAssignment(ctx context.Context, jobID uuid.UUID, technicianID *uuid.UUID, status domain.JobStatus) error {
	const query = `
		UPDATE jobs SET assigned_technician_id = $2, status = $3, updated_at = now()
		WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, jobID, technicianID, string(status)); err != nil {
		return schederr.TransientIO("update job assignment", err)
	}
	return nil
}

// JobETAUpdate is one job's new ETA fields, the unit UpdateJobETAs batches.
type JobETAUpdate struct {
	JobID             uuid.UUID
	EstimatedSched    time.Time
	EstimatedSchedEnd time.Time
	CustomerEtaStart  time.Time
	CustomerEtaEnd    time.Time
}

// UpdateJobETAs batches every technician-day's ETA writes into a single
// multi-row UPDATE ... FROM (VALUES ...) statement, the idempotent bulk
// upsert named in the original update_job_etas routine, instead of one
// round trip per job.
func (r *SnapshotRepository) UpdateJobETAs(ctx context.Context, updates []JobETAUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	const query = `
		UPDATE jobs AS j SET
			estimated_sched = v.estimated_sched,
			estimated_sched_end = v.estimated_sched_end,
			customer_eta_start = v.customer_eta_start,
			customer_eta_end = v.customer_eta_end,
			updated_at = now()
		FROM (VALUES %s) AS v(id, estimated_sched, estimated_sched_end, customer_eta_start, customer_eta_end)
		WHERE j.id = v.id::uuid`

	placeholders := make([]string, 0, len(updates))
	args := make([]interface{}, 0, len(updates)*5)
	for i, u := range updates {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d::timestamptz, $%d::timestamptz, $%d::timestamptz, $%d::timestamptz)",
			base+1, base+2, base+3, base+4, base+5))
		args = append(args, u.JobID.String(), u.EstimatedSched, u.EstimatedSchedEnd, u.CustomerEtaStart, u.CustomerEtaEnd)
	}

	stmt := fmt.Sprintf(query, joinComma(placeholders))
	if _, err := r.db.ExecContext(ctx, stmt, args...); err != nil {
		return schederr.TransientIO("update job etas", err)
	}
	return nil
}

// UpdateJobFixedSchedule sets or clears a job's fixed schedule time.
func (r *SnapshotRepository) UpdateJobFixedSchedule(ctx context.Context, jobID uuid.UUID, fixedTime *time.Time) error {
	const query = `UPDATE jobs SET fixed_schedule_time = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, jobID, fixedTime); err != nil {
		return schederr.TransientIO("update job fixed schedule", err)
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
