// Package domain holds the core scheduling types shared by the assignment
// planner, the route & time engine, and the solver client: addresses,
// technicians, jobs, schedulable units, and the availability/unavailability
// value types that describe a technician's calendar.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Address is opaque to the engine beyond identity and coordinates; it is
// used only for equality and as a travel-matrix key.
type Address struct {
	ID  uuid.UUID `json:"id" db:"id"`
	Lat float64   `json:"lat" db:"lat"`
	Lng float64   `json:"lng" db:"lng"`
}

// JobStatus tracks a job's position in the assignment/scheduling lifecycle.
type JobStatus string

const (
	JobStatusPendingReview JobStatus = "pending_review"
	JobStatusAssigned      JobStatus = "assigned"
	JobStatusScheduled     JobStatus = "scheduled"
	JobStatusUnassigned    JobStatus = "unassigned"
)

// EquipmentSet is a set of equipment model identifiers. nil and empty both
// mean "no equipment required".
type EquipmentSet map[string]struct{}

// NewEquipmentSet builds a set from a slice of equipment model names.
func NewEquipmentSet(models ...string) EquipmentSet {
	s := make(EquipmentSet, len(models))
	for _, m := range models {
		s[m] = struct{}{}
	}
	return s
}

// Superset reports whether s contains every element of other.
func (s EquipmentSet) Superset(other EquipmentSet) bool {
	for m := range other {
		if _, ok := s[m]; !ok {
			return false
		}
	}
	return true
}

// Union returns a new set containing the elements of s and other.
func (s EquipmentSet) Union(other EquipmentSet) EquipmentSet {
	out := make(EquipmentSet, len(s)+len(other))
	for m := range s {
		out[m] = struct{}{}
	}
	for m := range other {
		out[m] = struct{}{}
	}
	return out
}

// Job is a unit of billable work at a location, optionally pinned to a
// fixed time or bound to a lower bound on its start.
type Job struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	Location          Address
	Priority          int
	Duration          time.Duration
	RequiredEquipment EquipmentSet
	FixedScheduleTime *time.Time
	EarliestStartTime *time.Time
	FixedAssignment   bool

	AssignedTechnicianID *uuid.UUID
	Status               JobStatus
	EstimatedSched       *time.Time
	EstimatedSchedEnd    *time.Time
	CustomerEtaStart     *time.Time
	CustomerEtaEnd       *time.Time
}

// Immutable reports whether the route & time engine must leave this job
// untouched: fixed assignments, or anything past "assigned" in status.
func (j *Job) Immutable() bool {
	return j.FixedAssignment || (j.Status != JobStatusPendingReview && j.Status != JobStatusAssigned)
}

// SchedulableUnit is the atomic scheduling grain: every job in it shares a
// location and is visited contiguously, in listed order, by one technician
// on one day.
type SchedulableUnit struct {
	ID                string
	OrderID           uuid.UUID
	Jobs              []*Job
	Location          Address
	Priority          int
	Duration          time.Duration
	RequiredEquipment EquipmentSet
	FixedScheduleTime *time.Time
	EarliestStartTime *time.Time
	FixedAssignment   bool
}

// DailyAvailability describes the working window available to a technician
// on a given day, net of any deducted breaks.
type DailyAvailability struct {
	DayNumber     int
	Start         time.Time
	End           time.Time
	TotalDuration time.Duration
}

// Feasible reports whether this day can be scheduled against at all.
func (d DailyAvailability) Feasible() bool {
	return d.TotalDuration > 0 && !d.End.Before(d.Start)
}

// TechnicianUnavailability is a hard break interval with a fixed start and
// duration, e.g. a lunch break or planned time off.
type TechnicianUnavailability struct {
	TechnicianID uuid.UUID
	Start        time.Time
	Duration     time.Duration
}

// PlacedStop is one scheduled visit within a technician-day: a resolved
// start/end time for a single unit.
type PlacedStop struct {
	Unit  *SchedulableUnit
	Start time.Time
	End   time.Time
}

// Technician is a mobile worker with equipment, a home base, and a
// per-day schedule of placed stops.
type Technician struct {
	ID              uuid.UUID
	HomeLocation    Address
	CurrentLocation Address
	Equipment       EquipmentSet
	Schedule        map[int][]PlacedStop
}

// CanHandle reports whether the technician's equipment is a superset of
// the unit's required equipment.
func (t *Technician) CanHandle(requiredEquipment EquipmentSet) bool {
	return t.Equipment.Superset(requiredEquipment)
}

// StartLocation returns the technician's starting point for the given day:
// their current location on day 1, home base afterward.
func (t *Technician) StartLocation(day int) Address {
	if day == 1 {
		return t.CurrentLocation
	}
	return t.HomeLocation
}
