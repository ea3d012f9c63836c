// Package assignment implements the assignment planner: deciding which
// technician owns each job, keeping jobs of the same order together when
// doing so finishes the order strictly earlier than splitting it.
package assignment

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/eta"
	"github.com/pageza/fieldsched/internal/unitbuilder"
)

// Outcome records the planner's decision for one order.
type Outcome struct {
	OrderID     uuid.UUID
	Combined    bool
	Technician  *uuid.UUID
	PerJob      map[uuid.UUID]*uuid.UUID // jobID -> technicianID, used when Combined is false
	Unassigned  []uuid.UUID              // job IDs left pendingReview: no eligible technician or no feasible ETA
}

// Planner runs the order-grouped assignment procedure described in the
// component design: compare a combined-order ETA against the worst of the
// per-job ETAs, and keep the order together only when the combined ETA is
// strictly earlier; on a tie the order is split.
type Planner struct {
	Estimator     *eta.Estimator
	LocationIndex map[uuid.UUID]int
	logger        *log.Logger
}

// New builds a Planner.
func New(estimator *eta.Estimator, locationIndex map[uuid.UUID]int, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{Estimator: estimator, LocationIndex: locationIndex, logger: logger}
}

type candidate struct {
	technician *domain.Technician
	start      time.Time
}

// Plan assigns technicians to every job in jobs that is not already
// FixedAssignment, mutating each job's AssignedTechnicianID and Status in
// place, and returns one Outcome per order processed.
func (p *Planner) Plan(ctx context.Context, jobs []*domain.Job, technicians []*domain.Technician) ([]Outcome, error) {
	eligible := make([]*domain.Job, 0, len(jobs))
	for _, j := range jobs {
		if !j.FixedAssignment {
			eligible = append(eligible, j)
		}
	}

	byOrder := make(map[uuid.UUID][]*domain.Job)
	orderIDs := make([]uuid.UUID, 0)
	for _, j := range eligible {
		if _, seen := byOrder[j.OrderID]; !seen {
			orderIDs = append(orderIDs, j.OrderID)
		}
		byOrder[j.OrderID] = append(byOrder[j.OrderID], j)
	}
	sort.Slice(orderIDs, func(i, k int) bool { return orderIDs[i].String() < orderIDs[k].String() })

	techByID := make(map[uuid.UUID]*domain.Technician, len(technicians))
	for _, t := range technicians {
		techByID[t.ID] = t
	}

	builder := unitbuilder.New(p.logger)
	outcomes := make([]Outcome, 0, len(orderIDs))

	for _, orderID := range orderIDs {
		orderJobs := byOrder[orderID]
		outcome := Outcome{OrderID: orderID, PerJob: make(map[uuid.UUID]*uuid.UUID)}

		bestIndividual := make(map[uuid.UUID]*candidate, len(orderJobs))
		var worstIndividualStart time.Time
		anyIndividualMissing := false

		for _, job := range orderJobs {
			best, err := p.bestTechnicianFor(ctx, job.RequiredEquipment, singleJobUnit(job), technicians)
			if err != nil {
				return nil, err
			}
			if best == nil {
				anyIndividualMissing = true
				outcome.Unassigned = append(outcome.Unassigned, job.ID)
				continue
			}
			bestIndividual[job.ID] = best
			if worstIndividualStart.IsZero() || best.start.After(worstIndividualStart) {
				worstIndividualStart = best.start
			}
		}

		if len(orderJobs) >= 2 && !anyIndividualMissing {
			unit := builder.Build(orderJobs)[0]
			combinedBest, err := p.bestTechnicianFor(ctx, unit.RequiredEquipment, unit, technicians)
			if err != nil {
				return nil, err
			}
			if combinedBest != nil && combinedBest.start.Before(worstIndividualStart) {
				outcome.Combined = true
				techID := combinedBest.technician.ID
				outcome.Technician = &techID
				for _, job := range orderJobs {
					assignJob(job, techID)
				}
				outcomes = append(outcomes, outcome)
				continue
			}
		}

		for _, job := range orderJobs {
			best, ok := bestIndividual[job.ID]
			if !ok {
				continue
			}
			techID := best.technician.ID
			outcome.PerJob[job.ID] = &techID
			assignJob(job, techID)
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func assignJob(job *domain.Job, techID uuid.UUID) {
	job.AssignedTechnicianID = &techID
	job.Status = domain.JobStatusAssigned
}

func singleJobUnit(job *domain.Job) *domain.SchedulableUnit {
	return &domain.SchedulableUnit{
		ID:                job.ID.String(),
		OrderID:           job.OrderID,
		Jobs:              []*domain.Job{job},
		Location:          job.Location,
		Priority:          job.Priority,
		Duration:          job.Duration,
		RequiredEquipment: job.RequiredEquipment,
		FixedScheduleTime: job.FixedScheduleTime,
		EarliestStartTime: job.EarliestStartTime,
	}
}

// bestTechnicianFor finds, among technicians whose equipment covers
// requiredEquipment, the one offering the earliest ETA for unit. Ties are
// broken by lower technician id, matching the spec's deterministic
// tie-break rule.
func (p *Planner) bestTechnicianFor(ctx context.Context, requiredEquipment domain.EquipmentSet, unit *domain.SchedulableUnit, technicians []*domain.Technician) (*candidate, error) {
	var best *candidate

	sorted := append([]*domain.Technician(nil), technicians...)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].ID.String() < sorted[k].ID.String() })

	for _, tech := range sorted {
		if !tech.CanHandle(requiredEquipment) {
			continue
		}
		start, ok, err := p.Estimator.EarliestStart(ctx, tech, unit, p.LocationIndex)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if best == nil || start.Before(best.start) {
			best = &candidate{technician: tech, start: start}
		}
	}

	return best, nil
}
