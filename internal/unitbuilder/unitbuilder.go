// Package unitbuilder groups a technician's or backlog's jobs by order into
// SchedulableUnits: the atomic grain the ETA estimator, assignment planner,
// and route engine all operate on.
package unitbuilder

import (
	"log"
	"sort"

	"github.com/google/uuid"

	"github.com/pageza/fieldsched/internal/domain"
)

// Builder groups jobs into SchedulableUnits, one per distinct orderId.
type Builder struct {
	logger *log.Logger
}

// New constructs a Builder. A nil logger falls back to log.Default().
func New(logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{logger: logger}
}

// Build groups jobs by OrderID and produces one SchedulableUnit per group,
// in a deterministic order (ascending OrderID string form) so that
// downstream packing is reproducible across runs on identical input.
func (b *Builder) Build(jobs []*domain.Job) []*domain.SchedulableUnit {
	groups := make(map[uuid.UUID][]*domain.Job)
	order := make([]uuid.UUID, 0)
	for _, j := range jobs {
		if _, seen := groups[j.OrderID]; !seen {
			order = append(order, j.OrderID)
		}
		groups[j.OrderID] = append(groups[j.OrderID], j)
	}
	sort.Slice(order, func(i, k int) bool { return order[i].String() < order[k].String() })

	units := make([]*domain.SchedulableUnit, 0, len(order))
	for _, orderID := range order {
		units = append(units, b.buildUnit(orderID, groups[orderID]))
	}
	return units
}

func (b *Builder) buildUnit(orderID uuid.UUID, jobs []*domain.Job) *domain.SchedulableUnit {
	unit := &domain.SchedulableUnit{
		ID:                orderID.String(),
		OrderID:           orderID,
		Jobs:              jobs,
		Location:          jobs[0].Location,
		Priority:          jobs[0].Priority,
		RequiredEquipment: domain.NewEquipmentSet(),
	}

	var assignedTech *uuid.UUID
	assignmentConflict := false

	for i, j := range jobs {
		if i > 0 && j.Location.ID != unit.Location.ID {
			b.logger.Printf("warn: order %s has jobs at multiple locations; using job %s's location", orderID, jobs[0].ID)
		}
		unit.Duration += j.Duration
		if j.Priority < unit.Priority {
			unit.Priority = j.Priority
		}
		unit.RequiredEquipment = unit.RequiredEquipment.Union(j.RequiredEquipment)
		if j.FixedAssignment {
			unit.FixedAssignment = true
		}
		if i == 0 && j.EarliestStartTime != nil {
			t := *j.EarliestStartTime
			unit.EarliestStartTime = &t
		}
		if j.FixedScheduleTime != nil {
			if unit.FixedScheduleTime == nil {
				t := *j.FixedScheduleTime
				unit.FixedScheduleTime = &t
			} else if !unit.FixedScheduleTime.Equal(*j.FixedScheduleTime) {
				if j.FixedScheduleTime.Before(*unit.FixedScheduleTime) {
					t := *j.FixedScheduleTime
					unit.FixedScheduleTime = &t
				}
				b.logger.Printf("warn: order %s has multiple distinct fixed times; earliest wins", orderID)
			}
		}
		if j.AssignedTechnicianID != nil {
			if assignedTech == nil {
				assignedTech = j.AssignedTechnicianID
			} else if *assignedTech != *j.AssignedTechnicianID {
				assignmentConflict = true
			}
		}
	}

	if assignmentConflict {
		b.logger.Printf("warn: order %s has jobs assigned to different technicians; leaving unit assignment unset", orderID)
	}

	return unit
}
