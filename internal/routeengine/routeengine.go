// Package routeengine implements the route & time engine: for one
// technician at a time, it packs SchedulableUnits across a multi-day
// horizon, calling the VRP solver once per day and back-propagating the
// resulting start/end times onto every job. Technicians are planned
// independently; nothing here shares mutable state across technicians,
// so callers may run PlanTechnician concurrently per technician.
package routeengine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pageza/fieldsched/internal/availability"
	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/schederr"
	"github.com/pageza/fieldsched/internal/solver/model"
	"github.com/pageza/fieldsched/internal/solverclient"
	"github.com/pageza/fieldsched/internal/travel"
	"github.com/pageza/fieldsched/internal/unitbuilder"
)

// DefaultMaxPlanningDays is the default multi-day packing horizon.
const DefaultMaxPlanningDays = 14

// Engine packs one technician's day-by-day schedule, delegating the
// combinatorial step to a solverclient.Client (the real HTTP solver or the
// in-process FallbackSolver).
type Engine struct {
	Travel          travel.Provider
	Availability    availability.Provider
	Solver          solverclient.Client
	Logger          *log.Logger
	MaxPlanningDays int

	// LocationIndex assigns every known address a dense index for the
	// solver's wire format; IndexLocation is its inverse.
	LocationIndex map[uuid.UUID]int
	IndexLocation map[int]domain.Address
}

// New builds an Engine.
func New(travelProvider travel.Provider, availabilityProvider availability.Provider, solver solverclient.Client, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		Travel:          travelProvider,
		Availability:    availabilityProvider,
		Solver:          solver,
		Logger:          logger,
		MaxPlanningDays: DefaultMaxPlanningDays,
	}
}

func (e *Engine) horizon() int {
	if e.MaxPlanningDays > 0 {
		return e.MaxPlanningDays
	}
	return DefaultMaxPlanningDays
}

// PlanTechnician packs jobs (the technician's currently assigned,
// non-immutable jobs) across the planning horizon and writes the resulting
// ETAs onto each job and onto tech.Schedule. It returns the IDs of any
// units that could not be scheduled within the horizon.
func (e *Engine) PlanTechnician(ctx context.Context, tech *domain.Technician, jobs []*domain.Job) ([]string, error) {
	builder := unitbuilder.New(e.Logger)

	var movable []*domain.Job
	for _, j := range jobs {
		if !j.Immutable() {
			movable = append(movable, j)
		}
	}
	units := builder.Build(movable)

	var fixedQueue, dynamicQueue []*domain.SchedulableUnit
	for _, u := range units {
		if u.FixedScheduleTime != nil {
			fixedQueue = append(fixedQueue, u)
		} else {
			dynamicQueue = append(dynamicQueue, u)
		}
	}
	sortDynamic(dynamicQueue)

	if tech.Schedule == nil {
		tech.Schedule = make(map[int][]domain.PlacedStop)
	}

	for day := 1; day <= e.horizon() && (len(fixedQueue) > 0 || len(dynamicQueue) > 0); day++ {
		dayWindow, ok, err := e.Availability.DayWindow(ctx, tech.ID, day)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		unavail, err := e.Availability.Unavailabilities(ctx, tech.ID)
		if err != nil {
			return nil, err
		}
		dayUnavail := filterUnavailabilitiesForDay(unavail, dayWindow)

		var placedFixed []*domain.SchedulableUnit
		fixedQueue, placedFixed = e.partitionFixedForDay(fixedQueue, dayWindow)

		gaps := buildGaps(dayWindow, placedFixed)
		trialDynamic, remainingDynamic := e.tryFitDynamic(ctx, dynamicQueue, gaps, tech, day)

		selected := append(append([]*domain.SchedulableUnit(nil), placedFixed...), trialDynamic...)
		if len(selected) == 0 {
			dynamicQueue = remainingDynamic
			continue
		}

		req, err := e.buildRequest(tech, day, dayWindow, dayUnavail, selected)
		if err != nil {
			return nil, err
		}

		resp, err := e.Solver.Optimize(ctx, req)
		if err != nil || resp == nil || resp.Status == model.StatusError {
			// Solver unreachable or rejected the whole day: commit only
			// the fixed units (already hard-placed above) and return the
			// trialed dynamic units to the queue for the next day.
			e.commitFixedOnly(tech, day, placedFixed)
			dynamicQueue = requeueUncommitted(remainingDynamic, trialDynamic, nil)
			continue
		}

		committed := e.commitSolverResult(tech, day, selected, resp)
		for _, u := range placedFixed {
			if !committed[u.ID] {
				fixedQueue = append(fixedQueue, u)
			}
		}
		dynamicQueue = requeueUncommitted(remainingDynamic, trialDynamic, committed)
	}

	e.backPropagate(tech)

	unscheduled := make([]string, 0, len(fixedQueue)+len(dynamicQueue))
	for _, u := range fixedQueue {
		unscheduled = append(unscheduled, u.ID)
	}
	for _, u := range dynamicQueue {
		unscheduled = append(unscheduled, u.ID)
	}
	return unscheduled, nil
}

func sortDynamic(units []*domain.SchedulableUnit) {
	sort.Slice(units, func(i, k int) bool {
		if units[i].Priority != units[k].Priority {
			return units[i].Priority < units[k].Priority
		}
		if units[i].Duration != units[k].Duration {
			return units[i].Duration > units[k].Duration
		}
		return units[i].ID < units[k].ID
	})
}

func filterUnavailabilitiesForDay(all []domain.TechnicianUnavailability, day domain.DailyAvailability) []domain.TechnicianUnavailability {
	var out []domain.TechnicianUnavailability
	for _, u := range all {
		if !u.Start.Before(day.Start) && u.Start.Before(day.End) {
			out = append(out, u)
		}
	}
	return out
}

// partitionFixedForDay places queued fixed units whose fixed date matches
// this day's calendar date, ascending by time, rejecting any that fall
// outside the window or overlap an earlier-placed fixed unit. Rejections
// remain in the returned pending queue.
func (e *Engine) partitionFixedForDay(queue []*domain.SchedulableUnit, day domain.DailyAvailability) (pending, placed []*domain.SchedulableUnit) {
	var today, later []*domain.SchedulableUnit
	for _, u := range queue {
		if sameDate(*u.FixedScheduleTime, day.Start) {
			today = append(today, u)
		} else {
			later = append(later, u)
		}
	}
	sort.Slice(today, func(i, k int) bool { return today[i].FixedScheduleTime.Before(*today[k].FixedScheduleTime) })

	var lastEnd time.Time
	for _, u := range today {
		start := *u.FixedScheduleTime
		end := start.Add(u.Duration)
		if start.Before(day.Start) || end.After(day.End) || (!lastEnd.IsZero() && start.Before(lastEnd)) {
			e.Logger.Printf("warn: fixed unit %s rejected for day %d: outside window or overlapping", u.ID, day.DayNumber)
			later = append(later, u)
			continue
		}
		placed = append(placed, u)
		lastEnd = end
	}
	return later, placed
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

type gap struct {
	start, end time.Time
}

func buildGaps(day domain.DailyAvailability, placedFixed []*domain.SchedulableUnit) []gap {
	sort.Slice(placedFixed, func(i, k int) bool {
		return placedFixed[i].FixedScheduleTime.Before(*placedFixed[k].FixedScheduleTime)
	})

	var gaps []gap
	cursor := day.Start
	for _, u := range placedFixed {
		start := *u.FixedScheduleTime
		if start.After(cursor) {
			gaps = append(gaps, gap{start: cursor, end: start})
		}
		cursor = start.Add(u.Duration)
	}
	if day.End.After(cursor) {
		gaps = append(gaps, gap{start: cursor, end: day.End})
	}
	return gaps
}

// tryFitDynamic greedily trial-fits dynamic units (priority order) into
// gaps using the same arrival-based capacity check as the ETA estimator.
// It does not mutate the technician's committed schedule; the solver call
// that follows is authoritative.
func (e *Engine) tryFitDynamic(ctx context.Context, queue []*domain.SchedulableUnit, gaps []gap, tech *domain.Technician, day int) (trial, remaining []*domain.SchedulableUnit) {
	startLoc := tech.StartLocation(day)
	gapCursorLoc := make([]domain.Address, len(gaps))
	for i := range gaps {
		gapCursorLoc[i] = startLoc
	}

	for _, u := range queue {
		placed := false
		for i := range gaps {
			fromIdx := e.LocationIndex[gapCursorLoc[i].ID]
			toIdx := e.LocationIndex[u.Location.ID]
			seconds, err := e.Travel.Seconds(ctx, fromIdx, toIdx)
			if err != nil || seconds == travel.Infeasible {
				continue
			}
			arrival := gaps[i].start.Add(time.Duration(seconds) * time.Second)
			candidateStart := arrival
			if gaps[i].start.After(candidateStart) {
				candidateStart = gaps[i].start
			}
			if u.EarliestStartTime != nil && u.EarliestStartTime.After(candidateStart) {
				candidateStart = *u.EarliestStartTime
			}
			if !candidateStart.Add(u.Duration).After(gaps[i].end) {
				trial = append(trial, u)
				gaps[i].start = candidateStart.Add(u.Duration)
				gapCursorLoc[i] = u.Location
				placed = true
				break
			}
		}
		if !placed {
			remaining = append(remaining, u)
		}
	}
	return trial, remaining
}

func (e *Engine) buildRequest(tech *domain.Technician, day int, dayWindow domain.DailyAvailability, unavail []domain.TechnicianUnavailability, units []*domain.SchedulableUnit) (model.Request, error) {
	indices := map[int]bool{e.LocationIndex[tech.StartLocation(day).ID]: true, e.LocationIndex[tech.HomeLocation.ID]: true}
	items := make([]model.Item, 0, len(units))
	fixedConstraints := make([]model.FixedConstraint, 0)

	for _, u := range units {
		idx := e.LocationIndex[u.Location.ID]
		indices[idx] = true
		eligible := make([]string, 0, 1)
		if tech.CanHandle(u.RequiredEquipment) {
			eligible = append(eligible, tech.ID.String())
		}
		it := model.Item{
			ID:                    u.ID,
			LocationIndex:         idx,
			DurationSeconds:       int(u.Duration.Seconds()),
			Priority:              u.Priority,
			EligibleTechnicianIDs: eligible,
		}
		if u.EarliestStartTime != nil {
			it.EarliestStartTimeISO = u.EarliestStartTime.UTC().Format(time.RFC3339)
		}
		if u.FixedScheduleTime != nil {
			it.IsFixedTime = true
			it.FixedTimeISO = u.FixedScheduleTime.UTC().Format(time.RFC3339)
			fixedConstraints = append(fixedConstraints, model.FixedConstraint{ItemID: u.ID, FixedTimeISO: it.FixedTimeISO})
		}
		items = append(items, it)
	}

	locations := make([]model.Location, 0, len(indices))
	for idx := range indices {
		locations = append(locations, model.Location{Index: idx})
	}
	sort.Slice(locations, func(i, k int) bool { return locations[i].Index < locations[k].Index })

	travelMatrix, err := e.restrictedMatrix(indices)
	if err != nil {
		return model.Request{}, err
	}

	unavailWire := make([]model.Unavailability, 0, len(unavail))
	for _, u := range unavail {
		unavailWire = append(unavailWire, model.Unavailability{
			TechnicianID:    tech.ID.String(),
			StartTimeISO:    u.Start.UTC().Format(time.RFC3339),
			DurationSeconds: int(u.Duration.Seconds()),
		})
	}

	return model.Request{
		Locations: locations,
		Technicians: []model.Technician{{
			ID:                   tech.ID.String(),
			StartLocationIndex:   e.LocationIndex[tech.StartLocation(day).ID],
			EndLocationIndex:     e.LocationIndex[tech.HomeLocation.ID],
			EarliestStartTimeISO: dayWindow.Start.UTC().Format(time.RFC3339),
			LatestEndTimeISO:     dayWindow.End.UTC().Format(time.RFC3339),
		}},
		Items:                      items,
		FixedConstraints:           fixedConstraints,
		TechnicianUnavailabilities: unavailWire,
		TravelTimeMatrix:           travelMatrix,
	}, nil
}

func (e *Engine) restrictedMatrix(indices map[int]bool) (map[string]map[string]int, error) {
	ctx := context.Background()
	out := make(map[string]map[string]int)
	for from := range indices {
		row := make(map[string]int)
		for to := range indices {
			seconds, err := e.Travel.Seconds(ctx, from, to)
			if err != nil {
				return nil, schederr.TransientIO("travel provider lookup", err)
			}
			row[fmt.Sprint(to)] = seconds
		}
		out[fmt.Sprint(from)] = row
	}
	return out, nil
}

func (e *Engine) commitFixedOnly(tech *domain.Technician, day int, placedFixed []*domain.SchedulableUnit) {
	for _, u := range placedFixed {
		tech.Schedule[day] = append(tech.Schedule[day], domain.PlacedStop{
			Unit:  u,
			Start: *u.FixedScheduleTime,
			End:   u.FixedScheduleTime.Add(u.Duration),
		})
	}
}

// commitSolverResult writes every stop the solver actually placed onto the
// technician's schedule for the day and returns the set of committed unit
// IDs so the caller can requeue anything trialed-but-not-committed.
func (e *Engine) commitSolverResult(tech *domain.Technician, day int, selected []*domain.SchedulableUnit, resp *model.Response) map[string]bool {
	byID := make(map[string]*domain.SchedulableUnit, len(selected))
	for _, u := range selected {
		byID[u.ID] = u
	}

	committed := make(map[string]bool, len(selected))
	for _, route := range resp.Routes {
		if route.TechnicianID != tech.ID.String() {
			continue
		}
		for _, stop := range route.Stops {
			u, ok := byID[stop.ItemID]
			if !ok {
				continue
			}
			start, err1 := time.Parse(time.RFC3339, stop.StartTimeISO)
			end, err2 := time.Parse(time.RFC3339, stop.EndTimeISO)
			if err1 != nil || err2 != nil {
				continue
			}
			tech.Schedule[day] = append(tech.Schedule[day], domain.PlacedStop{Unit: u, Start: start, End: end})
			committed[stop.ItemID] = true
		}
	}
	return committed
}

func requeueUncommitted(remaining, trial []*domain.SchedulableUnit, committed map[string]bool) []*domain.SchedulableUnit {
	out := remaining
	for _, u := range trial {
		if !committed[u.ID] {
			out = append(out, u)
		}
	}
	sortDynamic(out)
	return out
}

// backPropagate walks every placed stop across the technician's full
// schedule and writes estimatedSched/estimatedSchedEnd onto each job,
// assigning sequential start times to jobs within a multi-job unit.
func (e *Engine) backPropagate(tech *domain.Technician) {
	for day, stops := range tech.Schedule {
		sort.Slice(stops, func(i, k int) bool { return stops[i].Start.Before(stops[k].Start) })
		tech.Schedule[day] = stops

		for _, stop := range stops {
			cursor := stop.Start
			for _, job := range stop.Unit.Jobs {
				start := cursor
				end := start.Add(job.Duration)
				job.EstimatedSched = &start
				job.EstimatedSchedEnd = &end
				job.CustomerEtaStart = &start
				job.CustomerEtaEnd = &end
				job.Status = domain.JobStatusScheduled
				cursor = end
			}
		}
	}
}
