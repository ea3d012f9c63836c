// Package eta implements the lightweight admissibility check the
// assignment planner uses to compare technicians for a candidate unit,
// without running the full VRP solver. It walks a technician's already
// placed stops for each day of the planning horizon, looking for the
// earliest gap the candidate unit fits into.
package eta

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pageza/fieldsched/internal/availability"
	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/travel"
)

// DefaultMaxPlanningDays is the default planning horizon searched before
// giving up on a candidate unit.
const DefaultMaxPlanningDays = 14

// Estimator computes earliest feasible start times for candidate units
// against a technician's existing schedule.
type Estimator struct {
	Travel          travel.Provider
	Availability    availability.Provider
	MaxPlanningDays int
}

// New builds an Estimator with the given providers and the default
// planning horizon.
func New(travelProvider travel.Provider, availabilityProvider availability.Provider) *Estimator {
	return &Estimator{
		Travel:          travelProvider,
		Availability:    availabilityProvider,
		MaxPlanningDays: DefaultMaxPlanningDays,
	}
}

func (e *Estimator) horizon() int {
	if e.MaxPlanningDays > 0 {
		return e.MaxPlanningDays
	}
	return DefaultMaxPlanningDays
}

// window is a gap of free time on a technician's day, along with the
// location the technician would be departing from if they started a visit
// at windowStart.
type window struct {
	start       time.Time
	end         time.Time
	fromLocAddr domain.Address
}

// EarliestStart returns the earliest feasible start time for the candidate
// unit on the given technician, or ok=false if no day within the horizon
// admits it.
func (e *Estimator) EarliestStart(ctx context.Context, tech *domain.Technician, unit *domain.SchedulableUnit, locationIndex map[uuid.UUID]int) (time.Time, bool, error) {
	largest, err := e.largestSingleDayCapacity(ctx, tech)
	if err != nil {
		return time.Time{}, false, err
	}
	if unit.Duration > largest {
		return time.Time{}, false, nil
	}

	for day := 1; day <= e.horizon(); day++ {
		dayWindow, ok, err := e.Availability.DayWindow(ctx, tech.ID, day)
		if err != nil {
			return time.Time{}, false, err
		}
		if !ok {
			continue
		}

		windows := e.availableWindows(tech, day, dayWindow)

		for _, w := range windows {
			fromIdx := locationIndex[w.fromLocAddr.ID]
			toIdx := locationIndex[unit.Location.ID]
			travelSeconds, err := e.Travel.Seconds(ctx, fromIdx, toIdx)
			if err != nil {
				return time.Time{}, false, err
			}
			if travelSeconds == travel.Infeasible {
				continue
			}

			arrival := w.start.Add(time.Duration(travelSeconds) * time.Second)
			candidateStart := arrival
			if w.start.After(candidateStart) {
				candidateStart = w.start
			}
			if unit.EarliestStartTime != nil && unit.EarliestStartTime.After(candidateStart) {
				candidateStart = *unit.EarliestStartTime
			}

			if !candidateStart.Add(unit.Duration).After(w.end) {
				return candidateStart, true, nil
			}
		}
	}

	return time.Time{}, false, nil
}

// availableWindows derives the sorted free-time gaps in a technician's day,
// given the day's overall window and the units already placed that day.
// Fixed units already placed anchor the boundaries between gaps; a placed
// stop that conflicts with the day window or an earlier stop is logged as a
// warning and excluded here.
func (e *Estimator) availableWindows(tech *domain.Technician, day int, dayWindow domain.DailyAvailability) []window {
	stops := append([]domain.PlacedStop(nil), tech.Schedule[day]...)
	sort.Slice(stops, func(i, k int) bool { return stops[i].Start.Before(stops[k].Start) })

	var windows []window
	cursor := dayWindow.Start
	cursorLoc := tech.StartLocation(day)

	for _, stop := range stops {
		if stop.Start.Before(cursor) || stop.Start.Before(dayWindow.Start) || stop.End.After(dayWindow.End) {
			// Conflicts with the running cursor or falls outside the day
			// window: excluded from window calculation, matching the
			// spec's "conflicts produce a warning and are ignored" rule.
			log.Printf("warn: placed unit %s on day %d conflicts with the day window or an earlier stop; ignored for window calculation", stop.Unit.ID, day)
			continue
		}
		if stop.Start.After(cursor) {
			windows = append(windows, window{
				start:       cursor,
				end:         stop.Start,
				fromLocAddr: cursorLoc,
			})
		}
		cursor = stop.End
		cursorLoc = stop.Unit.Location
	}

	if dayWindow.End.After(cursor) {
		windows = append(windows, window{
			start:       cursor,
			end:         dayWindow.End,
			fromLocAddr: cursorLoc,
		})
	}

	return windows
}

func (e *Estimator) largestSingleDayCapacity(ctx context.Context, tech *domain.Technician) (time.Duration, error) {
	var largest time.Duration
	for day := 1; day <= e.horizon(); day++ {
		w, ok, err := e.Availability.DayWindow(ctx, tech.ID, day)
		if err != nil {
			return 0, err
		}
		if ok && w.TotalDuration > largest {
			largest = w.TotalDuration
		}
	}
	return largest, nil
}
