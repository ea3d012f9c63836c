// Package engine implements the VRP solver's routing model and search: the
// arc-cost/time-dimension/disjunction machinery described in the solver
// service's component design, translated from OR-Tools' manager/model
// objects into plain Go data structures since no CP-SAT/VRP binding exists
// for Go in this codebase's dependency set. Construction uses a
// cheapest-insertion first-solution pass (the PATH_CHEAPEST_ARC analogue)
// followed by a bounded local-search improvement pass (the
// GUIDED_LOCAL_SEARCH analogue).
package engine

import (
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/pageza/fieldsched/internal/schederr"
	"github.com/pageza/fieldsched/internal/solver/model"
)

// Config carries the solver binary's tunables into a Problem: the
// disjunction-penalty base, the prohibitive arc-cost sentinel, the search's
// wall-clock budget, and whether verbose search logging is enabled. Each
// field mirrors the matching config.SolverConfig field one level up.
type Config struct {
	BasePenalty      int
	InfeasibleCost   int
	WallClockLimit   time.Duration
	SearchLogEnabled bool
	Logger           *log.Logger
}

// DefaultConfig returns the protocol-level defaults from the model package,
// for callers (such as tests) that have no SolverConfig to hand.
func DefaultConfig() Config {
	return Config{
		BasePenalty:    model.BasePenalty,
		InfeasibleCost: model.InfeasibleCost,
		WallClockLimit: time.Second,
	}
}

// item is the internal, time-relative representation of a model.Item.
type item struct {
	id              string
	locationIdx     int
	durationSeconds int
	priority        int
	eligible        map[string]bool
	earliestStart   *int
	fixedTime       *int
	isFixed         bool
}

// vehicle is the internal, time-relative representation of a
// model.Technician plus the hard break intervals (unavailabilities) that
// apply to it.
type vehicle struct {
	id            string
	startIdx      int
	endIdx        int
	earliestStart int
	latestEnd     int
	breaks        []breakInterval
}

type breakInterval struct {
	start int
	end   int
}

// stop is one placed visit in a vehicle's constructed route.
type stop struct {
	item     *item
	arrival  int
	start    int
	end      int
}

// Problem is the fully parsed, time-relativized routing model: the
// equivalent of an OR-Tools RoutingIndexManager + RoutingModel pair, minus
// the constraint solver itself.
type Problem struct {
	epoch       time.Time
	vehicles    []*vehicle
	items       map[string]*item
	travel      map[int]map[int]int
	maxPriority int

	basePenalty      int
	infeasibleCost   int
	wallClockLimit   time.Duration
	searchLogEnabled bool
	logger           *log.Logger

	searchDeadline time.Time
}

// Build parses a wire Request into a Problem, converting every absolute
// ISO-8601 timestamp into seconds relative to the planning epoch (the
// earliest technician start across the request). cfg supplies the
// disjunction-penalty base, the infeasible-arc sentinel, and the search's
// wall-clock budget, so the solver binary's configuration actually reaches
// the routing model instead of a hardcoded stand-in.
func Build(req model.Request, cfg Config) (*Problem, error) {
	if len(req.Technicians) == 0 {
		return nil, schederr.InputValidation("request has no technicians")
	}

	epoch, err := planningEpoch(req.Technicians)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	p := &Problem{
		epoch:            epoch,
		items:            make(map[string]*item),
		basePenalty:      cfg.BasePenalty,
		infeasibleCost:   cfg.InfeasibleCost,
		wallClockLimit:   cfg.WallClockLimit,
		searchLogEnabled: cfg.SearchLogEnabled,
		logger:           logger,
	}

	p.travel = make(map[int]map[int]int, len(req.TravelTimeMatrix))
	for fromStr, row := range req.TravelTimeMatrix {
		from, err := strconv.Atoi(fromStr)
		if err != nil {
			return nil, schederr.InputValidation("bad travel matrix row index %q", fromStr)
		}
		dest := make(map[int]int, len(row))
		for toStr, seconds := range row {
			to, err := strconv.Atoi(toStr)
			if err != nil {
				return nil, schederr.InputValidation("bad travel matrix column index %q", toStr)
			}
			dest[to] = seconds
		}
		p.travel[from] = dest
	}

	for _, t := range req.Technicians {
		start, err := parseISO(t.EarliestStartTimeISO)
		if err != nil {
			return nil, schederr.Wrap(schederr.KindInputValidation, "technician "+t.ID+" earliestStartTimeISO", err)
		}
		end, err := parseISO(t.LatestEndTimeISO)
		if err != nil {
			return nil, schederr.Wrap(schederr.KindInputValidation, "technician "+t.ID+" latestEndTimeISO", err)
		}
		p.vehicles = append(p.vehicles, &vehicle{
			id:            t.ID,
			startIdx:      t.StartLocationIndex,
			endIdx:        t.EndLocationIndex,
			earliestStart: relativeSeconds(epoch, start),
			latestEnd:     relativeSeconds(epoch, end),
		})
	}

	for _, u := range req.TechnicianUnavailabilities {
		start, err := parseISO(u.StartTimeISO)
		if err != nil {
			return nil, schederr.Wrap(schederr.KindInputValidation, "unavailability for "+u.TechnicianID+" startTimeISO", err)
		}
		rel := relativeSeconds(epoch, start)
		for _, v := range p.vehicles {
			if v.id == u.TechnicianID {
				v.breaks = append(v.breaks, breakInterval{start: rel, end: rel + u.DurationSeconds})
			}
		}
	}
	for _, v := range p.vehicles {
		sort.Slice(v.breaks, func(i, k int) bool { return v.breaks[i].start < v.breaks[k].start })
	}

	fixedOverride := make(map[string]int, len(req.FixedConstraints))
	for _, fc := range req.FixedConstraints {
		t, err := parseISO(fc.FixedTimeISO)
		if err != nil {
			return nil, schederr.Wrap(schederr.KindInputValidation, "fixed constraint for "+fc.ItemID, err)
		}
		fixedOverride[fc.ItemID] = relativeSeconds(epoch, t)
	}

	for _, it := range req.Items {
		internal := &item{
			id:              it.ID,
			locationIdx:     it.LocationIndex,
			durationSeconds: it.DurationSeconds,
			priority:        it.Priority,
			eligible:        toSet(it.EligibleTechnicianIDs),
		}
		if internal.priority > p.maxPriority {
			p.maxPriority = internal.priority
		}
		if it.EarliestStartTimeISO != "" {
			t, err := parseISO(it.EarliestStartTimeISO)
			if err != nil {
				return nil, schederr.Wrap(schederr.KindInputValidation, "item "+it.ID+" earliestStartTimeISO", err)
			}
			rel := relativeSeconds(epoch, t)
			internal.earliestStart = &rel
		}
		if it.IsFixedTime && it.FixedTimeISO != "" {
			t, err := parseISO(it.FixedTimeISO)
			if err != nil {
				return nil, schederr.Wrap(schederr.KindInputValidation, "item "+it.ID+" fixedTimeISO", err)
			}
			rel := relativeSeconds(epoch, t)
			internal.fixedTime = &rel
			internal.isFixed = true
		}
		if rel, ok := fixedOverride[it.ID]; ok {
			internal.fixedTime = &rel
			internal.isFixed = true
		}
		p.items[it.ID] = internal
	}

	return p, nil
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func planningEpoch(techs []model.Technician) (time.Time, error) {
	var epoch time.Time
	for _, t := range techs {
		start, err := parseISO(t.EarliestStartTimeISO)
		if err != nil {
			return time.Time{}, schederr.Wrap(schederr.KindInputValidation, "technician "+t.ID+" earliestStartTimeISO", err)
		}
		if epoch.IsZero() || start.Before(epoch) {
			epoch = start
		}
	}
	return epoch, nil
}

// parseISO parses an ISO-8601 timestamp with either an explicit offset or
// a trailing Z; Go's RFC3339 layout already accepts both forms.
func parseISO(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func relativeSeconds(epoch, t time.Time) int {
	return int(t.Sub(epoch).Seconds())
}

func toISO(epoch time.Time, relSeconds int) string {
	return epoch.Add(time.Duration(relSeconds) * time.Second).UTC().Format("2006-01-02T15:04:05Z")
}

// travelSeconds looks up the travel time between two dense location
// indices, treating a missing or negative entry as p.infeasibleCost per the
// solver's failure semantics.
func (p *Problem) travelSeconds(from, to int) int {
	row, ok := p.travel[from]
	if !ok {
		return p.infeasibleCost
	}
	v, ok := row[to]
	if !ok || v < 0 {
		return p.infeasibleCost
	}
	return v
}

// arcCost implements the eligibility-as-cost rule named in the routing
// model's arc-cost callback: base travel time, plus p.infeasibleCost again
// if the destination is an item the vehicle's technician is not eligible
// for. An ineligible placement is therefore possible but prohibitively
// expensive rather than excluded from the search up front; for dynamic
// items the disjunction-penalty comparison in construct is what actually
// keeps it from winning, and revalidateEligibility is the backstop for the
// rest.
func (p *Problem) arcCost(v *vehicle, fromIdx, toIdx int, toItem *item) int {
	cost := p.travelSeconds(fromIdx, toIdx)
	if toItem != nil && !toItem.eligible[v.id] {
		cost += p.infeasibleCost
	}
	return cost
}

// disjunctionPenalty is the cost the solver pays to leave it unserved:
// proportional to priority, ported from the base-penalty × priority-step
// trade-off in the routing model's disjunction design.
func (p *Problem) disjunctionPenalty(it *item) int {
	return p.basePenalty * (p.maxPriority - it.priority + 1)
}
