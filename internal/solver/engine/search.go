package engine

import (
	"sort"
	"time"

	"github.com/pageza/fieldsched/internal/solver/model"
)

// maxLocalSearchPasses bounds the improvement loop's adjacent-swap attempts
// regardless of how much wall-clock budget remains, so a generous
// WallClockLimit can't turn the heuristic into an unbounded loop.
const maxLocalSearchPasses = 25

// Solve runs construction followed by a bounded local-search improvement
// pass over every vehicle in the problem, then assembles the wire
// Response. The local-search pass stops at the deadline set from
// p.wallClockLimit or after maxLocalSearchPasses, whichever comes first;
// construction itself is not checked against the deadline.
func (p *Problem) Solve() *model.Response {
	p.searchDeadline = time.Now().Add(p.wallClockLimit)

	claimed := make(map[string]bool, len(p.items))
	routes := make([]model.Route, 0, len(p.vehicles))

	for _, v := range p.vehicles {
		stops := p.construct(v, claimed)
		p.improve(v, stops)
		routes = append(routes, p.toWireRoute(v, stops))
	}

	unassigned := make([]string, 0)
	for id := range p.items {
		if !claimed[id] {
			unassigned = append(unassigned, id)
		}
	}
	sort.Strings(unassigned)

	routes = p.revalidateEligibility(routes, claimed, &unassigned)

	status := model.StatusSuccess
	switch {
	case len(unassigned) > 0 && allRoutesEmpty(routes):
		status = model.StatusError
	case len(unassigned) > 0:
		status = model.StatusPartial
	}

	msg := ""
	if status != model.StatusSuccess {
		msg = "one or more items could not be placed within technician capacity or eligibility"
	}

	return &model.Response{
		Status:            status,
		Routes:            routes,
		UnassignedItemIDs: unassigned,
		Message:           msg,
	}
}

func allRoutesEmpty(routes []model.Route) bool {
	for _, r := range routes {
		if len(r.Stops) > 0 {
			return false
		}
	}
	return true
}

// construct builds one vehicle's route: fixed-time items first (in time
// order, each a mandatory near-zero-penalty disjunction per the spec),
// then dynamic items inserted cheapest-position-first in ascending
// priority order. Eligibility is not pre-pruned here — it is priced into
// every arc via arcCost, so an ineligible placement is merely expensive
// rather than impossible, keeping the decision variables uniform the way
// the routing model's design calls for. For dynamic items the marginal
// arc cost of insertion is weighed against the item's disjunction penalty
// (basePenalty scaled by priority): if inserting costs more than leaving
// the item unserved, it is left unclaimed instead. Items it cannot place
// are left unclaimed for the caller to report as unassigned.
func (p *Problem) construct(v *vehicle, claimed map[string]bool) []*stop {
	var fixed, dynamic []*item
	for _, it := range p.items {
		if claimed[it.id] {
			continue
		}
		if it.isFixed {
			fixed = append(fixed, it)
		} else {
			dynamic = append(dynamic, it)
		}
	}
	sort.Slice(fixed, func(i, k int) bool { return *fixed[i].fixedTime < *fixed[k].fixedTime })
	sort.Slice(dynamic, func(i, k int) bool {
		if dynamic[i].priority != dynamic[k].priority {
			return dynamic[i].priority < dynamic[k].priority
		}
		if dynamic[i].durationSeconds != dynamic[k].durationSeconds {
			return dynamic[i].durationSeconds > dynamic[k].durationSeconds
		}
		return dynamic[i].id < dynamic[k].id
	})

	stops := make([]*stop, 0, len(fixed)+len(dynamic))

	for _, it := range fixed {
		trial := append(append([]*stop(nil), stops...), &stop{item: it})
		if p.recompute(v, trial) {
			stops = trial
			claimed[it.id] = true
		}
	}

	for _, it := range dynamic {
		baseCost := p.routeTravelCost(v, stops)
		bestMarginal := 0
		var bestTrial []*stop
		for pos := 0; pos <= len(stops); pos++ {
			trial := insertAt(stops, pos, it)
			if !p.recompute(v, trial) {
				continue
			}
			marginal := p.routeTravelCost(v, trial) - baseCost
			if bestTrial == nil || marginal < bestMarginal {
				bestMarginal, bestTrial = marginal, trial
			}
		}
		if bestTrial != nil && bestMarginal < p.disjunctionPenalty(it) {
			stops = bestTrial
			claimed[it.id] = true
		}
	}

	return stops
}

func insertAt(stops []*stop, pos int, it *item) []*stop {
	out := make([]*stop, 0, len(stops)+1)
	out = append(out, stops[:pos]...)
	out = append(out, &stop{item: it})
	out = append(out, stops[pos:]...)
	return out
}

// recompute walks stops in order from the vehicle's start depot,
// filling in arrival/start/end times and reporting whether the resulting
// route is feasible: fixed items must be reachable by their fixed time,
// no stop may overlap a break interval, and the route (including the
// return to the end depot) must finish within the vehicle's window.
func (p *Problem) recompute(v *vehicle, stops []*stop) bool {
	cursor := v.earliestStart
	cursorLoc := v.startIdx

	for _, s := range stops {
		arrival := cursor + p.travelSeconds(cursorLoc, s.item.locationIdx)

		var start int
		if s.item.isFixed {
			if arrival > *s.item.fixedTime {
				return false
			}
			start = *s.item.fixedTime
		} else {
			start = arrival
			if s.item.earliestStart != nil && *s.item.earliestStart > start {
				start = *s.item.earliestStart
			}
		}
		end := start + s.item.durationSeconds
		if end > v.latestEnd {
			return false
		}
		for _, b := range v.breaks {
			if start < b.end && end > b.start {
				return false
			}
		}

		s.arrival = arrival
		s.start = start
		s.end = end
		cursor = end
		cursorLoc = s.item.locationIdx
	}

	if len(stops) > 0 {
		last := stops[len(stops)-1]
		if last.end+p.travelSeconds(last.item.locationIdx, v.endIdx) > v.latestEnd {
			return false
		}
	}

	return true
}

// routeTravelCost sums the route's arc costs (not raw travel times): each
// arc into a stop is priced by arcCost, so a route that includes an
// ineligible item carries that item's infeasible-cost penalty and loses
// out to cheaper alternatives during insertion and local search.
func (p *Problem) routeTravelCost(v *vehicle, stops []*stop) int {
	if len(stops) == 0 {
		return 0
	}
	total := p.arcCost(v, v.startIdx, stops[0].item.locationIdx, stops[0].item)
	for i := 1; i < len(stops); i++ {
		total += p.arcCost(v, stops[i-1].item.locationIdx, stops[i].item.locationIdx, stops[i].item)
	}
	total += p.travelSeconds(stops[len(stops)-1].item.locationIdx, v.endIdx)
	return total
}

// improve runs a bounded number of adjacent-swap passes over the route's
// non-fixed stops, keeping any swap that stays feasible and reduces total
// arc cost. This is the guided-local-search analogue: a small greedy
// descent rather than a penalized tabu search, since the latter needs a
// real constraint solver to be worth the complexity. Passes stop early
// once p.searchDeadline (set from the configured wall-clock limit) passes,
// in addition to the maxLocalSearchPasses hard cap.
func (p *Problem) improve(v *vehicle, stops []*stop) {
	for pass := 0; pass < maxLocalSearchPasses; pass++ {
		if time.Now().After(p.searchDeadline) {
			if p.searchLogEnabled {
				p.logger.Printf("search: wall-clock limit reached after %d pass(es) on vehicle %s", pass, v.id)
			}
			break
		}
		improved := false
		for i := 0; i+1 < len(stops); i++ {
			if stops[i].item.isFixed || stops[i+1].item.isFixed {
				continue
			}
			before := p.routeTravelCost(v, stops)
			swapped := append([]*stop(nil), stops...)
			swapped[i], swapped[i+1] = swapped[i+1], swapped[i]
			if !p.recompute(v, swapped) {
				p.recompute(v, stops) // restore accurate timings after failed trial
				continue
			}
			after := p.routeTravelCost(v, swapped)
			if after < before {
				copy(stops, swapped)
				improved = true
				if p.searchLogEnabled {
					p.logger.Printf("search: vehicle %s pass %d swapped stops %d/%d, cost %d -> %d", v.id, pass, i, i+1, before, after)
				}
			} else {
				p.recompute(v, stops)
			}
		}
		if !improved {
			break
		}
	}
}

func (p *Problem) toWireRoute(v *vehicle, stops []*stop) model.Route {
	wireStops := make([]model.Stop, 0, len(stops))
	for _, s := range stops {
		wireStops = append(wireStops, model.Stop{
			ItemID:         s.item.id,
			ArrivalTimeISO: toISO(p.epoch, s.arrival),
			StartTimeISO:   toISO(p.epoch, s.start),
			EndTimeISO:     toISO(p.epoch, s.end),
		})
	}

	totalDuration := 0
	if len(stops) > 0 {
		totalDuration = stops[len(stops)-1].end - stops[0].arrival
	}

	return model.Route{
		TechnicianID:           v.id,
		Stops:                  wireStops,
		TotalTravelTimeSeconds: p.routeTravelCost(v, stops),
		TotalDurationSeconds:   totalDuration,
	}
}

// revalidateEligibility is the bug-defense pass named in the solver's
// component design: any stop that somehow violates eligibility invalidates
// its whole route, and its items are reported unassigned instead. Dynamic
// items are already priced out of ineligible vehicles by arcCost and the
// disjunction-penalty comparison in construct, so this mainly catches the
// one case that check doesn't cover — a mandatory fixed-time item placed on
// its only reachable-in-time vehicle despite failing eligibility — and
// fails safe against any future construction bug rather than silently
// returning a wrong assignment.
func (p *Problem) revalidateEligibility(routes []model.Route, claimed map[string]bool, unassigned *[]string) []model.Route {
	out := make([]model.Route, 0, len(routes))
	for _, r := range routes {
		violated := false
		for _, s := range r.Stops {
			it, ok := p.items[s.ItemID]
			if !ok || !it.eligible[r.TechnicianID] {
				violated = true
				break
			}
		}
		if violated {
			for _, s := range r.Stops {
				claimed[s.ItemID] = false
				*unassigned = append(*unassigned, s.ItemID)
			}
			out = append(out, model.Route{TechnicianID: r.TechnicianID})
			continue
		}
		out = append(out, r)
	}
	sort.Strings(*unassigned)
	return out
}
