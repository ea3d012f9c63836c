package routeengine

import (
	"context"
	"sort"

	"github.com/pageza/fieldsched/internal/solver/model"
)

// FallbackSolver is the pure in-process optimizer named in the design
// notes: brute-force permutation search for small stop counts, nearest-
// neighbor otherwise. It implements solverclient.Client so the route & time
// engine can swap it in for unit tests or when the solver service is
// unreachable, without special-casing either path.
//
// Grounded on the brute-force/nearest-neighbor split in the original
// routing module: permutations are only tried for up to bruteForceLimit
// stops, matching that module's own threshold.
type FallbackSolver struct{}

// NewFallbackSolver builds a FallbackSolver.
func NewFallbackSolver() *FallbackSolver { return &FallbackSolver{} }

const bruteForceLimit = 8

// minTravelFloorSeconds is the minimum travel time floor applied only by
// fallback heuristics, per the configuration surface in the external
// interfaces section; the solver's own arc costs are never floored.
const minTravelFloorSeconds = 5 * 60

// Optimize implements solverclient.Client using a single-vehicle
// nearest-neighbor or brute-force TSP instead of the full arc-cost/time-
// dimension search in internal/solver/engine. It honors fixed-time items
// as hard anchors and drops an item to unassigned rather than violate a
// technician's window or a break interval.
func (f *FallbackSolver) Optimize(_ context.Context, req model.Request) (*model.Response, error) {
	if len(req.Technicians) != 1 {
		return &model.Response{Status: model.StatusError, Message: "fallback solver only supports a single vehicle per request"}, nil
	}
	tech := req.Technicians[0]

	travel := toIntMatrix(req.TravelTimeMatrix)
	fixedTimes := make(map[string]string, len(req.FixedConstraints))
	for _, fc := range req.FixedConstraints {
		fixedTimes[fc.ItemID] = fc.FixedTimeISO
	}

	epoch, err := parseEpoch(tech.EarliestStartTimeISO)
	if err != nil {
		return nil, err
	}
	latestEnd, err := relSeconds(epoch, tech.LatestEndTimeISO)
	if err != nil {
		return nil, err
	}

	var fixed, dynamic []model.Item
	for _, it := range req.Items {
		if !containsString(it.EligibleTechnicianIDs, tech.ID) {
			continue
		}
		if ft, ok := fixedTimes[it.ID]; ok {
			it.IsFixedTime = true
			it.FixedTimeISO = ft
		}
		if it.IsFixedTime {
			fixed = append(fixed, it)
		} else {
			dynamic = append(dynamic, it)
		}
	}

	breaks, err := toBreaks(epoch, req.TechnicianUnavailabilities, tech.ID)
	if err != nil {
		return nil, err
	}

	order, err := orderDynamic(dynamic, travel, tech.StartLocationIndex)
	if err != nil {
		return nil, err
	}

	placed, unassigned, err := placeSequence(epoch, tech, travel, breaks, fixed, order, latestEnd)
	if err != nil {
		return nil, err
	}

	claimedIDs := make(map[string]bool, len(placed))
	for _, s := range placed {
		claimedIDs[s.itemID] = true
	}
	for _, it := range req.Items {
		if !claimedIDs[it.ID] && !containsStringSlice(unassigned, it.ID) {
			unassigned = append(unassigned, it.ID)
		}
	}
	sort.Strings(unassigned)

	route := buildRoute(tech.ID, epoch, placed)
	status := model.StatusSuccess
	if len(unassigned) > 0 {
		status = model.StatusPartial
		if len(placed) == 0 {
			status = model.StatusError
		}
	}

	return &model.Response{
		Status:            status,
		Routes:            []model.Route{route},
		UnassignedItemIDs: unassigned,
	}, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsStringSlice(haystack []string, needle string) bool {
	return containsString(haystack, needle)
}
