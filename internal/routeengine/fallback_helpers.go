package routeengine

import (
	"strconv"
	"time"

	"github.com/pageza/fieldsched/internal/schederr"
	"github.com/pageza/fieldsched/internal/solver/model"
)

const unreachable = 1 << 30

type placedStop struct {
	itemID   string
	location int
	arrival  int
	start    int
	end      int
}

func toIntMatrix(wire map[string]map[string]int) map[int]map[int]int {
	out := make(map[int]map[int]int, len(wire))
	for fromStr, row := range wire {
		from, err := strconv.Atoi(fromStr)
		if err != nil {
			continue
		}
		dest := make(map[int]int, len(row))
		for toStr, sec := range row {
			to, err := strconv.Atoi(toStr)
			if err != nil {
				continue
			}
			dest[to] = sec
		}
		out[from] = dest
	}
	return out
}

// travelBetween applies the fallback-only minimum travel time floor; a
// missing or negative matrix entry is treated as unreachable so the
// fallback never routes across it.
func travelBetween(matrix map[int]map[int]int, from, to int) int {
	row, ok := matrix[from]
	if !ok {
		return unreachable
	}
	v, ok := row[to]
	if !ok || v < 0 {
		return unreachable
	}
	if v < minTravelFloorSeconds {
		return minTravelFloorSeconds
	}
	return v
}

func parseEpoch(iso string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return time.Time{}, schederr.InputValidation("bad technician earliestStartTimeISO %q: %v", iso, err)
	}
	return t, nil
}

func relSeconds(epoch time.Time, iso string) (int, error) {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return 0, schederr.InputValidation("bad ISO timestamp %q: %v", iso, err)
	}
	return int(t.Sub(epoch).Seconds()), nil
}

func toISOAbs(epoch time.Time, rel int) string {
	return epoch.Add(time.Duration(rel) * time.Second).UTC().Format("2006-01-02T15:04:05Z")
}

func toBreaks(epoch time.Time, unavail []model.Unavailability, technicianID string) ([][2]int, error) {
	var out [][2]int
	for _, u := range unavail {
		if u.TechnicianID != technicianID {
			continue
		}
		start, err := relSeconds(epoch, u.StartTimeISO)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]int{start, start + u.DurationSeconds})
	}
	return out, nil
}

func overlapsBreak(start, end int, breaks [][2]int) bool {
	for _, b := range breaks {
		if start < b[1] && end > b[0] {
			return true
		}
	}
	return false
}

// orderDynamic finds a visiting order for the dynamic (non-fixed) items
// starting from startLoc: brute-force over all permutations when the stop
// count is small enough to make that tractable, nearest-neighbor
// otherwise.
func orderDynamic(items []model.Item, matrix map[int]map[int]int, startLoc int) ([]model.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) <= bruteForceLimit {
		return bruteForceOrder(items, matrix, startLoc), nil
	}
	return nearestNeighborOrder(items, matrix, startLoc), nil
}

func bruteForceOrder(items []model.Item, matrix map[int]map[int]int, startLoc int) []model.Item {
	best := append([]model.Item(nil), items...)
	bestCost := routeCost(best, matrix, startLoc)

	perm := append([]model.Item(nil), items...)
	permute(perm, 0, func(candidate []model.Item) {
		cost := routeCost(candidate, matrix, startLoc)
		if cost < bestCost {
			bestCost = cost
			best = append([]model.Item(nil), candidate...)
		}
	})
	return best
}

func permute(items []model.Item, k int, visit func([]model.Item)) {
	if k == len(items) {
		visit(items)
		return
	}
	for i := k; i < len(items); i++ {
		items[k], items[i] = items[i], items[k]
		permute(items, k+1, visit)
		items[k], items[i] = items[i], items[k]
	}
}

func routeCost(items []model.Item, matrix map[int]map[int]int, startLoc int) int {
	total := 0
	cur := startLoc
	for _, it := range items {
		total += travelBetween(matrix, cur, it.LocationIndex)
		cur = it.LocationIndex
	}
	return total
}

func nearestNeighborOrder(items []model.Item, matrix map[int]map[int]int, startLoc int) []model.Item {
	remaining := append([]model.Item(nil), items...)
	order := make([]model.Item, 0, len(items))
	cur := startLoc

	for len(remaining) > 0 {
		bestIdx := 0
		bestCost := travelBetween(matrix, cur, remaining[0].LocationIndex)
		for i := 1; i < len(remaining); i++ {
			cost := travelBetween(matrix, cur, remaining[i].LocationIndex)
			if cost < bestCost {
				bestCost, bestIdx = cost, i
			}
		}
		order = append(order, remaining[bestIdx])
		cur = remaining[bestIdx].LocationIndex
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return order
}

// placeSequence lays fixed items at their anchors and slots the ordered
// dynamic items into the remaining time, dropping anything that would
// overflow the technician's window or collide with a break or an earlier
// fixed stop.
func placeSequence(epoch time.Time, tech model.Technician, matrix map[int]map[int]int, breaks [][2]int, fixed []model.Item, dynamic []model.Item, latestEnd int) ([]placedStop, []string, error) {
	var placed []placedStop
	var unassigned []string

	cursor, err := relSeconds(epoch, tech.EarliestStartTimeISO)
	if err != nil {
		return nil, nil, err
	}
	cursorLoc := tech.StartLocationIndex

	fixedRel := make([]struct {
		item model.Item
		t    int
	}, 0, len(fixed))
	for _, it := range fixed {
		t, err := relSeconds(epoch, it.FixedTimeISO)
		if err != nil {
			return nil, nil, err
		}
		fixedRel = append(fixedRel, struct {
			item model.Item
			t    int
		}{it, t})
	}

	place := func(it model.Item, start int) bool {
		end := start + it.DurationSeconds
		if end > latestEnd || overlapsBreak(start, end, breaks) {
			return false
		}
		placed = append(placed, placedStop{
			itemID:   it.ID,
			location: it.LocationIndex,
			arrival:  cursor + travelBetween(matrix, cursorLoc, it.LocationIndex),
			start:    start,
			end:      end,
		})
		cursor, cursorLoc = end, it.LocationIndex
		return true
	}

	dynIdx := 0
	for _, f := range fixedRel {
		for dynIdx < len(dynamic) {
			arrival := cursor + travelBetween(matrix, cursorLoc, dynamic[dynIdx].LocationIndex)
			if arrival+dynamic[dynIdx].DurationSeconds > f.t {
				break
			}
			if !place(dynamic[dynIdx], arrival) {
				unassigned = append(unassigned, dynamic[dynIdx].ID)
			}
			dynIdx++
		}
		arrival := cursor + travelBetween(matrix, cursorLoc, f.item.LocationIndex)
		if arrival > f.t || overlapsBreak(f.t, f.t+f.item.DurationSeconds, breaks) || f.t+f.item.DurationSeconds > latestEnd {
			unassigned = append(unassigned, f.item.ID)
			continue
		}
		placed = append(placed, placedStop{
			itemID:   f.item.ID,
			location: f.item.LocationIndex,
			arrival:  arrival,
			start:    f.t,
			end:      f.t + f.item.DurationSeconds,
		})
		cursor, cursorLoc = f.t+f.item.DurationSeconds, f.item.LocationIndex
	}
	for ; dynIdx < len(dynamic); dynIdx++ {
		arrival := cursor + travelBetween(matrix, cursorLoc, dynamic[dynIdx].LocationIndex)
		if !place(dynamic[dynIdx], arrival) {
			unassigned = append(unassigned, dynamic[dynIdx].ID)
		}
	}

	return placed, unassigned, nil
}

func buildRoute(technicianID string, epoch time.Time, placed []placedStop) model.Route {
	stops := make([]model.Stop, 0, len(placed))
	travelTotal := 0
	for i, s := range placed {
		stops = append(stops, model.Stop{
			ItemID:         s.itemID,
			ArrivalTimeISO: toISOAbs(epoch, s.arrival),
			StartTimeISO:   toISOAbs(epoch, s.start),
			EndTimeISO:     toISOAbs(epoch, s.end),
		})
		if i > 0 {
			travelTotal += s.arrival - placed[i-1].end
		}
	}
	totalDuration := 0
	if len(placed) > 0 {
		totalDuration = placed[len(placed)-1].end - placed[0].arrival
	}
	return model.Route{
		TechnicianID:           technicianID,
		Stops:                  stops,
		TotalTravelTimeSeconds: travelTotal,
		TotalDurationSeconds:   totalDuration,
	}
}
