// Package travel provides travel-time lookups between location indices.
// The engine never computes travel times itself; it asks a Provider and
// compares the result against Infeasible. Acquisition (routing APIs,
// precomputed matrices) is out of scope for the engine — this package only
// defines the contract and a few concrete backings grounded on that
// contract: a static matrix, a read-through Redis cache, and a
// great-circle (Haversine) estimate.
package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Infeasible is the sentinel returned when no usable travel time exists
// between two locations. The engine never interprets travel times beyond
// comparing against this sentinel.
const Infeasible = -1

// Provider resolves a travel time in whole seconds between two location
// indices. Symmetry is not required: Seconds(a, b) and Seconds(b, a) may
// differ, and both must be checked independently before being trusted.
type Provider interface {
	Seconds(ctx context.Context, from, to int) (int, error)
}

// Matrix is a Provider backed by a dense, preloaded from→to second count.
// A missing or negative entry reads as Infeasible, matching the spec's
// rule that a missing/negative matrix cell is a prohibitive cost rather
// than a zero-cost special case.
type Matrix struct {
	seconds map[int]map[int]int
}

// NewMatrix builds a Matrix provider from a from-index -> to-index -> seconds
// map, exactly the shape the VRP solver's wire format uses for
// travelTimeMatrix.
func NewMatrix(seconds map[int]map[int]int) *Matrix {
	return &Matrix{seconds: seconds}
}

// Seconds implements Provider.
func (m *Matrix) Seconds(_ context.Context, from, to int) (int, error) {
	row, ok := m.seconds[from]
	if !ok {
		return Infeasible, nil
	}
	v, ok := row[to]
	if !ok || v < 0 {
		return Infeasible, nil
	}
	return v, nil
}

// Set records a travel time, overwriting any prior entry. Present so
// callers can build a Matrix incrementally (e.g. restricting a larger
// matrix to the location indices used by one day's solver request).
func (m *Matrix) Set(from, to, seconds int) {
	if m.seconds == nil {
		m.seconds = make(map[int]map[int]int)
	}
	row, ok := m.seconds[from]
	if !ok {
		row = make(map[int]int)
		m.seconds[from] = row
	}
	row[to] = seconds
}

// Restrict returns a new Matrix containing only the rows/columns among the
// given indices, the shape the route & time engine needs when it builds a
// day's solver request from a subset of a technician's known locations.
func (m *Matrix) Restrict(indices []int) *Matrix {
	keep := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		keep[i] = struct{}{}
	}
	out := NewMatrix(nil)
	for from, row := range m.seconds {
		if _, ok := keep[from]; !ok {
			continue
		}
		for to, sec := range row {
			if _, ok := keep[to]; !ok {
				continue
			}
			out.Set(from, to, sec)
		}
	}
	return out
}

// CachedProvider decorates a Provider with a read-through Redis cache keyed
// by the location pair, so repeated day-by-day planning cycles don't
// re-derive the same travel time for technicians that share locations.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedProvider wraps inner with a Redis-backed cache. ttl of zero
// disables expiry (cache entries live until evicted).
func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, client: client, ttl: ttl, prefix: "travel:"}
}

type cachedEntry struct {
	Seconds int `json:"seconds"`
}

func (c *CachedProvider) key(from, to int) string {
	return fmt.Sprintf("%s%d:%d", c.prefix, from, to)
}

// Seconds implements Provider, consulting Redis before falling through to
// the wrapped provider and populating the cache on miss.
func (c *CachedProvider) Seconds(ctx context.Context, from, to int) (int, error) {
	key := c.key(from, to)

	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var entry cachedEntry
		if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr == nil {
			return entry.Seconds, nil
		}
	} else if err != redis.Nil {
		// Redis is unreachable or misbehaving: fall through to the inner
		// provider rather than fail the whole planning cycle over a cache.
	}

	seconds, err := c.inner.Seconds(ctx, from, to)
	if err != nil {
		return Infeasible, err
	}

	encoded, marshalErr := json.Marshal(cachedEntry{Seconds: seconds})
	if marshalErr == nil {
		c.client.Set(ctx, key, encoded, c.ttl)
	}

	return seconds, nil
}

// avgSpeedMph is the flat average travel speed assumed between any two
// addresses, matching the constant used by the original routing module's
// great-circle travel-time estimate.
const avgSpeedMph = 30.0

// HaversineProvider estimates travel time from straight-line distance at a
// flat average speed with a floor, the same shape as the original
// calculate_travel_time helper. It is the default concrete Provider the
// scheduler binary wires up; travel-time acquisition proper (live routing
// APIs, precomputed matrices) remains an external concern per the
// engine's scope.
type HaversineProvider struct {
	locations      map[int]Coordinate
	floorSeconds   int
}

// Coordinate is a plain lat/lng pair, decoupled from domain.Address so
// this package has no dependency on the domain package.
type Coordinate struct {
	Lat float64
	Lng float64
}

// NewHaversineProvider builds a HaversineProvider over a dense index ->
// coordinate map, with the given floor applied to every estimate.
func NewHaversineProvider(locations map[int]Coordinate, floorSeconds int) *HaversineProvider {
	return &HaversineProvider{locations: locations, floorSeconds: floorSeconds}
}

// Seconds implements Provider.
func (h *HaversineProvider) Seconds(_ context.Context, from, to int) (int, error) {
	a, ok := h.locations[from]
	if !ok {
		return Infeasible, nil
	}
	b, ok := h.locations[to]
	if !ok {
		return Infeasible, nil
	}
	if from == to {
		return h.floorSeconds, nil
	}

	miles := haversineMiles(a.Lat, a.Lng, b.Lat, b.Lng)
	seconds := int((miles / avgSpeedMph) * 3600)
	if seconds < h.floorSeconds {
		seconds = h.floorSeconds
	}
	return seconds, nil
}

func haversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusMiles = 3958.8
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}
