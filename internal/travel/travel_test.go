package travel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_MissingEntryIsInfeasible(t *testing.T) {
	m := NewMatrix(map[int]map[int]int{0: {1: 120}})

	seconds, err := m.Seconds(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 120, seconds)

	seconds, err = m.Seconds(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, seconds)
}

func TestMatrix_NegativeEntryIsInfeasible(t *testing.T) {
	m := NewMatrix(map[int]map[int]int{0: {1: -5}})
	seconds, err := m.Seconds(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, seconds)
}

func TestMatrix_Restrict(t *testing.T) {
	m := NewMatrix(map[int]map[int]int{
		0: {1: 10, 2: 20},
		1: {0: 10, 2: 30},
		2: {0: 20, 1: 30},
	})

	restricted := m.Restrict([]int{0, 1})
	seconds, err := restricted.Seconds(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, seconds)

	seconds, err = restricted.Seconds(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, seconds)
}

func TestHaversineProvider_FloorApplied(t *testing.T) {
	locs := map[int]Coordinate{
		0: {Lat: 40.0, Lng: -75.0},
		1: {Lat: 40.0001, Lng: -75.0001}, // a few hundred feet away
	}
	p := NewHaversineProvider(locs, 300)

	seconds, err := p.Seconds(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 300, seconds, "short hop should be floored")
}

func TestHaversineProvider_NoFloorWhenZero(t *testing.T) {
	locs := map[int]Coordinate{
		0: {Lat: 40.0, Lng: -75.0},
		1: {Lat: 41.0, Lng: -75.0},
	}
	p := NewHaversineProvider(locs, 0)

	seconds, err := p.Seconds(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Greater(t, seconds, 0)
}

func TestHaversineProvider_UnknownLocationIsInfeasible(t *testing.T) {
	p := NewHaversineProvider(map[int]Coordinate{0: {}}, 0)
	seconds, err := p.Seconds(context.Background(), 0, 99)
	require.NoError(t, err)
	assert.Equal(t, Infeasible, seconds)
}

