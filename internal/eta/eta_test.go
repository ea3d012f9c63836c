package eta

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/fieldsched/internal/availability"
	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/travel"
)

func TestEarliestStart_FitsInEmptyDay(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	jobLoc := domain.Address{ID: uuid.New()}
	techID := uuid.New()

	locationIndex := map[uuid.UUID]int{home.ID: 0, jobLoc.ID: 1}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {1: 600}, 1: {0: 600}})

	avail := availability.NewStatic()
	dayStart := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	avail.SetWindow(techID, domain.DailyAvailability{DayNumber: 1, Start: dayStart, End: dayStart.Add(8 * time.Hour), TotalDuration: 8 * time.Hour})

	tech := &domain.Technician{ID: techID, HomeLocation: home, CurrentLocation: home, Schedule: map[int][]domain.PlacedStop{}}
	unit := &domain.SchedulableUnit{Location: jobLoc, Duration: time.Hour}

	est := New(matrix, avail)
	start, ok, err := est.EarliestStart(context.Background(), tech, unit, locationIndex)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dayStart.Add(10*time.Minute), start)
}

func TestEarliestStart_RespectsUnitEarliestStartTime(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	jobLoc := domain.Address{ID: uuid.New()}
	techID := uuid.New()

	locationIndex := map[uuid.UUID]int{home.ID: 0, jobLoc.ID: 1}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {1: 0}, 1: {0: 0}})

	avail := availability.NewStatic()
	dayStart := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	avail.SetWindow(techID, domain.DailyAvailability{DayNumber: 1, Start: dayStart, End: dayStart.Add(8 * time.Hour), TotalDuration: 8 * time.Hour})

	earliest := dayStart.Add(3 * time.Hour)
	tech := &domain.Technician{ID: techID, HomeLocation: home, CurrentLocation: home, Schedule: map[int][]domain.PlacedStop{}}
	unit := &domain.SchedulableUnit{Location: jobLoc, Duration: time.Hour, EarliestStartTime: &earliest}

	est := New(matrix, avail)
	start, ok, err := est.EarliestStart(context.Background(), tech, unit, locationIndex)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, earliest, start)
}

func TestEarliestStart_NoFeasibleDayWithinHorizon(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	jobLoc := domain.Address{ID: uuid.New()}
	techID := uuid.New()

	locationIndex := map[uuid.UUID]int{home.ID: 0, jobLoc.ID: 1}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {1: 0}, 1: {0: 0}})

	avail := availability.NewStatic() // no windows defined at all
	tech := &domain.Technician{ID: techID, HomeLocation: home, CurrentLocation: home, Schedule: map[int][]domain.PlacedStop{}}
	unit := &domain.SchedulableUnit{Location: jobLoc, Duration: time.Hour}

	est := New(matrix, avail)
	est.MaxPlanningDays = 3
	_, ok, err := est.EarliestStart(context.Background(), tech, unit, locationIndex)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEarliestStart_RejectsUnitLargerThanAnyDayCapacity(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	techID := uuid.New()
	locationIndex := map[uuid.UUID]int{home.ID: 0}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {0: 0}})

	avail := availability.NewStatic()
	dayStart := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	avail.SetWindow(techID, domain.DailyAvailability{DayNumber: 1, Start: dayStart, End: dayStart.Add(2 * time.Hour), TotalDuration: 2 * time.Hour})

	tech := &domain.Technician{ID: techID, HomeLocation: home, CurrentLocation: home, Schedule: map[int][]domain.PlacedStop{}}
	unit := &domain.SchedulableUnit{Location: home, Duration: 4 * time.Hour}

	est := New(matrix, avail)
	est.MaxPlanningDays = 1
	_, ok, err := est.EarliestStart(context.Background(), tech, unit, locationIndex)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAvailableWindows_SplitsAroundExistingStops(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	stopLoc := domain.Address{ID: uuid.New()}
	techID := uuid.New()
	dayStart := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	dayWindow := domain.DailyAvailability{DayNumber: 1, Start: dayStart, End: dayStart.Add(8 * time.Hour), TotalDuration: 8 * time.Hour}

	stop := domain.PlacedStop{
		Unit:  &domain.SchedulableUnit{Location: stopLoc},
		Start: dayStart.Add(2 * time.Hour),
		End:   dayStart.Add(3 * time.Hour),
	}
	tech := &domain.Technician{ID: techID, HomeLocation: home, CurrentLocation: home, Schedule: map[int][]domain.PlacedStop{1: {stop}}}

	est := New(travel.NewMatrix(nil), availability.NewStatic())
	windows := est.availableWindows(tech, 1, dayWindow)

	require.Len(t, windows, 2)
	assert.Equal(t, dayStart, windows[0].start)
	assert.Equal(t, dayStart.Add(2*time.Hour), windows[0].end)
	assert.Equal(t, dayStart.Add(3*time.Hour), windows[1].start)
	assert.Equal(t, dayStart.Add(8*time.Hour), windows[1].end)
}
