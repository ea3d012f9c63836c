package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/fieldsched/internal/domain"
)

func TestStatic_DayWindow_UnknownTechnicianNotOK(t *testing.T) {
	s := NewStatic()
	_, ok, err := s.DayWindow(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatic_DayWindow_InfeasibleWindowNotOK(t *testing.T) {
	s := NewStatic()
	techID := uuid.New()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s.SetWindow(techID, domain.DailyAvailability{DayNumber: 1, Start: start, End: start, TotalDuration: 0})

	_, ok, err := s.DayWindow(context.Background(), techID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatic_DayWindow_ReturnsSetWindow(t *testing.T) {
	s := NewStatic()
	techID := uuid.New()
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	window := domain.DailyAvailability{DayNumber: 1, Start: start, End: start.Add(8 * time.Hour), TotalDuration: 8 * time.Hour}
	s.SetWindow(techID, window)

	got, ok, err := s.DayWindow(context.Background(), techID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, window, got)
}

func TestStatic_Unavailabilities_AccumulatesPerTechnician(t *testing.T) {
	s := NewStatic()
	techA := uuid.New()
	techB := uuid.New()

	s.AddUnavailability(domain.TechnicianUnavailability{TechnicianID: techA, Duration: time.Hour})
	s.AddUnavailability(domain.TechnicianUnavailability{TechnicianID: techA, Duration: 2 * time.Hour})
	s.AddUnavailability(domain.TechnicianUnavailability{TechnicianID: techB, Duration: 3 * time.Hour})

	aList, err := s.Unavailabilities(context.Background(), techA)
	require.NoError(t, err)
	assert.Len(t, aList, 2)

	bList, err := s.Unavailabilities(context.Background(), techB)
	require.NoError(t, err)
	assert.Len(t, bList, 1)
}
