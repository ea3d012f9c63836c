package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEquipmentSet_Superset(t *testing.T) {
	techSet := NewEquipmentSet("compressor", "crane")
	jobSet := NewEquipmentSet("compressor")

	assert.True(t, techSet.Superset(jobSet))
	assert.False(t, jobSet.Superset(techSet))
}

func TestEquipmentSet_SupersetOfEmptyIsAlwaysTrue(t *testing.T) {
	techSet := NewEquipmentSet()
	assert.True(t, techSet.Superset(NewEquipmentSet()))
}

func TestEquipmentSet_Union(t *testing.T) {
	a := NewEquipmentSet("compressor")
	b := NewEquipmentSet("crane")

	union := a.Union(b)
	assert.True(t, union.Superset(a))
	assert.True(t, union.Superset(b))
	assert.Len(t, union, 2)
}

func TestJob_Immutable(t *testing.T) {
	cases := []struct {
		name      string
		job       Job
		immutable bool
	}{
		{"fixed assignment always immutable", Job{FixedAssignment: true, Status: JobStatusPendingReview}, true},
		{"pending review is mutable", Job{Status: JobStatusPendingReview}, false},
		{"assigned is mutable", Job{Status: JobStatusAssigned}, false},
		{"scheduled is immutable", Job{Status: JobStatusScheduled}, true},
		{"unassigned is immutable", Job{Status: JobStatusUnassigned}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.immutable, c.job.Immutable())
		})
	}
}

func TestDailyAvailability_Feasible(t *testing.T) {
	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	assert.True(t, DailyAvailability{Start: start, End: start.Add(4 * time.Hour), TotalDuration: 4 * time.Hour}.Feasible())
	assert.False(t, DailyAvailability{Start: start, End: start, TotalDuration: 0}.Feasible())
	assert.False(t, DailyAvailability{Start: start, End: start.Add(-time.Hour), TotalDuration: time.Hour}.Feasible())
}

func TestTechnician_CanHandle(t *testing.T) {
	tech := &Technician{Equipment: NewEquipmentSet("compressor", "crane")}
	assert.True(t, tech.CanHandle(NewEquipmentSet("compressor")))
	assert.False(t, tech.CanHandle(NewEquipmentSet("forklift")))
}

func TestTechnician_StartLocation(t *testing.T) {
	home := Address{ID: uuid.New()}
	current := Address{ID: uuid.New()}
	tech := &Technician{HomeLocation: home, CurrentLocation: current}

	assert.Equal(t, current, tech.StartLocation(1))
	assert.Equal(t, home, tech.StartLocation(2))
	assert.Equal(t, home, tech.StartLocation(3))
}
