package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/fieldsched/internal/availability"
	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/eta"
	"github.com/pageza/fieldsched/internal/travel"
)

func setupTechnician(t *testing.T, id uuid.UUID, home domain.Address, equipment domain.EquipmentSet) *domain.Technician {
	t.Helper()
	return &domain.Technician{
		ID:              id,
		HomeLocation:    home,
		CurrentLocation: home,
		Equipment:       equipment,
		Schedule:        map[int][]domain.PlacedStop{},
	}
}

func TestPlan_AssignsEachJobToBestAvailableTechnician(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	jobLoc := domain.Address{ID: uuid.New()}
	fastTech := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	slowTech := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	locationIndex := map[uuid.UUID]int{home.ID: 0, jobLoc.ID: 1}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {1: 60}, 1: {0: 60}})

	avail := availability.NewStatic()
	dayStart := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	avail.SetWindow(fastTech, domain.DailyAvailability{DayNumber: 1, Start: dayStart, End: dayStart.Add(8 * time.Hour), TotalDuration: 8 * time.Hour})
	avail.SetWindow(slowTech, domain.DailyAvailability{DayNumber: 1, Start: dayStart.Add(2 * time.Hour), End: dayStart.Add(10 * time.Hour), TotalDuration: 8 * time.Hour})

	technicians := []*domain.Technician{
		setupTechnician(t, fastTech, home, nil),
		setupTechnician(t, slowTech, home, nil),
	}

	job := &domain.Job{ID: uuid.New(), OrderID: uuid.New(), Location: jobLoc, Duration: time.Hour, Status: domain.JobStatusPendingReview}

	estimator := eta.New(matrix, avail)
	planner := New(estimator, locationIndex, nil)

	outcomes, err := planner.Plan(context.Background(), []*domain.Job{job}, technicians)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	require.NotNil(t, job.AssignedTechnicianID)
	assert.Equal(t, fastTech, *job.AssignedTechnicianID)
	assert.Equal(t, domain.JobStatusAssigned, job.Status)
}

func TestPlan_SkipsTechnicianLackingEquipment(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	jobLoc := domain.Address{ID: uuid.New()}
	equippedTech := uuid.New()
	bareTech := uuid.New()

	locationIndex := map[uuid.UUID]int{home.ID: 0, jobLoc.ID: 1}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {1: 0}, 1: {0: 0}})

	avail := availability.NewStatic()
	dayStart := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	for _, id := range []uuid.UUID{equippedTech, bareTech} {
		avail.SetWindow(id, domain.DailyAvailability{DayNumber: 1, Start: dayStart, End: dayStart.Add(8 * time.Hour), TotalDuration: 8 * time.Hour})
	}

	technicians := []*domain.Technician{
		setupTechnician(t, equippedTech, home, domain.NewEquipmentSet("crane")),
		setupTechnician(t, bareTech, home, nil),
	}

	job := &domain.Job{
		ID: uuid.New(), OrderID: uuid.New(), Location: jobLoc, Duration: time.Hour,
		RequiredEquipment: domain.NewEquipmentSet("crane"), Status: domain.JobStatusPendingReview,
	}

	estimator := eta.New(matrix, avail)
	planner := New(estimator, locationIndex, nil)

	_, err := planner.Plan(context.Background(), []*domain.Job{job}, technicians)
	require.NoError(t, err)

	require.NotNil(t, job.AssignedTechnicianID)
	assert.Equal(t, equippedTech, *job.AssignedTechnicianID)
}

func TestPlan_LeavesJobUnassignedWhenNoTechnicianFits(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	jobLoc := domain.Address{ID: uuid.New()}
	techID := uuid.New()

	locationIndex := map[uuid.UUID]int{home.ID: 0, jobLoc.ID: 1}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {1: 0}, 1: {0: 0}})

	avail := availability.NewStatic() // no windows: nothing is ever feasible
	technicians := []*domain.Technician{setupTechnician(t, techID, home, nil)}

	job := &domain.Job{ID: uuid.New(), OrderID: uuid.New(), Location: jobLoc, Duration: time.Hour, Status: domain.JobStatusPendingReview}

	estimator := eta.New(matrix, avail)
	planner := New(estimator, locationIndex, nil)

	outcomes, err := planner.Plan(context.Background(), []*domain.Job{job}, technicians)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.Nil(t, job.AssignedTechnicianID)
	assert.Contains(t, outcomes[0].Unassigned, job.ID)
}

func TestPlan_SkipsFixedAssignmentJobs(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	techID := uuid.New()
	technicians := []*domain.Technician{setupTechnician(t, techID, home, nil)}

	fixedTechID := uuid.New()
	job := &domain.Job{
		ID: uuid.New(), OrderID: uuid.New(), Location: home, Duration: time.Hour,
		FixedAssignment: true, AssignedTechnicianID: &fixedTechID, Status: domain.JobStatusAssigned,
	}

	estimator := eta.New(travel.NewMatrix(nil), availability.NewStatic())
	planner := New(estimator, map[uuid.UUID]int{home.ID: 0}, nil)

	outcomes, err := planner.Plan(context.Background(), []*domain.Job{job}, technicians)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, fixedTechID, *job.AssignedTechnicianID, "fixed assignment must be left untouched")
}

func TestPlan_SameOrderJobsSharingOneEligibleTechnicianStayTogether(t *testing.T) {
	home := domain.Address{ID: uuid.New()}
	loc := domain.Address{ID: uuid.New()}
	techA := uuid.New()

	locationIndex := map[uuid.UUID]int{home.ID: 0, loc.ID: 1}
	matrix := travel.NewMatrix(map[int]map[int]int{0: {1: 0}, 1: {0: 0}})

	avail := availability.NewStatic()
	dayStart := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	avail.SetWindow(techA, domain.DailyAvailability{DayNumber: 1, Start: dayStart, End: dayStart.Add(8 * time.Hour), TotalDuration: 8 * time.Hour})

	technicians := []*domain.Technician{setupTechnician(t, techA, home, domain.NewEquipmentSet("crane"))}

	orderID := uuid.New()
	jobs := []*domain.Job{
		{ID: uuid.New(), OrderID: orderID, Location: loc, Duration: time.Hour, Status: domain.JobStatusPendingReview},
		{ID: uuid.New(), OrderID: orderID, Location: loc, Duration: time.Hour, RequiredEquipment: domain.NewEquipmentSet("crane"), Status: domain.JobStatusPendingReview},
	}

	estimator := eta.New(matrix, avail)
	planner := New(estimator, locationIndex, nil)

	outcomes, err := planner.Plan(context.Background(), jobs, technicians)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	require.NotNil(t, jobs[0].AssignedTechnicianID)
	require.NotNil(t, jobs[1].AssignedTechnicianID)
	assert.Equal(t, techA, *jobs[0].AssignedTechnicianID)
	assert.Equal(t, techA, *jobs[1].AssignedTechnicianID)
}
