// Command scheduler runs the assignment planner and route & time engine
// as a planning cycle repeated every planningCycleInterval until the
// process is signalled to stop. Each cycle fetches pending jobs and active
// technicians from the snapshot repository, assigns owners, packs each
// technician's multi-day route, and writes assignment/ETA deltas back
// through the same repository.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/pageza/fieldsched/internal/assignment"
	"github.com/pageza/fieldsched/internal/availability"
	"github.com/pageza/fieldsched/internal/config"
	"github.com/pageza/fieldsched/internal/domain"
	"github.com/pageza/fieldsched/internal/eta"
	"github.com/pageza/fieldsched/internal/repository"
	"github.com/pageza/fieldsched/internal/routeengine"
	"github.com/pageza/fieldsched/internal/solverclient"
	"github.com/pageza/fieldsched/internal/travel"
)

// planningCycleInterval is how often the scheduler re-runs the assignment
// planner and route & time engine against the current snapshot tables.
const planningCycleInterval = 5 * time.Minute

func main() {
	logger := log.New(os.Stdout, "[scheduler] ", log.LstdFlags)

	cfg, err := config.LoadSchedulerConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := repository.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database error: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("redis url error: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)

	snapshot := repository.NewSnapshotRepository(db)
	availabilityProvider := availability.NewDBProvider(db.DB)

	status := &cycleStatus{}

	router := mux.NewRouter()
	router.HandleFunc("/health", status.handleHealth).Methods(http.MethodGet)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		runLoop(stop, logger, func(ctx context.Context) error {
			return runPlanningCycle(ctx, logger, cfg, snapshot, availabilityProvider, redisClient)
		}, status)
	}()

	go func() {
		logger.Printf("listening on %s (environment=%s)", server.Addr, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("shutting down")
	close(stop)
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("graceful shutdown failed: %v", err)
	}
	logger.Println("stopped")
}

// cycleStatus tracks the outcome of the most recent planning cycle for the
// /health endpoint, the same way other long-running workers in this
// codebase expose last-run status rather than only process liveness.
type cycleStatus struct {
	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
}

func (s *cycleStatus) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Now()
	s.lastErr = err
}

func (s *cycleStatus) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	lastRun, lastErr := s.lastRun, s.lastErr
	s.mu.Unlock()

	if lastErr != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"error","lastRun":%q,"error":%q}`, lastRun.Format(time.RFC3339), lastErr.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","lastRun":%q}`, lastRun.Format(time.RFC3339))
}

// runLoop runs fn immediately, then every planningCycleInterval, until stop
// is closed.
func runLoop(stop <-chan struct{}, logger *log.Logger, fn func(context.Context) error, status *cycleStatus) {
	ticker := time.NewTicker(planningCycleInterval)
	defer ticker.Stop()

	runOnce := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		err := fn(ctx)
		status.record(err)
		if err != nil {
			logger.Printf("error: planning cycle failed: %v", err)
			return
		}
		logger.Println("planning cycle complete")
	}

	runOnce()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func runPlanningCycle(
	ctx context.Context,
	logger *log.Logger,
	cfg *config.SchedulerConfig,
	snapshot *repository.SnapshotRepository,
	availabilityProvider availability.Provider,
	redisClient *redis.Client,
) error {
	technicians, err := snapshot.FetchActiveTechnicians(ctx)
	if err != nil {
		return err
	}
	pendingJobs, err := snapshot.FetchPendingJobs(ctx)
	if err != nil {
		return err
	}

	locationIndex, coordinates := indexLocations(technicians, pendingJobs)
	haversine := travel.NewHaversineProvider(coordinates, 0)
	travelProvider := travel.NewCachedProvider(haversine, redisClient, 24*time.Hour)

	estimator := eta.New(travelProvider, availabilityProvider)
	estimator.MaxPlanningDays = cfg.PlanningHorizonDays

	planner := assignment.New(estimator, locationIndex, logger)
	outcomes, err := planner.Plan(ctx, pendingJobs, technicians)
	if err != nil {
		return err
	}
	for _, outcome := range outcomes {
		logger.Printf("order %s: combined=%v unassigned=%d", outcome.OrderID, outcome.Combined, len(outcome.Unassigned))
	}

	if err := persistAssignments(ctx, snapshot, pendingJobs); err != nil {
		return err
	}

	solver := solverclient.New(cfg.SolverBaseURL, cfg.SolverRequestsPerSecond, cfg.SolverMaxRetries, cfg.SolverTimeout)
	fallback := routeengine.NewFallbackSolver()
	client := solverclient.Fallback(solver, fallback)

	engine := routeengine.New(travelProvider, availabilityProvider, client, logger)
	engine.MaxPlanningDays = cfg.PlanningHorizonDays
	engine.LocationIndex = locationIndex

	for _, tech := range technicians {
		assignedJobs, err := snapshot.FetchAssignedJobs(ctx, tech.ID)
		if err != nil {
			logger.Printf("error: fetch assigned jobs for %s: %v", tech.ID, err)
			continue
		}
		unscheduled, err := engine.PlanTechnician(ctx, tech, assignedJobs)
		if err != nil {
			logger.Printf("error: plan technician %s: %v", tech.ID, err)
			continue
		}
		if len(unscheduled) > 0 {
			logger.Printf("warn: technician %s has %d units unscheduled within horizon", tech.ID, len(unscheduled))
		}
		if err := persistETAs(ctx, snapshot, assignedJobs); err != nil {
			logger.Printf("error: persist etas for %s: %v", tech.ID, err)
		}
	}

	return nil
}

// indexLocations assigns every distinct address a dense index for the
// solver's wire format and the travel providers that key off it, returning
// both the address-id -> index map the engine packages expect and the
// index -> coordinate map the Haversine estimator reads from.
func indexLocations(technicians []*domain.Technician, jobs []*domain.Job) (map[uuid.UUID]int, map[int]travel.Coordinate) {
	locationIndex := make(map[uuid.UUID]int)
	coordinates := make(map[int]travel.Coordinate)

	add := func(addr domain.Address) {
		if _, ok := locationIndex[addr.ID]; ok {
			return
		}
		idx := len(locationIndex)
		locationIndex[addr.ID] = idx
		coordinates[idx] = travel.Coordinate{Lat: addr.Lat, Lng: addr.Lng}
	}

	for _, t := range technicians {
		add(t.HomeLocation)
		add(t.CurrentLocation)
	}
	for _, j := range jobs {
		add(j.Location)
	}

	return locationIndex, coordinates
}

func persistAssignments(ctx context.Context, snapshot *repository.SnapshotRepository, jobs []*domain.Job) error {
	for _, j := range jobs {
		if j.AssignedTechnicianID == nil {
			continue
		}
		if err := snapshot.UpdateJobAssignment(ctx, j.ID, j.AssignedTechnicianID, j.Status); err != nil {
			return err
		}
	}
	return nil
}

func persistETAs(ctx context.Context, snapshot *repository.SnapshotRepository, jobs []*domain.Job) error {
	updates := make([]repository.JobETAUpdate, 0, len(jobs))
	for _, j := range jobs {
		if j.EstimatedSched == nil || j.EstimatedSchedEnd == nil {
			continue
		}
		updates = append(updates, repository.JobETAUpdate{
			JobID:             j.ID,
			EstimatedSched:    *j.EstimatedSched,
			EstimatedSchedEnd: *j.EstimatedSchedEnd,
			CustomerEtaStart:  *j.CustomerEtaStart,
			CustomerEtaEnd:    *j.CustomerEtaEnd,
		})
	}
	return snapshot.UpdateJobETAs(ctx, updates)
}
