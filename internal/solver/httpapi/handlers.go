// Package httpapi exposes the VRP solver as a stateless HTTP service:
// POST /optimize-schedule and GET /health, following the
// RegisterRoutes(router *mux.Router) / respondWithJSON / respondWithError
// convention used throughout this codebase's handler layer.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pageza/fieldsched/internal/config"
	"github.com/pageza/fieldsched/internal/schederr"
	"github.com/pageza/fieldsched/internal/solver/engine"
	"github.com/pageza/fieldsched/internal/solver/model"
)

// Handler serves the solver's HTTP surface.
type Handler struct {
	logger *log.Logger
	cfg    config.SolverConfig
}

// NewHandler builds a Handler. A nil logger falls back to log.Default().
// cfg supplies the search tunables (wall-clock limit, base penalty,
// infeasible-cost sentinel, search-log toggle) that get threaded into every
// engine.Build call, so the solver binary's configuration actually reaches
// the routing model instead of a package-constant stand-in.
func NewHandler(logger *log.Logger, cfg config.SolverConfig) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{logger: logger, cfg: cfg}
}

// RegisterRoutes wires this handler's endpoints onto router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/optimize-schedule", h.OptimizeSchedule).Methods(http.MethodPost)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

// OptimizeSchedule handles POST /optimize-schedule: it parses the request,
// builds a routing Problem, runs the search, and returns the resulting
// routes. Per the solver's error-handling design, no error here escapes as
// a 5xx except for a framework-level failure; malformed input gets a 400,
// and any other failure during solving is reported as status=error with
// every input item unassigned rather than an HTTP error.
func (h *Handler) OptimizeSchedule(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Printf("error: optimize-schedule: recovered panic: %v", rec)
			respondWithJSON(w, http.StatusOK, errorResponse(req))
		}
	}()

	problem, err := engine.Build(req, engine.Config{
		BasePenalty:      h.cfg.BasePenalty,
		InfeasibleCost:   h.cfg.InfeasibleCost,
		WallClockLimit:   h.cfg.WallClockLimit,
		SearchLogEnabled: h.cfg.SearchLogEnabled,
		Logger:           h.logger,
	})
	if err != nil {
		if schederr.KindOf(err) == schederr.KindInputValidation {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Printf("error: optimize-schedule: %v", err)
		respondWithJSON(w, http.StatusOK, errorResponse(req))
		return
	}

	resp := problem.Solve()
	respondWithJSON(w, http.StatusOK, resp)
}

func errorResponse(req model.Request) model.Response {
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ID)
	}
	return model.Response{
		Status:            model.StatusError,
		UnassignedItemIDs: ids,
		Message:           "internal error building routing model",
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, model.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
