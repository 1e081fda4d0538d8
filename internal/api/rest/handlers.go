package rest

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/fortuna/vetoscope/internal/platform/logging"
	"github.com/fortuna/vetoscope/internal/runs"
	"github.com/fortuna/vetoscope/internal/session"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	maxBodyBytes     = 1 << 16
)

// RunService is the subset of runs.Manager the API depends on.
type RunService interface {
	Start(ctx context.Context, opts session.Options) (*runs.Run, error)
	Get(ctx context.Context, id string) (*runs.Run, error)
	Cancel(id string) error
	List() []*runs.Run
	History(ctx context.Context, limit int) ([]*runs.Run, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	runs      RunService
	checks    map[string]HealthChecker
	validator *validator.Validate
	logger    *logging.Logger
}

// NewHandler creates a new handler. checks are probed by /health.
func NewHandler(svc RunService, checks map[string]HealthChecker, logger *logging.Logger) *Handler {
	return &Handler{
		runs:      svc,
		checks:    checks,
		validator: validator.New(),
		logger:    logging.OrDefault(logger),
	}
}

type createRunRequest struct {
	TeamURL    string `json:"teamUrl" validate:"required"`
	EventURL   string `json:"eventUrl"`
	FromDate   string `json:"fromDate" validate:"omitempty,datetime=2006-01-02"`
	ToDate     string `json:"toDate" validate:"omitempty,datetime=2006-01-02"`
	MaxMatches int    `json:"maxMatches" validate:"gte=0,lte=1000"`
}

type runsResponse struct {
	Runs []*runs.Run `json:"runs"`
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string, len(h.checks))
	status, code := "healthy", http.StatusOK
	for name, check := range h.checks {
		if err := check.HealthCheck(r.Context()); err != nil {
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	respondJSON(w, code, map[string]any{
		"status":       status,
		"service":      "vetoscope",
		"dependencies": deps,
	})
}

// CreateRun handles POST /api/v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	dec := sonic.ConfigDefault.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}
	if err := h.validator.StructCtx(r.Context(), req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Invalid request body", err)
		return
	}

	from, to, err := session.ParseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := session.Options{
		TeamURL:        strings.TrimSpace(req.TeamURL),
		EventFilterURL: strings.TrimSpace(req.EventURL),
		FromDate:       from,
		ToDate:         to,
		MaxMatches:     req.MaxMatches,
	}
	// Team and event URLs may be relative vlr.gg paths.
	if err := opts.Validate(); err != nil {
		writeError(w, err)
		return
	}

	run, err := h.runs.Start(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	respondJSON(w, http.StatusAccepted, run)
}

// ListRuns handles GET /api/v1/runs. ?source=history reads stored runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") != "history" {
		respondJSON(w, http.StatusOK, runsResponse{Runs: h.runs.List()})
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 || l > maxListLimit {
			respondError(w, http.StatusBadRequest, "validation", "Invalid limit", err)
			return
		}
		limit = l
	}

	history, err := h.runs.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("list run history failed", "error", err)
		writeError(w, err)
		return
	}
	if history == nil {
		history = []*runs.Run{}
	}
	respondJSON(w, http.StatusOK, runsResponse{Runs: history})
}

// GetRun handles GET /api/v1/runs/{runID}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), mux.Vars(r)["runID"])
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// CancelRun handles DELETE /api/v1/runs/{runID}
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["runID"]
	if err := h.runs.Cancel(id); err != nil {
		writeError(w, err)
		return
	}

	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, run)
}

// GetRunResult handles GET /api/v1/runs/{runID}/result
func (h *Handler) GetRunResult(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), mux.Vars(r)["runID"])
	if err != nil {
		writeError(w, err)
		return
	}

	switch run.Status {
	case runs.StatusCompleted:
		if run.Result == nil {
			respondError(w, http.StatusNotFound, "not_found", "Run has no stored result", nil)
			return
		}
		respondJSON(w, http.StatusOK, run.Result)
	case runs.StatusFailed, runs.StatusCancelled:
		respondError(w, runStatusCode(run.ErrorKind), run.ErrorKind, "Run did not complete",
			errors.New(run.Error))
	default:
		respondError(w, http.StatusConflict, "pending", "Run is "+string(run.Status), nil)
	}
}
