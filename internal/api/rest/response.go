package rest

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/vetoscope/internal/runs"
	"github.com/fortuna/vetoscope/internal/session"
)

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, reason, message string, err error) {
	resp := errorResponse{Error: message, Reason: reason, Status: status}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

type mappedError struct {
	status  int
	reason  string
	message string
}

func mapError(err error) mappedError {
	switch {
	case errors.Is(err, runs.ErrNotFound):
		return mappedError{http.StatusNotFound, "not_found", "Run not found"}
	case errors.Is(err, runs.ErrFinished):
		return mappedError{http.StatusConflict, "finished", "Run already finished"}
	case errors.Is(err, runs.ErrQueueFull), errors.Is(err, runs.ErrClosed):
		return mappedError{http.StatusServiceUnavailable, "unavailable", "Run queue unavailable"}
	case errors.Is(err, session.ErrValidation):
		return mappedError{http.StatusBadRequest, "validation", "Invalid run options"}
	default:
		return mappedError{http.StatusInternalServerError, "internal", "Internal server error"}
	}
}

// runStatusCode maps the outcome of a finished run to the status code
// used when its result is requested.
func runStatusCode(kind string) int {
	switch kind {
	case "validation":
		return http.StatusBadRequest
	case "fetch":
		return http.StatusBadGateway
	case "extraction", "no_data":
		return http.StatusUnprocessableEntity
	case "cancelled":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	m := mapError(err)
	respondError(w, m.status, m.reason, m.message, err)
}
