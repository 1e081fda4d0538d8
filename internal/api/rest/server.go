package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fortuna/vetoscope/internal/platform/logging"
)

// Mount adds routes that live outside the versioned API, such as the
// websocket feed.
type Mount interface {
	Register(router *mux.Router)
}

// Server represents the REST API server
type Server struct {
	port    string
	server  *http.Server
	handler *Handler
	router  *mux.Router
}

// NewServer creates a new REST API server
func NewServer(port string, handler *Handler, logger *logging.Logger, mounts ...Mount) *Server {
	router := mux.NewRouter()

	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))
	router.Use(CORSMiddleware)

	router.HandleFunc("/health", handler.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runs", handler.CreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", handler.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runID}", handler.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runID}", handler.CancelRun).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{runID}/result", handler.GetRunResult).Methods(http.MethodGet)
	api.HandleFunc("/runs", preflight).Methods(http.MethodOptions)
	api.HandleFunc("/runs/{runID}", preflight).Methods(http.MethodOptions)

	for _, m := range mounts {
		m.Register(router)
	}

	return &Server{
		port:    port,
		handler: handler,
		router:  router,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the REST API server
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
