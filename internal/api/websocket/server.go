package websocket

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/fortuna/vetoscope/internal/platform/logging"
)

// Server exposes the hub over HTTP.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewServer creates a websocket endpoint backed by hub. An empty origin
// list accepts any origin.
func NewServer(hub *Hub, allowedOrigins []string, logger *logging.Logger) *Server {
	s := &Server{
		hub:    hub,
		logger: logging.OrDefault(logger).With("component", "ws"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

// Register mounts the websocket routes on router.
func (s *Server) Register(router *mux.Router) {
	router.HandleFunc("/ws/runs", s.HandleRuns).Methods(http.MethodGet)
	router.HandleFunc("/ws/health", s.HandleHealth).Methods(http.MethodGet)
}

// HandleRuns upgrades the connection and subscribes it to run events.
func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !s.hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","clients":%d}`+"\n", s.hub.ClientCount())
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
