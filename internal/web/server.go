// Package web provides the HTTP surface of the webhouse daemon: the status
// page, its JSON form, Prometheus metrics, alarm arm/disarm and the
// WebSocket client endpoint.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/webhouse/internal/house"
	"github.com/sweeney/webhouse/internal/logger"
	"github.com/sweeney/webhouse/internal/status"
)

// Facade is the part of the house the alarm endpoints write through.
type Facade interface {
	Set(q house.Quantity, v int) error
}

// Options wires the optional routes.
type Options struct {
	// House enables POST /alarm/arm and /alarm/disarm.
	House Facade

	// WebSocket, if set, is mounted at WebSocketPath.
	WebSocket     http.Handler
	WebSocketPath string
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	house      Facade
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	s := &Server{tracker: tracker, house: opts.House}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.Handle("/metrics", promhttp.HandlerFor(status.NewRegistry(tracker), promhttp.HandlerOpts{}))
	if opts.House != nil {
		mux.HandleFunc("/alarm/arm", s.handleAlarm(1))
		mux.HandleFunc("/alarm/disarm", s.handleAlarm(0))
	}
	if opts.WebSocket != nil && opts.WebSocketPath != "" {
		mux.Handle(opts.WebSocketPath, opts.WebSocket)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		logger.Warnf(r.Context(), "web: render index: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// alarmResponse is the body returned by the arm/disarm endpoints.
type alarmResponse struct {
	AlarmArmed bool   `json:"alarm_armed"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleAlarm(armed int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := s.house.Set(house.AlarmArmed, armed); err != nil {
			logger.Warnf(r.Context(), "web: set alarm armed=%d: %v", armed, err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(alarmResponse{Error: err.Error()})
			return
		}

		logger.InfoKV(r.Context(), "web: alarm updated", "armed", armed == 1, "remote", r.RemoteAddr)
		json.NewEncoder(w).Encode(alarmResponse{AlarmArmed: armed == 1})
	}
}
