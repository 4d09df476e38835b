// Package web provides the HTTP status server for the presenced daemon and
// accepts raw activity events from browsers and other local clients.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/status"
)

// maxEventBytes bounds the body of POST /activity.
const maxEventBytes = 4 << 10

// IngestFunc classifies a raw event and forwards it to the presence engine.
type IngestFunc func(activity.RawEvent) (activity.Type, error)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ingest     IngestFunc
}

// New creates a Server that reads state from the given tracker. If ingest is
// nil, POST /activity is not served.
func New(addr string, tracker *status.Tracker, ingest IngestFunc) *Server {
	s := &Server{tracker: tracker, ingest: ingest}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if ingest != nil {
		mux.HandleFunc("/activity", s.handleActivity)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request handler.
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
	renderHTML(w, snap, s.ingest != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ActivityResponse{Error: "method not allowed"})
		return
	}

	var ev activity.RawEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, ActivityResponse{Error: "invalid event: " + err.Error()})
		return
	}

	t, err := s.ingest(ev)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ActivityResponse{Accepted: true, Type: string(t)})
	case errors.Is(err, activity.ErrFiltered):
		writeJSON(w, http.StatusAccepted, ActivityResponse{Reason: "filtered"})
	default:
		writeJSON(w, http.StatusBadRequest, ActivityResponse{Error: err.Error()})
	}
}
