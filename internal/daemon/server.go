package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/majorcontext/tabclose/internal/log"
	"github.com/majorcontext/tabclose/internal/tabs"
	"github.com/majorcontext/tabclose/internal/timer"
)

// Coordinator is the part of timer.Coordinator the API exposes.
type Coordinator interface {
	Start(ctx context.Context, mode timer.Mode, d time.Duration) (timer.Record, error)
	Reset(ctx context.Context) error
	GetState(ctx context.Context) (timer.State, error)
}

// TabLister lists and opens browser tabs.
type TabLister interface {
	List(ctx context.Context) ([]tabs.Tab, error)
	Open(ctx context.Context, url string) (tabs.Tab, error)
}

// Server is the daemon's HTTP API server over a Unix socket.
type Server struct {
	sockPath   string
	coord      Coordinator
	tabs       TabLister
	hub        *Hub
	server     *http.Server
	listener   net.Listener
	startedAt  time.Time
	onShutdown func() // called when shutdown is requested via API
}

// NewServer creates a daemon API server that will listen on the given Unix
// socket path. tl may be nil, in which case the tab endpoints report 503.
func NewServer(sockPath string, coord Coordinator, tl TabLister, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{
		sockPath:  sockPath,
		coord:     coord,
		tabs:      tl,
		hub:       hub,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/timer", s.handleStart)
	mux.HandleFunc("DELETE /v1/timer", s.handleReset)
	mux.HandleFunc("GET /v1/timer", s.handleState)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/tabs", s.handleListTabs)
	mux.HandleFunc("POST /v1/tabs", s.handleOpenTab)
	mux.HandleFunc("POST /v1/shutdown", s.handleShutdown)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the event hub the server streams from.
func (s *Server) Hub() *Hub { return s.hub }

// SetOnShutdown sets a callback that is invoked when shutdown is requested via the API.
func (s *Server) SetOnShutdown(fn func()) { s.onShutdown = fn }

// Start begins listening on the Unix socket. Any stale socket file is removed first.
func (s *Server) Start() error {
	os.Remove(s.sockPath)
	listener, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return err
	}
	s.listener = listener
	go func() { _ = s.server.Serve(listener) }()
	return nil
}

// Stop gracefully shuts down the server and removes the socket file.
// Open event streams end when ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		err = s.server.Close()
	}
	os.Remove(s.sockPath)
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		PID:       os.Getpid(),
		StartedAt: s.startedAt.Format(time.RFC3339),
	}
	if st, err := s.coord.GetState(r.Context()); err == nil {
		resp.TimerActive = st.Active
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, StartResponse{Error: "invalid JSON"})
		return
	}
	mode, err := timer.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, StartResponse{Error: err.Error()})
		return
	}

	if _, err := s.coord.Start(r.Context(), mode, req.Duration()); err != nil {
		if errors.Is(err, tabs.ErrNoActiveTab) {
			writeJSON(w, http.StatusConflict, StartResponse{Error: "No active tab found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, StartResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, StartResponse{Success: true})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Reset(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, StartResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, StartResponse{Success: true})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := s.coord.GetState(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(st))
}

// handleEvents streams timer events as server-sent events until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	log.Debug("watcher connected", "watchers", s.hub.Subscribers())

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	if s.tabs == nil {
		http.Error(w, `{"error":"no browser attached"}`, http.StatusServiceUnavailable)
		return
	}
	list, err := s.tabs.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if list == nil {
		list = []tabs.Tab{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleOpenTab(w http.ResponseWriter, r *http.Request) {
	if s.tabs == nil {
		http.Error(w, `{"error":"no browser attached"}`, http.StatusServiceUnavailable)
		return
	}
	var req OpenTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, `{"error":"url is required"}`, http.StatusBadRequest)
		return
	}
	tab, err := s.tabs.Open(r.Context(), req.URL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, tab)
}

// handleShutdown initiates a graceful server shutdown.
func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})

	if s.onShutdown != nil {
		go s.onShutdown()
	}
}

// writeJSON marshals v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
