// Package admin exposes the scheduler and monitor over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"edgesync/internal/netmon"
	"edgesync/internal/scheduler"
)

// Syncer is the part of the scheduler the admin API drives.
type Syncer interface {
	Submit(scheduler.Event) error
	PerformanceStats() scheduler.Stats
	Weights() scheduler.Weights
	ReportFeedback(successRate float64)
	NetworkQualityScore() float64
}

// Conditions is the part of the monitor the admin API reads.
type Conditions interface {
	Latest() (netmon.Condition, bool)
	AverageConditions(window time.Duration) (netmon.Condition, bool)
}

const defaultWindow = 5 * time.Minute

type Server struct {
	Sync     Syncer
	Monitor  Conditions
	Interval time.Duration

	log      *slog.Logger
	upgrader websocket.Upgrader
	srv      *http.Server

	quit      chan struct{}
	closeOnce sync.Once
}

func NewServer(syncer Syncer, monitor Conditions, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Sync:     syncer,
		Monitor:  monitor,
		Interval: time.Second,
		log:      log.With("component", "admin"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// Close ends every open stats stream. Hijacked websocket connections are
// not tracked by http.Server.Shutdown.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /quality", s.handleQuality)
	mux.HandleFunc("GET /conditions", s.handleConditions)
	mux.HandleFunc("GET /weights", s.handleWeights)
	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("POST /feedback", s.handleFeedback)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("admin listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sync.PerformanceStats())
}

type qualityResponse struct {
	Score  float64           `json:"score"`
	Latest *netmon.Condition `json:"latest,omitempty"`
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	resp := qualityResponse{Score: s.Sync.NetworkQualityScore()}
	if c, ok := s.Monitor.Latest(); ok {
		resp.Latest = &c
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConditions(w http.ResponseWriter, r *http.Request) {
	window := defaultWindow
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "invalid window", http.StatusBadRequest)
			return
		}
		window = d
	}
	c, ok := s.Monitor.AverageConditions(window)
	if !ok {
		http.Error(w, "no samples in window", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sync.Weights())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var ev scheduler.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Sync.Submit(ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"data_id": ev.DataID})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb scheduler.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if fb.SuccessRate < 0 || fb.SuccessRate > 1 {
		http.Error(w, "success_rate must be within [0,1]", http.StatusBadRequest)
		return
	}
	s.Sync.ReportFeedback(fb.SuccessRate)
	writeJSON(w, http.StatusOK, s.Sync.Weights())
}

// handleWS streams stats until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}
	defer c.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		if err := c.WriteJSON(s.Sync.PerformanceStats()); err != nil {
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			return
		case <-s.quit:
			return
		case <-r.Context().Done():
			return
		}
	}
}
