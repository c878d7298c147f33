// Package server exposes the localhost control surface: lifecycle
// commands, runtime configuration, the external-event ingress used by
// the browser agent, and activity queries backed by the index.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/clicktrail/clicktrail/internal/event"
	"github.com/clicktrail/clicktrail/internal/store"
	"github.com/clicktrail/clicktrail/internal/tracker"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr string
}

// Server serves the control API for one Tracker.
type Server struct {
	cfg     Config
	tracker *tracker.Tracker
	store   *store.Store // nil disables /records
	logger  *zap.Logger
	srv     *http.Server
}

// New builds the control server around an assembled tracker.
func New(cfg Config, tr *tracker.Tracker, st *store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		tracker: tr,
		store:   st,
		logger:  logger.Named("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/ext_event", s.handleExtEvent)
	mux.HandleFunc("/records", s.handleRecords)

	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: cors(mux),
	}
	return s
}

// Start begins listening. Blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}
	return s.StartOn(ctx, ln)
}

// StartOn serves on the given listener. For testing.
func (s *Server) StartOn(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("control server listening", zap.String("addr", ln.Addr().String()))
	err := s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// cors answers preflight and marks every response permissive. The
// browser agent posts from arbitrary page origins; the server only
// binds loopback, so origin filtering adds nothing here.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.tracker.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.tracker.Start()
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.tracker.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

type configRequest struct {
	Hz         *float64 `json:"hz"`
	OutputRoot *string  `json:"output_root"`
}

type configResponse struct {
	Hz         float64 `json:"hz"`
	OutputRoot string  `json:"output_root"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	applied, err := s.tracker.Configure(req.Hz, req.OutputRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, configResponse{Hz: applied.Hz, OutputRoot: applied.OutputRoot})
}

type extEventResponse struct {
	OK             bool    `json:"ok"`
	Merged         bool    `json:"merged"`
	ScreenshotPath *string `json:"screenshot_path"`
}

func (s *Server) handleExtEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var ev event.ExternalEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid JSON body"})
		return
	}

	merged, shot := s.tracker.HandleExternal(ev)
	s.logger.Debug("external event",
		zap.Int("x", ev.X), zap.Int("y", ev.Y),
		zap.String("url", ev.PageURL()),
		zap.Bool("merged", merged))

	resp := extEventResponse{OK: true, Merged: merged}
	if shot != "" {
		resp.ScreenshotPath = &shot
	}
	writeJSON(w, http.StatusOK, resp)
}

type recordsResponse struct {
	Records []event.ActivityRecord `json:"records"`
	Count   int                    `json:"count"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "activity index disabled")
		return
	}

	q := store.Query{Since: r.URL.Query().Get("since")}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}
	if src := r.URL.Query().Get("source"); src != "" {
		switch event.Source(src) {
		case event.SourceOS, event.SourceExternal, event.SourceMerged:
			q.Source = event.Source(src)
		default:
			writeError(w, http.StatusBadRequest, "source must be one of os, external, merged")
			return
		}
	}

	recs, err := s.store.Recent(q)
	if err != nil {
		s.logger.Error("records query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if recs == nil {
		recs = []event.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: recs, Count: len(recs)})
}
