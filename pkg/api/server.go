// Package api serves the daemon's usage snapshot over HTTP.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/rmax-ai/claude-usage/pkg/engine"
	"github.com/rmax-ai/claude-usage/pkg/store"
	"github.com/rmax-ai/claude-usage/pkg/usage"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

const defaultHistoryLimit = 50

// Interfaces for dependencies to enable mocking

type PollerInterface interface {
	Latest() usage.Snapshot
	Trigger(ctx context.Context, reason engine.Trigger) bool
	InFlight() bool
}

type HistoryInterface interface {
	ReadRecent(ctx context.Context, limit int) ([]store.Record, error)
}

// Server encapsulates the HTTP API server
type Server struct {
	poller  PollerInterface
	history HistoryInterface
	server  *http.Server
	now     func() time.Time
	baseCtx context.Context
}

// NewServer creates a new API server instance. history may be nil.
func NewServer(poller PollerInterface, history HistoryInterface, addr string) *Server {
	s := &Server{
		poller:  poller,
		history: history,
		now:     time.Now,
		baseCtx: context.Background(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/usage", s.handleUsage)
	mux.HandleFunc("/v1/refresh", s.handleRefresh)
	mux.HandleFunc("/v1/history", s.handleHistory)

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := withLogging(withRecovery(withSecureHeaders(mux)))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetBaseContext sets the context refresh polls run under. Polls outlive
// the request that started them but stop when ctx is cancelled.
func (s *Server) SetBaseContext(ctx context.Context) {
	s.baseCtx = ctx
}

// Start runs the HTTP server (blocking)
func (s *Server) Start() error {
	log.WithField("addr", s.server.Addr).Info("API server starting")
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	log.Info("API server stopping")
	return s.server.Shutdown(ctx)
}

// handleUsage returns the latest snapshot.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	resp := NewUsageResponse(s.poller.Latest(), s.now())
	resp.InFlight = s.poller.InFlight()
	writeJSON(w, r, http.StatusOK, resp)
}

// handleRefresh starts a poll in the background.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	if !s.poller.Trigger(s.baseCtx, engine.TriggerManual) {
		writeJSON(w, r, http.StatusConflict, map[string]string{"error": "poll_in_flight"})
		return
	}
	writeJSON(w, r, http.StatusAccepted, RefreshResponse{Status: "accepted"})
}

// handleHistory returns recent snapshots, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, `{"error":"history_disabled"}`, http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	records, err := s.history.ReadRecent(r.Context(), limit)
	if err != nil {
		log.WithField("trace_id", getTraceID(r.Context())).WithError(err).Error("Failed to read history")
		http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, r, http.StatusOK, HistoryResponse{Records: records})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithField("trace_id", getTraceID(r.Context())).WithError(err).Error("Failed to encode response")
	}
}

// Middleware: Panic Recovery
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(log.Fields{"path": r.URL.Path, "panic": err}).Error("Panic recovered")
				http.Error(w, `{"error":"internal_server_error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		// Wrap writer to capture status code
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"trace_id":    traceID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http_request")
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
