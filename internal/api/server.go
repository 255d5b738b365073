package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/ktime/internal/gate"
	"github.com/goodtune/ktime/internal/policy"
	"github.com/goodtune/ktime/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

// Server is the local HTTP API a UI process polls. It also owns the
// unlock flag: a successful unlock holds until the next session change.
type Server struct {
	config   Config
	ledger   *usage.Ledger
	policy   *policy.Policy
	gate     *gate.Gate
	router   *mux.Router
	server   *http.Server
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger

	mu       sync.Mutex
	unlocked bool
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// NewServer creates a new API server.
func NewServer(cfg Config, ledger *usage.Ledger, pol *policy.Policy, g *gate.Gate, logger zerolog.Logger) *Server {
	s := &Server{
		config: cfg,
		ledger: ledger,
		policy: pol,
		gate:   g,
		router: mux.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(LoggingMiddleware(s.logger))

	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
		// Preflight requests must match a route for middleware to run
		s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	s.router.HandleFunc("/health", byMethod(methodHandlers{
		http.MethodGet: s.handleHealth,
	}))

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Each path is registered once so other methods get 405, not 404

	// Sessions
	v1.HandleFunc("/session/start", byMethod(methodHandlers{
		http.MethodPost: s.handleSessionStart,
	}))
	v1.HandleFunc("/session/end", byMethod(methodHandlers{
		http.MethodPost: s.handleSessionEnd,
	}))

	// Usage
	v1.HandleFunc("/usage", byMethod(methodHandlers{
		http.MethodGet:    s.handleUsage,
		http.MethodDelete: s.handleClearUsage,
	}))
	v1.HandleFunc("/usage/history", byMethod(methodHandlers{
		http.MethodGet: s.handleUsageHistory,
	}))

	// Settings
	v1.HandleFunc("/settings", byMethod(methodHandlers{
		http.MethodGet:   s.handleGetSettings,
		http.MethodPatch: s.handleUpdateSettings,
	}))

	// Gate
	v1.HandleFunc("/status", byMethod(methodHandlers{
		http.MethodGet: s.handleStatus,
	}))
	v1.HandleFunc("/unlock", byMethod(methodHandlers{
		http.MethodPost: s.handleUnlock,
	}))
}

// methodHandlers maps an HTTP method to the handler serving it on one path.
type methodHandlers map[string]http.HandlerFunc

// byMethod dispatches on the request method and answers 405 with an Allow
// header for any method not in handlers.
func byMethod(handlers methodHandlers) http.HandlerFunc {
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.Method]; ok {
			h(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}

// Unlocked reports whether the gate was unlocked during the current session.
func (s *Server) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

func (s *Server) setUnlocked(v bool) {
	s.mu.Lock()
	s.unlocked = v
	s.mu.Unlock()
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}
