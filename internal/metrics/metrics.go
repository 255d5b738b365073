package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktime_sessions_started_total",
			Help: "Total foreground sessions opened",
		},
	)

	SessionsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktime_sessions_closed_total",
			Help: "Total foreground sessions closed and folded into daily usage",
		},
	)

	// Usage metrics
	UsageMinutesConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktime_usage_minutes_consumed_total",
			Help: "Total whole minutes added to daily usage by closed sessions",
		},
	)

	UsageMinutesToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ktime_usage_minutes_today",
			Help: "Usage minutes for the current day, including the open session",
		},
	)

	// Gate metrics
	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ktime_gate_decisions_total",
			Help: "Gate evaluations by decision",
		},
		[]string{"decision"},
	)

	UnlockAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ktime_unlock_attempts_total",
			Help: "Passcode unlock attempts by result",
		},
		[]string{"result"},
	)

	// Storage metrics
	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ktime_storage_errors_total",
			Help: "Store failures absorbed by fail-open handling",
		},
		[]string{"component", "op"},
	)

	RecordsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ktime_usage_records_purged_total",
			Help: "Daily usage records removed by the retention sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		SessionsClosed,
		UsageMinutesConsumed,
		UsageMinutesToday,
		GateDecisions,
		UnlockAttempts,
		StorageErrors,
		RecordsPurged,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
