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
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyspot_sessions_active",
			Help: "Number of sessions currently tracked by the registry",
		},
	)

	SessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studyspot_sessions_created_total",
			Help: "Total study sessions created",
		},
	)

	SessionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studyspot_session_conflicts_total",
			Help: "Create attempts rejected because the user already had an active session",
		},
	)

	SessionsCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studyspot_sessions_cancelled_total",
			Help: "Total study sessions cancelled by their owner",
		},
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studyspot_sessions_expired_total",
			Help: "Total study sessions purged after their end time",
		},
	)

	// Sweeper metrics
	SweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studyspot_sweeps_total",
			Help: "Total expiry sweeps performed",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "studyspot_sweep_duration_seconds",
			Help:    "Expiry sweep duration in seconds, including marker retraction",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
	)

	MarkerRetractions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyspot_marker_retractions_total",
			Help: "Public marker retractions attempted by the sweeper",
		},
		[]string{"result"},
	)

	// Notification metrics
	NotificationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyspot_notification_failures_total",
			Help: "Failed calls to the messaging platform",
		},
		[]string{"operation"},
	)

	// Intake metrics
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyspot_events_total",
			Help: "Total intake events received",
		},
		[]string{"type"},
	)

	DuplicateEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "studyspot_duplicate_events_total",
			Help: "Intake events dropped as redeliveries",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SessionsActive,
		SessionsCreated,
		SessionConflicts,
		SessionsCancelled,
		SessionsExpired,
		SweepsTotal,
		SweepDuration,
		MarkerRetractions,
		NotificationFailures,
		EventsTotal,
		DuplicateEvents,
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

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
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
