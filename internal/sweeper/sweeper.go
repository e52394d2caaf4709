package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/studyspot/internal/metrics"
	"github.com/goodtune/studyspot/internal/session"
	"github.com/rs/zerolog"
)

const (
	// DefaultInterval is how often expired sessions are purged
	DefaultInterval = time.Minute

	// DefaultRetractTimeout bounds a single marker retraction
	DefaultRetractTimeout = 10 * time.Second
)

// Purger is the registry surface the sweeper needs
type Purger interface {
	PurgeExpired(now time.Time) []session.Session
}

// RetractFunc removes the public marker of an expired session
type RetractFunc func(ctx context.Context, marker session.Marker) error

// Config holds sweeper configuration
type Config struct {
	Interval       time.Duration
	RetractTimeout time.Duration
	Clock          session.Clock
}

// Sweeper periodically purges expired sessions and retracts their markers
type Sweeper struct {
	registry       Purger
	retract        RetractFunc
	interval       time.Duration
	retractTimeout time.Duration
	clock          session.Clock
	logger         zerolog.Logger
	stopChan       chan struct{}
	done           chan struct{}
	stopOnce       sync.Once
}

// New creates a new sweeper. A nil retract function only purges.
func New(registry Purger, retract RetractFunc, config Config, logger zerolog.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.RetractTimeout <= 0 {
		config.RetractTimeout = DefaultRetractTimeout
	}
	if config.Clock == nil {
		config.Clock = session.RealClock{}
	}

	return &Sweeper{
		registry:       registry,
		retract:        retract,
		interval:       config.Interval,
		retractTimeout: config.RetractTimeout,
		clock:          config.Clock,
		logger:         logger.With().Str("component", "expiry-sweeper").Logger(),
		stopChan:       make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *Sweeper) Start() {
	go s.run()
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Expiry sweeper started")
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.done
	s.logger.Info().Msg("Expiry sweeper stopped")
}

// run is the main sweep loop
func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stopChan:
			return
		}
	}
}

// Sweep purges expired sessions and retracts each purged marker. The
// registry lock is released before any retraction starts. It returns the
// number of purged sessions.
func (s *Sweeper) Sweep(ctx context.Context) int {
	started := time.Now()
	defer func() {
		metrics.SweepsTotal.Inc()
		metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	purged := s.registry.PurgeExpired(s.clock.Now())
	if len(purged) == 0 {
		return 0
	}

	retracted := 0
	for _, sess := range purged {
		if sess.Marker == nil || s.retract == nil {
			continue
		}
		if err := s.retractOne(ctx, sess); err != nil {
			metrics.MarkerRetractions.WithLabelValues("failed").Inc()
			s.logger.Warn().
				Err(err).
				Str("session_id", sess.ID).
				Str("channel_id", sess.Marker.ChannelID).
				Str("message_ts", sess.Marker.MessageTS).
				Msg("Failed to retract public marker")
			continue
		}
		metrics.MarkerRetractions.WithLabelValues("ok").Inc()
		retracted++
	}

	s.logger.Info().
		Int("purged", len(purged)).
		Int("retracted", retracted).
		Msg("Expired sessions swept")

	return len(purged)
}

// retractOne calls the retract function with a timeout, turning panics into errors
func (s *Sweeper) retractOne(ctx context.Context, sess session.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retract panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.retractTimeout)
	defer cancel()

	return s.retract(ctx, *sess.Marker)
}
