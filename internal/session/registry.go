package session

import (
	"strings"
	"sync"
	"time"

	"github.com/goodtune/studyspot/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultLocation is used when a session is created with a blank location
	DefaultLocation = "Somewhere on campus"
)

// Registry is the in-memory store of study sessions.
//
// All operations are serialized by a single mutex. Expired sessions removed by
// the lazy paths are queued and handed to the next PurgeExpired call so the
// sweeper still sees every expired session exactly once.
type Registry struct {
	sessions        map[string]*Session // key: sessionID
	userSessions    map[string]string   // key: userID -> sessionID
	evicted         []Session
	clock           Clock
	newID           func() string
	defaultLocation string
	logger          zerolog.Logger
	mu              sync.Mutex
}

// Config holds registry configuration
type Config struct {
	Clock           Clock
	IDGenerator     func() string
	DefaultLocation string
}

// NewRegistry creates a new session registry
func NewRegistry(config Config, logger zerolog.Logger) *Registry {
	if config.Clock == nil {
		config.Clock = RealClock{}
	}
	if config.IDGenerator == nil {
		config.IDGenerator = uuid.NewString
	}
	if strings.TrimSpace(config.DefaultLocation) == "" {
		config.DefaultLocation = DefaultLocation
	}

	return &Registry{
		sessions:        make(map[string]*Session),
		userSessions:    make(map[string]string),
		clock:           config.Clock,
		newID:           config.IDGenerator,
		defaultLocation: config.DefaultLocation,
		logger:          logger.With().Str("component", "session-registry").Logger(),
	}
}

// FindActiveForUser returns the user's live session, dropping an expired one
func (r *Registry) FindActiveForUser(userID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.findActiveLocked(userID)
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

// findActiveLocked looks up the user's session (must be called with lock held)
func (r *Registry) findActiveLocked(userID string) *Session {
	sessionID, exists := r.userSessions[userID]
	if !exists {
		return nil
	}

	s, ok := r.sessions[sessionID]
	if !ok {
		delete(r.userSessions, userID)
		return nil
	}

	if s.expiredAt(r.clock.Now()) {
		r.evictLocked(s)
		return nil
	}
	return s
}

// Create inserts a new session unless the user already has a live one, in
// which case the existing session is returned as the conflict and nothing is
// changed. The only error is ErrWindowElapsed.
func (r *Registry) Create(params CreateParams) (string, *Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.findActiveLocked(params.UserID); existing != nil {
		conflict := *existing
		metrics.SessionConflicts.Inc()

		r.logger.Debug().
			Str("user_id", params.UserID).
			Str("session_id", existing.ID).
			Msg("User already has an active session")

		return "", &conflict, nil
	}

	now := r.clock.Now()
	end := rollover(params.StartTime, params.EndTime)
	if !end.After(now) {
		return "", nil, ErrWindowElapsed
	}

	location := strings.TrimSpace(params.Location)
	if location == "" {
		location = r.defaultLocation
	}

	s := &Session{
		ID:          r.newID(),
		UserID:      params.UserID,
		DisplayName: params.DisplayName,
		Location:    location,
		StartTime:   params.StartTime,
		EndTime:     end,
		ExpiresAt:   end,
	}

	r.sessions[s.ID] = s
	r.userSessions[s.UserID] = s.ID

	metrics.SessionsCreated.Inc()
	metrics.SessionsActive.Set(float64(len(r.sessions)))

	r.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Str("location", s.Location).
		Time("expires_at", s.ExpiresAt).
		Msg("Started new study session")

	return s.ID, nil, nil
}

// AttachPublicMarker records the public message for a session. It returns
// false when the session was cancelled or expired before the marker landed.
func (r *Registry) AttachPublicMarker(sessionID string, marker Marker, renderedText string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[sessionID]
	if !exists || s.expiredAt(r.clock.Now()) {
		r.logger.Warn().
			Str("session_id", sessionID).
			Str("channel_id", marker.ChannelID).
			Str("message_ts", marker.MessageTS).
			Msg("Session gone before public marker could be attached")
		return false
	}

	m := marker
	s.Marker = &m
	s.RenderedText = renderedText
	return true
}

// Cancel removes and returns a live session. Calling it again for the same id
// returns false.
func (r *Registry) Cancel(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.sessions[sessionID]
	if !exists {
		return Session{}, false
	}

	if s.expiredAt(r.clock.Now()) {
		r.evictLocked(s)
		return Session{}, false
	}

	r.removeLocked(s)
	metrics.SessionsCancelled.Inc()

	r.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Msg("Cancelled study session")

	return *s, true
}

// ListActive purges expired sessions and returns the remainder in no
// particular order.
func (r *Registry) ListActive() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	active := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.expiredAt(now) {
			r.evictLocked(s)
			continue
		}
		active = append(active, *s)
	}

	return active
}

// PurgeExpired removes and returns every session whose deadline is at or
// before now, including sessions already dropped by the lazy paths.
func (r *Registry) PurgeExpired(now time.Time) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []Session
	pending := r.evicted[:0]
	for _, s := range r.evicted {
		if s.expiredAt(now) {
			purged = append(purged, s)
		} else {
			pending = append(pending, s)
		}
	}
	r.evicted = pending

	for _, s := range r.sessions {
		if !s.expiredAt(now) {
			continue
		}
		r.removeLocked(s)
		purged = append(purged, *s)
	}

	if len(purged) > 0 {
		metrics.SessionsExpired.Add(float64(len(purged)))
		r.logger.Debug().
			Int("count", len(purged)).
			Int("remaining", len(r.sessions)).
			Msg("Purged expired sessions")
	}

	return purged
}

// Len returns the number of tracked sessions, expired or not
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// evictLocked removes an expired session and queues it for PurgeExpired
// (must be called with lock held)
func (r *Registry) evictLocked(s *Session) {
	r.removeLocked(s)
	r.evicted = append(r.evicted, *s)

	r.logger.Debug().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Msg("Dropped expired session")
}

// removeLocked deletes a session and its user index entry (must be called with lock held)
func (r *Registry) removeLocked(s *Session) {
	delete(r.sessions, s.ID)
	if r.userSessions[s.UserID] == s.ID {
		delete(r.userSessions, s.UserID)
	}
	metrics.SessionsActive.Set(float64(len(r.sessions)))
}
