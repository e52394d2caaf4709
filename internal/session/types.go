package session

import (
	"time"
)

// Marker identifies the public announcement message posted for a session
type Marker struct {
	ChannelID string
	MessageTS string
}

// Session represents one user's study announcement
type Session struct {
	ID          string
	UserID      string
	DisplayName string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	ExpiresAt   time.Time

	// Marker is nil when the announcement was acknowledged privately
	Marker       *Marker
	RenderedText string
}

// Remaining returns the time left before the session expires
func (s Session) Remaining(now time.Time) time.Duration {
	if !s.ExpiresAt.After(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// expiredAt reports whether the session is past its deadline. A session whose
// deadline equals now is expired.
func (s *Session) expiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// CreateParams holds the values needed to create a session
type CreateParams struct {
	UserID      string
	DisplayName string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
}
