// Package study turns intake events into registry calls and registry results
// into platform notifications. Registry mutations always happen first; a failed
// notification is logged and never undoes them.
package study

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goodtune/studyspot/internal/metrics"
	"github.com/goodtune/studyspot/internal/session"
	"github.com/rs/zerolog"
)

// Registry is the session registry surface used by the service
type Registry interface {
	FindActiveForUser(userID string) (session.Session, bool)
	Create(params session.CreateParams) (string, *session.Session, error)
	AttachPublicMarker(sessionID string, marker session.Marker, renderedText string) bool
	Cancel(sessionID string) (session.Session, bool)
	ListActive() []session.Session
}

// Announcement is the public message posted for a new session
type Announcement struct {
	Headline    string
	Description string
	Text        string // plain fallback, also stored as the rendered text
}

// Messenger delivers notifications to the messaging platform
type Messenger interface {
	PostAnnouncement(ctx context.Context, channelID string, a Announcement) (session.Marker, error)
	UpdateAnnouncement(ctx context.Context, marker session.Marker, text string) error
	Pin(ctx context.Context, marker session.Marker) error
	Unpin(ctx context.Context, marker session.Marker) error
	PostCancelPrompt(ctx context.Context, channelID, userID, sessionID string) error
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	DirectMessage(ctx context.Context, userID, text string) error
}

// Outcome describes the result of an intake operation
type Outcome int

const (
	OutcomeAnnounced Outcome = iota
	OutcomeConflict
	OutcomeCancelled
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnnounced:
		return "announced"
	case OutcomeConflict:
		return "conflict"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is returned by Announce and Cancel
type Result struct {
	Outcome Outcome
	Session session.Session
}

// Submission is a parsed "share location" form
type Submission struct {
	UserID       string
	DisplayName  string
	Location     string
	ExtraSpot    string
	Companions   []string
	Description  string
	Start        session.ClockTime
	End          session.ClockTime
	ReplyChannel string
}

// CancelRequest identifies the session to cancel and who asked
type CancelRequest struct {
	SessionID    string
	UserID       string // when set, only the owner's session is cancelled
	ReplyChannel string
}

// Config holds service configuration
type Config struct {
	ChannelID       string
	Location        *time.Location
	OtherLocation   string
	DefaultLocation string
	Clock           session.Clock
}

// Service coordinates the registry and the messenger
type Service struct {
	registry        Registry
	messenger       Messenger
	channelID       string
	loc             *time.Location
	otherLocation   string
	defaultLocation string
	clock           session.Clock
	logger          zerolog.Logger
}

// NewService creates a new study service
func NewService(registry Registry, messenger Messenger, config Config, logger zerolog.Logger) *Service {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.OtherLocation == "" {
		config.OtherLocation = "Other"
	}
	if config.DefaultLocation == "" {
		config.DefaultLocation = session.DefaultLocation
	}
	if config.Clock == nil {
		config.Clock = session.RealClock{}
	}

	return &Service{
		registry:        registry,
		messenger:       messenger,
		channelID:       config.ChannelID,
		loc:             config.Location,
		otherLocation:   config.OtherLocation,
		defaultLocation: config.DefaultLocation,
		clock:           config.Clock,
		logger:          logger.With().Str("component", "study-service").Logger(),
	}
}

// Location returns the time zone used for windows and display
func (s *Service) Location() *time.Location {
	return s.loc
}

// Now returns the service clock's current time
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// ActiveFor returns the user's live session, if any
func (s *Service) ActiveFor(userID string) (session.Session, bool) {
	return s.registry.FindActiveForUser(userID)
}

// Announce creates a session for the submission and broadcasts it
func (s *Service) Announce(ctx context.Context, sub Submission) (Result, error) {
	location := MergeLocation(sub.Location, sub.ExtraSpot, s.otherLocation, s.defaultLocation)

	window, err := session.NormalizeWindow(s.clock.Now(), s.loc, sub.Start, sub.End)
	if err != nil {
		return Result{}, s.reject(ctx, sub, err)
	}

	id, conflict, err := s.registry.Create(session.CreateParams{
		UserID:      sub.UserID,
		DisplayName: sub.DisplayName,
		Location:    location,
		StartTime:   window.Start,
		EndTime:     window.End,
	})
	if err != nil {
		return Result{}, s.reject(ctx, sub, err)
	}
	if conflict != nil {
		s.notifyUser(ctx, sub.UserID, sub.ReplyChannel, AlreadyStudyingText(*conflict, s.loc))
		return Result{Outcome: OutcomeConflict, Session: *conflict}, nil
	}

	sess := session.Session{
		ID:          id,
		UserID:      sub.UserID,
		DisplayName: sub.DisplayName,
		Location:    location,
		StartTime:   window.Start,
		EndTime:     window.End,
		ExpiresAt:   window.End,
	}
	return s.broadcast(ctx, sess, sub, FormatRange(window, s.loc)), nil
}

// reject tells the user why a submission was not accepted
func (s *Service) reject(ctx context.Context, sub Submission, err error) error {
	s.logger.Info().
		Err(err).
		Str("user_id", sub.UserID).
		Msg("Rejected study announcement")
	s.notifyUser(ctx, sub.UserID, sub.ReplyChannel, "Couldn't share your study location: "+describe(err))
	return err
}

// broadcast delivers a newly created session
func (s *Service) broadcast(ctx context.Context, sess session.Session, sub Submission, timeRange string) Result {
	result := Result{Outcome: OutcomeAnnounced, Session: sess}

	if s.channelID == "" {
		text := PrivateAckText(sess.Location, timeRange, sub.Description)
		if err := s.messenger.DirectMessage(ctx, sess.UserID, text); err != nil {
			s.notifyFailed("direct_message", sess.ID, err)
		}
		return result
	}

	headline := AnnouncementText(sess.UserID, sess.Location, sub.Companions, timeRange)
	full := WithDescription(headline, sub.Description)

	marker, err := s.messenger.PostAnnouncement(ctx, s.channelID, Announcement{
		Headline:    headline,
		Description: sub.Description,
		Text:        full,
	})
	if err != nil {
		s.notifyFailed("post_announcement", sess.ID, err)
		return result
	}

	// Pin before attaching: once the marker is attached, Cancel and the
	// sweeper own the unpin, so no pin may happen after that point.
	if err := s.messenger.Pin(ctx, marker); err != nil {
		s.notifyFailed("pin", sess.ID, err)
	}

	if !s.registry.AttachPublicMarker(sess.ID, marker, full) {
		s.retractOrphan(ctx, sess, marker, full)
		return result
	}
	result.Session.Marker = &marker
	result.Session.RenderedText = full

	if err := s.messenger.PostCancelPrompt(ctx, s.channelID, sess.UserID, sess.ID); err != nil {
		s.notifyFailed("post_cancel_prompt", sess.ID, err)
	}

	s.logger.Info().
		Str("session_id", sess.ID).
		Str("channel_id", marker.ChannelID).
		Str("message_ts", marker.MessageTS).
		Msg("Announced study session")

	return result
}

// retractOrphan cleans up an announcement whose session ended while the post
// was in flight. Nothing else holds its marker, so this is the only unpin.
func (s *Service) retractOrphan(ctx context.Context, sess session.Session, marker session.Marker, text string) {
	expired := !sess.ExpiresAt.After(s.clock.Now())

	s.logger.Info().
		Str("session_id", sess.ID).
		Bool("expired", expired).
		Msg("Session ended before its announcement was recorded")

	// An expired announcement keeps its text, as the sweeper leaves it
	if !expired {
		if err := s.messenger.UpdateAnnouncement(ctx, marker, CancelledText(text)); err != nil {
			s.notifyFailed("update_announcement", sess.ID, err)
		}
	}
	if err := s.messenger.Unpin(ctx, marker); err != nil {
		s.notifyFailed("unpin", sess.ID, err)
	}
}

// Cancel ends a session early and retracts its public announcement
func (s *Service) Cancel(ctx context.Context, req CancelRequest) Result {
	if req.UserID != "" {
		owned, ok := s.registry.FindActiveForUser(req.UserID)
		if !ok || owned.ID != req.SessionID {
			s.notifyUser(ctx, req.UserID, req.ReplyChannel, NothingToCancelText)
			return Result{Outcome: OutcomeNotFound}
		}
	}

	sess, ok := s.registry.Cancel(req.SessionID)
	if !ok {
		if req.UserID != "" {
			s.notifyUser(ctx, req.UserID, req.ReplyChannel, NothingToCancelText)
		}
		return Result{Outcome: OutcomeNotFound}
	}

	replyChannel := req.ReplyChannel
	if sess.Marker != nil {
		if err := s.messenger.UpdateAnnouncement(ctx, *sess.Marker, CancelledText(sess.RenderedText)); err != nil {
			s.notifyFailed("update_announcement", sess.ID, err)
		}
		if err := s.messenger.Unpin(ctx, *sess.Marker); err != nil {
			s.notifyFailed("unpin", sess.ID, err)
		}
		replyChannel = sess.Marker.ChannelID
	}

	s.notifyUser(ctx, sess.UserID, replyChannel, CancelConfirmText)

	return Result{Outcome: OutcomeCancelled, Session: sess}
}

// Roster returns the active sessions, soonest to end first
func (s *Service) Roster() []session.Session {
	active := s.registry.ListActive()
	sort.Slice(active, func(i, j int) bool {
		if !active[i].ExpiresAt.Equal(active[j].ExpiresAt) {
			return active[i].ExpiresAt.Before(active[j].ExpiresAt)
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// ShowRoster sends the roster privately to the requesting user
func (s *Service) ShowRoster(ctx context.Context, userID, channelID string) {
	text := RosterText(s.Roster(), s.clock.Now())
	s.notifyUser(ctx, userID, channelID, text)
}

// Retract removes the highlight of an expired session's announcement. It is
// the sweeper's retract callback.
func (s *Service) Retract(ctx context.Context, marker session.Marker) error {
	if err := s.messenger.Unpin(ctx, marker); err != nil {
		metrics.NotificationFailures.WithLabelValues("unpin").Inc()
		return fmt.Errorf("failed to unpin %s/%s: %w", marker.ChannelID, marker.MessageTS, err)
	}
	return nil
}

// notifyUser sends text privately: ephemeral in a channel when one is known,
// otherwise as a direct message
func (s *Service) notifyUser(ctx context.Context, userID, channelID, text string) {
	if channelID != "" {
		err := s.messenger.PostEphemeral(ctx, channelID, userID, text)
		if err == nil {
			return
		}
		s.notifyFailed("post_ephemeral", "", err)
	}
	if err := s.messenger.DirectMessage(ctx, userID, text); err != nil {
		s.notifyFailed("direct_message", "", err)
	}
}

// notifyFailed logs and counts a failed platform call
func (s *Service) notifyFailed(operation, sessionID string, err error) {
	metrics.NotificationFailures.WithLabelValues(operation).Inc()
	s.logger.Warn().
		Err(err).
		Str("operation", operation).
		Str("session_id", sessionID).
		Msg("Notification failed")
}

// describe turns an announce error into user-facing text
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrWindowElapsed):
		return "that end time has already passed."
	case errors.Is(err, session.ErrInvalidClock):
		return "the start or end time is not a valid time."
	default:
		return "something went wrong."
	}
}
