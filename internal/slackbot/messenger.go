package slackbot

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/studyspot/internal/session"
	"github.com/goodtune/studyspot/internal/study"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// Messenger delivers study notifications through the Slack Web API
type Messenger struct {
	api    API
	logger zerolog.Logger
}

var _ study.Messenger = (*Messenger)(nil)

// NewMessenger creates a new Slack messenger
func NewMessenger(api API, logger zerolog.Logger) *Messenger {
	return &Messenger{
		api:    api,
		logger: logger.With().Str("component", "slack-messenger").Logger(),
	}
}

// PostAnnouncement posts the public announcement and returns its location
func (m *Messenger) PostAnnouncement(ctx context.Context, channelID string, a study.Announcement) (session.Marker, error) {
	channel, ts, err := m.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(a.Text, false),
		slack.MsgOptionBlocks(AnnouncementBlocks(a)...),
	)
	if err != nil {
		return session.Marker{}, fmt.Errorf("failed to post announcement: %w", err)
	}
	if channel == "" {
		channel = channelID
	}
	return session.Marker{ChannelID: channel, MessageTS: ts}, nil
}

// UpdateAnnouncement replaces the text of a posted announcement
func (m *Messenger) UpdateAnnouncement(ctx context.Context, marker session.Marker, text string) error {
	_, _, _, err := m.api.UpdateMessageContext(ctx, marker.ChannelID, marker.MessageTS,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(markdownSection(text)),
	)
	if err != nil {
		return fmt.Errorf("failed to update announcement: %w", err)
	}
	return nil
}

// Pin pins an announcement to its channel
func (m *Messenger) Pin(ctx context.Context, marker session.Marker) error {
	err := m.api.AddPinContext(ctx, marker.ChannelID, slack.NewRefToMessage(marker.ChannelID, marker.MessageTS))
	if err != nil && !isSlackError(err, "already_pinned") {
		return fmt.Errorf("failed to pin announcement: %w", err)
	}
	return nil
}

// Unpin removes an announcement from its channel's pins. A message that is
// no longer pinned counts as unpinned.
func (m *Messenger) Unpin(ctx context.Context, marker session.Marker) error {
	err := m.api.RemovePinContext(ctx, marker.ChannelID, slack.NewRefToMessage(marker.ChannelID, marker.MessageTS))
	if err != nil && !isSlackError(err, "no_pin") {
		return fmt.Errorf("failed to unpin announcement: %w", err)
	}
	return nil
}

// PostCancelPrompt shows the owner-only cancel button
func (m *Messenger) PostCancelPrompt(ctx context.Context, channelID, userID, sessionID string) error {
	_, err := m.api.PostEphemeralContext(ctx, channelID, userID,
		slack.MsgOptionText("Cancel your study announcement", false),
		slack.MsgOptionBlocks(CancelPromptBlocks(sessionID)...),
	)
	if err != nil {
		return fmt.Errorf("failed to post cancel prompt: %w", err)
	}
	return nil
}

// PostEphemeral sends text visible only to userID
func (m *Messenger) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	if _, err := m.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to post ephemeral message: %w", err)
	}
	return nil
}

// DirectMessage opens a direct conversation with userID and posts text to it
func (m *Messenger) DirectMessage(ctx context.Context, userID, text string) error {
	channel, _, _, err := m.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("failed to open direct message with %s: %w", userID, err)
	}

	if _, _, err := m.api.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to send direct message: %w", err)
	}

	m.logger.Debug().
		Str("user_id", userID).
		Str("channel_id", channel.ID).
		Msg("Sent direct message")

	return nil
}

// isSlackError reports whether err is the Web API error code
func isSlackError(err error, code string) bool {
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		return resp.Err == code
	}
	return err.Error() == code
}
