// Package slackbot connects the study service to Slack over Socket Mode.
package slackbot

import (
	"context"

	"github.com/slack-go/slack"
)

// API is the part of the Slack Web API the bot calls. *slack.Client implements it.
type API interface {
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	AddPinContext(ctx context.Context, channel string, item slack.ItemRef) error
	RemovePinContext(ctx context.Context, channel string, item slack.ItemRef) error
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
}

var _ API = (*slack.Client)(nil)

// NewClient creates a Web API client that can also open a Socket Mode connection
func NewClient(botToken, appToken string, debug bool) *slack.Client {
	return slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
		slack.OptionDebug(debug),
	)
}
