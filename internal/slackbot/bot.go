package slackbot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/studyspot/internal/dedupe"
	"github.com/goodtune/studyspot/internal/metrics"
	"github.com/goodtune/studyspot/internal/session"
	"github.com/goodtune/studyspot/internal/study"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

const (
	// DefaultWorkers is the number of goroutines handling events
	DefaultWorkers = 4

	// DefaultRequestTimeout bounds the Slack calls made for one event
	DefaultRequestTimeout = 10 * time.Second
)

// Service is the study service surface used by the bot
type Service interface {
	Announce(ctx context.Context, sub study.Submission) (study.Result, error)
	Cancel(ctx context.Context, req study.CancelRequest) study.Result
	ShowRoster(ctx context.Context, userID, channelID string)
	ActiveFor(userID string) (session.Session, bool)
	Location() *time.Location
	Now() time.Time
}

var _ Service = (*study.Service)(nil)

// Config holds bot configuration
type Config struct {
	Locations      []string
	Workers        int
	RequestTimeout time.Duration
}

// Bot receives Socket Mode events and routes them to the study service
type Bot struct {
	api       API
	service   Service
	dedupe    dedupe.Store
	locations []string
	workers   int
	timeout   time.Duration
	logger    zerolog.Logger
}

// New creates a new bot. A nil store disables de-duplication.
func New(api API, service Service, store dedupe.Store, config Config, logger zerolog.Logger) *Bot {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	return &Bot{
		api:       api,
		service:   service,
		dedupe:    store,
		locations: config.Locations,
		workers:   config.Workers,
		timeout:   config.RequestTimeout,
		logger:    logger.With().Str("component", "slackbot").Logger(),
	}
}

// acker acknowledges Socket Mode requests. *socketmode.Client implements it.
type acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// Run connects over Socket Mode and handles events until ctx is done. Events
// already queued are finished before Run returns.
func (b *Bot) Run(ctx context.Context, client *socketmode.Client) error {
	jobs := make(chan socketmode.Event, b.workers*4)

	var wg sync.WaitGroup
	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for evt := range jobs {
				b.process(ctx, evt)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- client.RunContext(ctx)
	}()

	b.logger.Info().
		Int("workers", b.workers).
		Msg("Slack bot started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errChan:
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("socket mode connection ended: %w", err)
		case evt, ok := <-client.Events:
			if !ok {
				return nil
			}
			if !b.receive(client, evt) {
				continue
			}
			select {
			case jobs <- evt:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// receive acknowledges evt and reports whether it needs handling
func (b *Bot) receive(a acker, evt socketmode.Event) bool {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Info().Msg("Connecting to Slack with Socket Mode")
		return false
	case socketmode.EventTypeConnected:
		b.logger.Info().Msg("Connected to Slack with Socket Mode")
		return false
	case socketmode.EventTypeConnectionError:
		b.logger.Warn().Interface("data", evt.Data).Msg("Socket Mode connection failed, retrying")
		return false
	case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
		metrics.EventsTotal.WithLabelValues(string(evt.Type)).Inc()
		if evt.Request != nil {
			a.Ack(*evt.Request)
		}
		return true
	case socketmode.EventTypeEventsAPI:
		metrics.EventsTotal.WithLabelValues(string(evt.Type)).Inc()
		if evt.Request != nil {
			a.Ack(*evt.Request)
		}
		return false
	default:
		b.logger.Debug().Str("type", string(evt.Type)).Msg("Ignoring Socket Mode event")
		return false
	}
}

// process handles one acknowledged event on a worker
func (b *Bot) process(ctx context.Context, evt socketmode.Event) {
	// Queued events still finish during shutdown
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("type", string(evt.Type)).
				Msg("Recovered from panic while handling event")
		}
	}()

	switch evt.Type {
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			b.logger.Warn().Msgf("Unexpected slash command payload %T", evt.Data)
			return
		}
		b.HandleSlashCommand(ctx, cmd)
	case socketmode.EventTypeInteractive:
		cb, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			b.logger.Warn().Msgf("Unexpected interaction payload %T", evt.Data)
			return
		}
		b.HandleInteraction(ctx, cb)
	}
}

// HandleSlashCommand handles /study and /studying
func (b *Bot) HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	if b.duplicate(ctx, "slash", cmd.TriggerID) {
		return
	}

	b.logger.Debug().
		Str("command", cmd.Command).
		Str("user_id", cmd.UserID).
		Str("channel_id", cmd.ChannelID).
		Msg("Slash command received")

	switch cmd.Command {
	case "/study":
		b.openStudyModal(ctx, cmd)
	case "/studying":
		b.service.ShowRoster(ctx, cmd.UserID, cmd.ChannelID)
	default:
		b.logger.Warn().Str("command", cmd.Command).Msg("Unknown slash command")
	}
}

// openStudyModal opens the share-location form, or the cancel dialog when
// the user already has a live session
func (b *Bot) openStudyModal(ctx context.Context, cmd slack.SlashCommand) {
	if cmd.TriggerID == "" {
		b.logger.Error().Str("user_id", cmd.UserID).Msg("Missing trigger_id in /study payload")
		return
	}

	view := StudyModal(b.locations, b.service.Now(), b.service.Location(), cmd.ChannelID)
	if existing, ok := b.service.ActiveFor(cmd.UserID); ok {
		view = AlreadyStudyingModal(existing, b.service.Location())
	}

	if _, err := b.api.OpenViewContext(ctx, cmd.TriggerID, view); err != nil {
		metrics.NotificationFailures.WithLabelValues("open_view").Inc()
		b.logger.Error().
			Err(err).
			Str("user_id", cmd.UserID).
			Str("callback_id", view.CallbackID).
			Msg("Failed to open modal")
	}
}

// HandleInteraction handles modal submissions and button presses
func (b *Bot) HandleInteraction(ctx context.Context, cb slack.InteractionCallback) {
	switch cb.Type {
	case slack.InteractionTypeViewSubmission:
		if b.duplicate(ctx, "view_submission", cb.TriggerID) {
			return
		}
		b.handleViewSubmission(ctx, cb)
	case slack.InteractionTypeBlockActions:
		for _, action := range cb.ActionCallback.BlockActions {
			b.handleBlockAction(ctx, cb, action)
		}
	default:
		b.logger.Debug().Str("type", string(cb.Type)).Msg("Ignoring interaction")
	}
}

func (b *Bot) handleViewSubmission(ctx context.Context, cb slack.InteractionCallback) {
	switch cb.View.CallbackID {
	case CallbackStudyModal:
		result, err := b.service.Announce(ctx, ParseSubmission(cb))
		if err != nil {
			return
		}
		b.logger.Debug().
			Str("user_id", cb.User.ID).
			Str("outcome", result.Outcome.String()).
			Str("session_id", result.Session.ID).
			Msg("Study modal submitted")
	case CallbackAlreadyModal:
		result := b.service.Cancel(ctx, study.CancelRequest{
			SessionID: cb.View.PrivateMetadata,
			UserID:    cb.User.ID,
		})
		b.logger.Debug().
			Str("user_id", cb.User.ID).
			Str("outcome", result.Outcome.String()).
			Msg("Already-studying modal submitted")
	default:
		b.logger.Warn().Str("callback_id", cb.View.CallbackID).Msg("Unknown view submission")
	}
}

func (b *Bot) handleBlockAction(ctx context.Context, cb slack.InteractionCallback, action *slack.BlockAction) {
	switch {
	case action.ActionID == ActionCancel:
		if b.duplicate(ctx, ActionCancel, cb.TriggerID) {
			return
		}
		result := b.service.Cancel(ctx, study.CancelRequest{
			SessionID:    action.Value,
			UserID:       cb.User.ID,
			ReplyChannel: cb.Channel.ID,
		})
		b.logger.Debug().
			Str("user_id", cb.User.ID).
			Str("session_id", action.Value).
			Str("outcome", result.Outcome.String()).
			Msg("Cancel button pressed")
	case timeSelectActions[action.ActionID]:
		// state is read on submit
	default:
		b.logger.Debug().Str("action_id", action.ActionID).Msg("Ignoring block action")
	}
}

// duplicate records the event and reports whether it was handled before.
// Store errors let the event through.
func (b *Bot) duplicate(ctx context.Context, kind, triggerID string) bool {
	if b.dedupe == nil || triggerID == "" {
		return false
	}

	key := dedupe.Key(kind, triggerID)
	seen, err := b.dedupe.Seen(ctx, key)
	if err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("Event de-duplication unavailable")
		return false
	}
	if seen {
		metrics.DuplicateEvents.Inc()
		b.logger.Debug().Str("key", key).Msg("Dropping redelivered event")
	}
	return seen
}
