package slackbot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/studyspot/internal/dedupe"
	"github.com/goodtune/studyspot/internal/session"
	"github.com/goodtune/studyspot/internal/study"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// 2:37 PM in UTC
var testNow = time.Date(2026, time.October, 16, 14, 37, 0, 0, time.UTC)

type apiCall struct {
	method  string
	channel string
	user    string
	ts      string
	text    string
	blocks  string
	trigger string
	view    slack.ModalViewRequest
}

type fakeAPI struct {
	t     *testing.T
	mu    sync.Mutex
	calls []apiCall
	errs  map[string]error
	seq   int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{t: t, errs: make(map[string]error)}
}

func (f *fakeAPI) decode(channel string, options []slack.MsgOption) (string, string) {
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", channel, "https://slack.com/api/", options...)
	if err != nil {
		f.t.Fatalf("Failed to apply message options: %v", err)
	}
	return values.Get("text"), values.Get("blocks")
}

func (f *fakeAPI) record(c apiCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.errs[c.method]
}

func (f *fakeAPI) find(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	if err := f.record(apiCall{method: "views.open", trigger: triggerID, view: view}); err != nil {
		return nil, err
	}
	return &slack.ViewResponse{}, nil
}

func (f *fakeAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	text, blocks := f.decode(channelID, options)

	f.mu.Lock()
	f.seq++
	ts := fmt.Sprintf("1700000000.%06d", f.seq)
	f.mu.Unlock()

	if err := f.record(apiCall{method: "chat.postMessage", channel: channelID, ts: ts, text: text, blocks: blocks}); err != nil {
		return "", "", err
	}
	return channelID, ts, nil
}

func (f *fakeAPI) PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error) {
	text, blocks := f.decode(channelID, options)
	if err := f.record(apiCall{method: "chat.postEphemeral", channel: channelID, user: userID, text: text, blocks: blocks}); err != nil {
		return "", err
	}
	return "1700000000.999999", nil
}

func (f *fakeAPI) UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error) {
	text, blocks := f.decode(channelID, options)
	if err := f.record(apiCall{method: "chat.update", channel: channelID, ts: timestamp, text: text, blocks: blocks}); err != nil {
		return "", "", "", err
	}
	return channelID, timestamp, text, nil
}

func (f *fakeAPI) AddPinContext(ctx context.Context, channel string, item slack.ItemRef) error {
	return f.record(apiCall{method: "pins.add", channel: channel, ts: item.Timestamp})
}

func (f *fakeAPI) RemovePinContext(ctx context.Context, channel string, item slack.ItemRef) error {
	return f.record(apiCall{method: "pins.remove", channel: channel, ts: item.Timestamp})
}

func (f *fakeAPI) OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	user := ""
	if len(params.Users) > 0 {
		user = params.Users[0]
	}
	if err := f.record(apiCall{method: "conversations.open", user: user}); err != nil {
		return nil, false, false, err
	}
	channel := &slack.Channel{}
	channel.ID = "D-" + user
	return channel, false, false, nil
}

type testBot struct {
	bot      *Bot
	api      *fakeAPI
	registry *session.Registry
	service  *study.Service
	clock    *session.TestClock
}

func setupBot(t *testing.T, channelID string) *testBot {
	t.Helper()

	clock := &session.TestClock{CurrentTime: testNow}
	api := newFakeAPI(t)
	registry := session.NewRegistry(session.Config{Clock: clock}, zerolog.Nop())
	service := study.NewService(registry, NewMessenger(api, zerolog.Nop()), study.Config{
		ChannelID: channelID,
		Location:  time.UTC,
		Clock:     clock,
	}, zerolog.Nop())

	bot := New(api, service, dedupe.NewMemoryStore(64, time.Minute), Config{
		Locations: []string{"Langson Library", "Science Library", "Other"},
	}, zerolog.Nop())

	return &testBot{bot: bot, api: api, registry: registry, service: service, clock: clock}
}
