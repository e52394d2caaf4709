package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/studyspot/internal/session"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

type fakeRetractor struct {
	mu      sync.Mutex
	markers []session.Marker
	fail    map[string]error
	panicOn string
}

func (f *fakeRetractor) Retract(ctx context.Context, marker session.Marker) error {
	if marker.MessageTS == f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers = append(f.markers, marker)
	return f.fail[marker.MessageTS]
}

func (f *fakeRetractor) calls() []session.Marker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.Marker(nil), f.markers...)
}

func setupSweeper(t *testing.T, retractor *fakeRetractor) (*Sweeper, *session.Registry, *session.TestClock) {
	t.Helper()

	clock := &session.TestClock{CurrentTime: testNow}
	reg := session.NewRegistry(session.Config{Clock: clock}, zerolog.Nop())
	sw := New(reg, retractor.Retract, Config{Clock: clock, Interval: time.Hour}, zerolog.Nop())

	return sw, reg, clock
}

func createWithMarker(t *testing.T, reg *session.Registry, userID string, end time.Duration, ts string) string {
	t.Helper()

	id, conflict, err := reg.Create(session.CreateParams{
		UserID:    userID,
		Location:  "Science Library",
		StartTime: testNow,
		EndTime:   testNow.Add(end),
	})
	if err != nil || conflict != nil {
		t.Fatalf("Create(%s) failed: err=%v conflict=%v", userID, err, conflict)
	}
	if ts != "" {
		reg.AttachPublicMarker(id, session.Marker{ChannelID: "C-STUDY", MessageTS: ts}, "text")
	}
	return id
}

func TestSweeper_RetractsOnlyExpiredMarkers(t *testing.T) {
	retractor := &fakeRetractor{}
	sw, reg, clock := setupSweeper(t, retractor)

	createWithMarker(t, reg, "U-A", 30*time.Minute, "ts-a")
	createWithMarker(t, reg, "U-B", 30*time.Minute, "")
	createWithMarker(t, reg, "U-C", 2*time.Hour, "ts-c")

	clock.Advance(time.Hour)

	if n := sw.Sweep(context.Background()); n != 2 {
		t.Fatalf("Expected 2 purged sessions, got %d", n)
	}

	calls := retractor.calls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 retraction, got %d", len(calls))
	}
	if calls[0].MessageTS != "ts-a" || calls[0].ChannelID != "C-STUDY" {
		t.Errorf("Unexpected retraction %+v", calls[0])
	}

	if reg.Len() != 1 {
		t.Errorf("Expected 1 remaining session, got %d", reg.Len())
	}
}

func TestSweeper_FailuresDoNotStopSweep(t *testing.T) {
	retractor := &fakeRetractor{
		fail:    map[string]error{"ts-a": errors.New("channel_not_found")},
		panicOn: "ts-b",
	}
	sw, reg, clock := setupSweeper(t, retractor)

	createWithMarker(t, reg, "U-A", time.Minute, "ts-a")
	createWithMarker(t, reg, "U-B", time.Minute, "ts-b")
	createWithMarker(t, reg, "U-C", time.Minute, "ts-c")

	clock.Advance(time.Minute)

	if n := sw.Sweep(context.Background()); n != 3 {
		t.Fatalf("Expected 3 purged sessions, got %d", n)
	}

	got := make(map[string]bool)
	for _, m := range retractor.calls() {
		got[m.MessageTS] = true
	}
	if !got["ts-a"] || !got["ts-c"] {
		t.Errorf("Expected retraction attempts for ts-a and ts-c, got %v", got)
	}

	// A second sweep has nothing left to do
	if n := sw.Sweep(context.Background()); n != 0 {
		t.Errorf("Expected empty second sweep, got %d", n)
	}
}

func TestSweeper_PicksUpLazilyDroppedSessions(t *testing.T) {
	retractor := &fakeRetractor{}
	sw, reg, clock := setupSweeper(t, retractor)

	createWithMarker(t, reg, "U-A", time.Minute, "ts-a")
	clock.Advance(time.Minute)

	// The roster query drops the expired session before the sweeper runs
	if active := reg.ListActive(); len(active) != 0 {
		t.Fatalf("Expected no active sessions, got %d", len(active))
	}

	if n := sw.Sweep(context.Background()); n != 1 {
		t.Fatalf("Expected 1 purged session, got %d", n)
	}
	if calls := retractor.calls(); len(calls) != 1 || calls[0].MessageTS != "ts-a" {
		t.Errorf("Expected marker ts-a to be retracted, got %+v", calls)
	}
}

type signalPurger struct {
	calls chan time.Time
}

func (p *signalPurger) PurgeExpired(now time.Time) []session.Session {
	select {
	case p.calls <- now:
	default:
	}
	return nil
}

func TestSweeper_StartStop(t *testing.T) {
	purger := &signalPurger{calls: make(chan time.Time, 1)}
	sw := New(purger, nil, Config{Interval: 10 * time.Millisecond}, zerolog.Nop())

	sw.Start()

	select {
	case <-purger.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected the sweep loop to call PurgeExpired")
	}

	sw.Stop()
	// Stop is safe to call twice
	sw.Stop()
}
