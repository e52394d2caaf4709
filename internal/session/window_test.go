package session

import (
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		input   string
		want    ClockTime
		wantErr bool
	}{
		{"11:00 PM", ClockTime{11, 0, PM}, false},
		{"1:05 am", ClockTime{1, 5, AM}, false},
		{"12 PM", ClockTime{12, 0, PM}, false},
		{" 9:30PM ", ClockTime{9, 30, PM}, false},
		{"13:00 PM", ClockTime{}, true},
		{"0:15 AM", ClockTime{}, true},
		{"10:60 AM", ClockTime{}, true},
		{"10:00", ClockTime{}, true},
		{"noon PM", ClockTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidClock) {
					t.Errorf("ParseClock(%q) error = %v, want ErrInvalidClock", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestClockTime_Hour24(t *testing.T) {
	tests := []struct {
		clock ClockTime
		want  int
	}{
		{ClockTime{12, 0, AM}, 0},
		{ClockTime{1, 0, AM}, 1},
		{ClockTime{11, 0, AM}, 11},
		{ClockTime{12, 0, PM}, 12},
		{ClockTime{1, 0, PM}, 13},
		{ClockTime{11, 0, PM}, 23},
	}

	for _, tt := range tests {
		t.Run(tt.clock.String(), func(t *testing.T) {
			if got := tt.clock.Hour24(); got != tt.want {
				t.Errorf("Hour24() = %d, want %d", got, tt.want)
			}
			if back := ClockOf(time.Date(2026, 1, 1, tt.want, 0, 0, 0, time.UTC)); back != tt.clock {
				t.Errorf("ClockOf round trip = %+v, want %+v", back, tt.clock)
			}
		})
	}
}

func TestNormalizeWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	now := time.Date(2026, time.October, 16, 21, 30, 0, 0, loc)

	tests := []struct {
		name         string
		start, end   ClockTime
		wantDuration time.Duration
		wantRollover bool
	}{
		{"same day", ClockTime{10, 0, AM}, ClockTime{11, 0, AM}, time.Hour, false},
		{"past midnight", ClockTime{11, 0, PM}, ClockTime{1, 0, AM}, 2 * time.Hour, true},
		{"equal times roll a full day", ClockTime{3, 0, PM}, ClockTime{3, 0, PM}, 24 * time.Hour, true},
		{"noon to midnight", ClockTime{12, 0, PM}, ClockTime{12, 0, AM}, 12 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NormalizeWindow(now, loc, tt.start, tt.end)
			if err != nil {
				t.Fatalf("NormalizeWindow failed: %v", err)
			}
			if got := w.Duration(); got != tt.wantDuration {
				t.Errorf("Duration() = %v, want %v", got, tt.wantDuration)
			}
			if got := w.RolledOver(); got != tt.wantRollover {
				t.Errorf("RolledOver() = %v, want %v", got, tt.wantRollover)
			}
			if y, m, d := w.Start.Date(); y != 2026 || m != time.October || d != 16 {
				t.Errorf("Expected start anchored on 2026-10-16, got %v", w.Start)
			}
		})
	}
}

func TestNormalizeWindow_DSTRollover(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	tests := []struct {
		name         string
		now          time.Time
		wantEnd      time.Time
		wantDuration time.Duration
	}{
		{
			name:         "spring forward",
			now:          time.Date(2027, time.March, 13, 21, 30, 0, 0, loc),
			wantEnd:      time.Date(2027, time.March, 14, 4, 0, 0, 0, loc),
			wantDuration: 4 * time.Hour,
		},
		{
			name:         "fall back",
			now:          time.Date(2026, time.October, 31, 21, 30, 0, 0, loc),
			wantEnd:      time.Date(2026, time.November, 1, 4, 0, 0, 0, loc),
			wantDuration: 6 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NormalizeWindow(tt.now, loc, ClockTime{11, 0, PM}, ClockTime{4, 0, AM})
			if err != nil {
				t.Fatalf("NormalizeWindow failed: %v", err)
			}
			if !w.End.Equal(tt.wantEnd) {
				t.Errorf("End = %v, want %v", w.End, tt.wantEnd)
			}
			if got := w.End.In(loc).Format("3:04 PM"); got != "4:00 AM" {
				t.Errorf("End shows as %s, want 4:00 AM", got)
			}
			if got := w.Duration(); got != tt.wantDuration {
				t.Errorf("Duration() = %v, want %v", got, tt.wantDuration)
			}
		})
	}
}

func TestNormalizeWindow_Invalid(t *testing.T) {
	_, err := NormalizeWindow(testNow, time.UTC, ClockTime{0, 0, AM}, ClockTime{1, 0, PM})
	if !errors.Is(err, ErrInvalidClock) {
		t.Errorf("Expected ErrInvalidClock for start, got %v", err)
	}

	_, err = NormalizeWindow(testNow, time.UTC, ClockTime{1, 0, PM}, ClockTime{1, 0, "XM"})
	if !errors.Is(err, ErrInvalidClock) {
		t.Errorf("Expected ErrInvalidClock for end, got %v", err)
	}
}
