package study

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodtune/studyspot/internal/session"
)

const (
	// LocationSeparator joins a selected location and a specific spot
	LocationSeparator = " — "

	// CancelConfirmText is sent to the owner after a successful cancel
	CancelConfirmText = "Cancelled. Use `/study` again to share a new location."

	// NothingToCancelText is sent when the session is already gone
	NothingToCancelText = "That announcement already ended or was cancelled. Use `/study` to share a new location."

	// EmptyRosterText is shown when nobody is studying
	EmptyRosterText = "No one is currently sharing their study location. Use `/study` to share yours!"
)

// MergeLocation combines the selected location with the optional specific
// spot. Selecting the "other" entry uses the spot alone, or the fallback.
func MergeLocation(selected, spot, other, fallback string) string {
	selected = strings.TrimSpace(selected)
	spot = strings.TrimSpace(spot)

	if selected == "" || selected == other {
		if spot != "" {
			return spot
		}
		return fallback
	}
	if spot != "" {
		return selected + LocationSeparator + spot
	}
	return selected
}

// FormatClock formats an instant as "3:04 PM" in loc
func FormatClock(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("3:04 PM")
}

// FormatRange formats a window as "11:00 PM – 1:00 AM"
func FormatRange(w session.Window, loc *time.Location) string {
	return FormatClock(w.Start, loc) + " – " + FormatClock(w.End, loc)
}

// mention renders a user reference
func mention(userID string) string {
	return "<@" + userID + ">"
}

// AnnouncementText builds the public headline for a new session
func AnnouncementText(userID, location string, companions []string, timeRange string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📍 %s is studying at *%s*", mention(userID), location)
	if len(companions) > 0 {
		tags := make([]string, 0, len(companions))
		for _, c := range companions {
			tags = append(tags, mention(c))
		}
		b.WriteString(" with ")
		b.WriteString(strings.Join(tags, " "))
	}
	fmt.Fprintf(&b, " *%s*.", timeRange)
	return b.String()
}

// WithDescription appends the italic description line
func WithDescription(text, description string) string {
	if description == "" {
		return text
	}
	return text + "\n_" + description + "_"
}

// PrivateAckText is the acknowledgment sent when no study channel is configured
func PrivateAckText(location, timeRange, description string) string {
	msg := fmt.Sprintf("✅ You're now listed as studying at *%s* *%s*. "+
		"Set `STUDY_CHANNEL_ID` in your app config to announce to a channel.", location, timeRange)
	return WithDescription(msg, description)
}

// CancelledText strikes through a previously posted announcement
func CancelledText(original string) string {
	escaped := strings.ReplaceAll(original, "~", " about ")
	return "~" + escaped + "~ — Cancelled"
}

// AlreadyStudyingText explains why a new announcement cannot be made
func AlreadyStudyingText(s session.Session, loc *time.Location) string {
	return fmt.Sprintf("You're already listed as studying at *%s* (until ~%s).\n\n"+
		"Cancel that announcement first, then you can share a new location.",
		s.Location, FormatClock(s.EndTime, loc))
}

// RosterText renders the "who's studying" list
func RosterText(sessions []session.Session, now time.Time) string {
	if len(sessions) == 0 {
		return EmptyRosterText
	}

	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		minsLeft := int(s.Remaining(now) / time.Minute)
		lines = append(lines, fmt.Sprintf("• %s — *%s* (about %d min left)", mention(s.UserID), s.Location, minsLeft))
	}
	return "Who's studying right now:\n\n" + strings.Join(lines, "\n")
}
