package slackbot

import (
	"strconv"
	"strings"

	"github.com/goodtune/studyspot/internal/session"
	"github.com/goodtune/studyspot/internal/study"
	"github.com/slack-go/slack"
)

// Selections used when a time select is missing from the submitted state
var (
	DefaultStart = session.ClockTime{Hour: 9, Minute: 0, Meridiem: session.AM}
	DefaultEnd   = session.ClockTime{Hour: 5, Minute: 0, Meridiem: session.PM}
)

// ParseSubmission reads the share-location form out of a view submission
func ParseSubmission(cb slack.InteractionCallback) study.Submission {
	var values map[string]map[string]slack.BlockAction
	if cb.View.State != nil {
		values = cb.View.State.Values
	}

	name := cb.User.Name
	if name == "" {
		name = "Someone"
	}

	return study.Submission{
		UserID:       cb.User.ID,
		DisplayName:  name,
		Location:     values[blockLocation][actionLocation].SelectedOption.Value,
		ExtraSpot:    strings.TrimSpace(values[blockSpot][actionSpot].Value),
		Companions:   values[blockCompanions][actionCompanions].SelectedUsers,
		Description:  strings.TrimSpace(values[blockDescription][actionDescription].Value),
		Start:        clockFrom(values[blockStart], actionStartHour, actionStartMinute, actionStartMeridiem, DefaultStart),
		End:          clockFrom(values[blockEnd], actionEndHour, actionEndMinute, actionEndMeridiem, DefaultEnd),
		ReplyChannel: cb.View.PrivateMetadata,
	}
}

// clockFrom reads one set of time selects, using def for each missing field
func clockFrom(block map[string]slack.BlockAction, hourID, minuteID, meridiemID string, def session.ClockTime) session.ClockTime {
	c := def

	if h, err := strconv.Atoi(block[hourID].SelectedOption.Value); err == nil {
		c.Hour = h
	}
	if m, err := strconv.Atoi(block[minuteID].SelectedOption.Value); err == nil {
		c.Minute = m
	}
	if v := block[meridiemID].SelectedOption.Value; v != "" {
		c.Meridiem = v
	}

	return c
}
