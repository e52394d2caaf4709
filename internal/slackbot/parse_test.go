package slackbot

import (
	"reflect"
	"testing"

	"github.com/goodtune/studyspot/internal/session"
	"github.com/slack-go/slack"
)

func TestParseSubmission(t *testing.T) {
	values := formValues("Langson Library", threePM, fourPM)
	values[blockSpot] = map[string]slack.BlockAction{actionSpot: {Value: "  4th floor "}}
	values[blockCompanions] = map[string]slack.BlockAction{actionCompanions: {SelectedUsers: []string{"U-B", "U-C"}}}
	values[blockDescription] = map[string]slack.BlockAction{actionDescription: {Value: "CS161 prep\n"}}

	sub := ParseSubmission(studySubmission("T-1", "U-A", values))

	if sub.UserID != "U-A" || sub.DisplayName != "ada" || sub.ReplyChannel != "C-CMD" {
		t.Errorf("Unexpected identity fields %+v", sub)
	}
	if sub.Location != "Langson Library" || sub.ExtraSpot != "4th floor" {
		t.Errorf("Unexpected location fields %q %q", sub.Location, sub.ExtraSpot)
	}
	if !reflect.DeepEqual(sub.Companions, []string{"U-B", "U-C"}) {
		t.Errorf("Unexpected companions %v", sub.Companions)
	}
	if sub.Description != "CS161 prep" {
		t.Errorf("Unexpected description %q", sub.Description)
	}
	if sub.Start != threePM || sub.End != fourPM {
		t.Errorf("Unexpected window %s - %s", sub.Start, sub.End)
	}
}

func TestParseSubmission_Defaults(t *testing.T) {
	cb := slack.InteractionCallback{
		User: slack.User{ID: "U-A"},
		View: slack.View{CallbackID: CallbackStudyModal},
	}

	sub := ParseSubmission(cb)

	if sub.DisplayName != "Someone" {
		t.Errorf("Expected fallback display name, got %q", sub.DisplayName)
	}
	if sub.Start != DefaultStart || sub.End != DefaultEnd {
		t.Errorf("Expected 9:00 AM - 5:00 PM, got %s - %s", sub.Start, sub.End)
	}
	if sub.Location != "" || sub.Companions != nil {
		t.Errorf("Expected empty optional fields, got %+v", sub)
	}
}

func TestParseSubmission_PartialTime(t *testing.T) {
	values := map[string]map[string]slack.BlockAction{
		blockStart: {actionStartHour: {SelectedOption: slack.OptionBlockObject{Value: "11"}}},
		blockEnd:   {actionEndMeridiem: {SelectedOption: slack.OptionBlockObject{Value: "AM"}}},
	}

	sub := ParseSubmission(studySubmission("T-1", "U-A", values))

	want := session.ClockTime{Hour: 11, Minute: 0, Meridiem: session.AM}
	if sub.Start != want {
		t.Errorf("Expected start %s, got %s", want, sub.Start)
	}
	want = session.ClockTime{Hour: 5, Minute: 0, Meridiem: session.AM}
	if sub.End != want {
		t.Errorf("Expected end %s, got %s", want, sub.End)
	}
}
