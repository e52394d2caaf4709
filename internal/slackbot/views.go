package slackbot

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/studyspot/internal/session"
	"github.com/goodtune/studyspot/internal/study"
	"github.com/slack-go/slack"
)

// Callback and action identifiers
const (
	CallbackStudyModal   = "study_modal"
	CallbackAlreadyModal = "study_already_modal"
	ActionCancel         = "study_cancel"
)

// Block and element identifiers of the share-location modal
const (
	blockLocation     = "location_block"
	actionLocation    = "location_select"
	blockSpot         = "other_location_block"
	actionSpot        = "other_location_input"
	blockCompanions   = "studying_with_block"
	actionCompanions  = "studying_with_input"
	blockDescription  = "description_block"
	actionDescription = "description_input"

	blockStart          = "start_time_actions"
	actionStartHour     = "start_hour_input"
	actionStartMinute   = "start_minute_input"
	actionStartMeridiem = "start_ampm_input"

	blockEnd          = "end_time_actions"
	actionEndHour     = "end_hour_input"
	actionEndMinute   = "end_minute_input"
	actionEndMeridiem = "end_ampm_input"

	blockCancelPrompt = "study_cancel_ephemeral_actions"
)

// timeSelectActions are acknowledged without further work; their values are
// read from the view state on submit
var timeSelectActions = map[string]bool{
	actionStartHour:     true,
	actionStartMinute:   true,
	actionStartMeridiem: true,
	actionEndHour:       true,
	actionEndMinute:     true,
	actionEndMeridiem:   true,
}

func plainText(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func option(value, text string) *slack.OptionBlockObject {
	return slack.NewOptionBlockObject(value, plainText(text), nil)
}

func hourOption(h int) *slack.OptionBlockObject {
	return option(strconv.Itoa(h), strconv.Itoa(h))
}

func minuteOption(m int) *slack.OptionBlockObject {
	return option(strconv.Itoa(m), fmt.Sprintf("%02d", m))
}

func meridiemOption(m string) *slack.OptionBlockObject {
	return option(m, m)
}

// clockSelects builds the hour, minute and AM/PM selects preset to initial
func clockSelects(blockID, hourID, minuteID, meridiemID string, initial session.ClockTime) *slack.ActionBlock {
	hours := make([]*slack.OptionBlockObject, 0, 12)
	for h := 1; h <= 12; h++ {
		hours = append(hours, hourOption(h))
	}
	minutes := make([]*slack.OptionBlockObject, 0, 60)
	for m := 0; m < 60; m++ {
		minutes = append(minutes, minuteOption(m))
	}

	hour := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("Hour"), hourID, hours...)
	hour.InitialOption = hourOption(initial.Hour)

	minute := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("Min"), minuteID, minutes...)
	minute.InitialOption = minuteOption(initial.Minute)

	meridiem := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plainText("AM/PM"), meridiemID,
		meridiemOption(session.AM), meridiemOption(session.PM))
	meridiem.InitialOption = meridiemOption(initial.Meridiem)

	return slack.NewActionBlock(blockID, hour, minute, meridiem)
}

func header(blockID, text string) *slack.HeaderBlock {
	return &slack.HeaderBlock{
		Type:    slack.MBTHeader,
		BlockID: blockID,
		Text:    slack.NewTextBlockObject(slack.PlainTextType, text, true, false),
	}
}

func input(blockID, label string, optional bool, element slack.BlockElement) *slack.InputBlock {
	return &slack.InputBlock{
		Type:     slack.MBTInput,
		BlockID:  blockID,
		Label:    plainText(label),
		Element:  element,
		Optional: optional,
	}
}

// DefaultWindow returns the preset start (now) and end (next full hour) for
// the share-location form
func DefaultWindow(now time.Time, loc *time.Location) (session.ClockTime, session.ClockTime) {
	if loc != nil {
		now = now.In(loc)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour()+1, 0, 0, 0, now.Location())
	return session.ClockOf(now), session.ClockOf(next)
}

// StudyModal builds the share-location form. replyChannel is carried in the
// private metadata so results can be shown where the command was typed.
func StudyModal(locations []string, now time.Time, loc *time.Location, replyChannel string) slack.ModalViewRequest {
	locationOptions := make([]*slack.OptionBlockObject, 0, len(locations))
	for _, l := range locations {
		locationOptions = append(locationOptions, option(l, l))
	}

	locationSelect := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic,
		plainText("Where are you studying?"), actionLocation, locationOptions...)

	spot := slack.NewPlainTextInputBlockElement(plainText("e.g. 4th floor Langson"), actionSpot)

	companions := slack.NewOptionsMultiSelectBlockElement(slack.MultiOptTypeUser,
		plainText("Tag people studying with you"), actionCompanions)

	description := slack.NewPlainTextInputBlockElement(
		plainText("e.g. Studying for CS161, feel free to join!"), actionDescription)
	description.Multiline = true

	start, end := DefaultWindow(now, loc)

	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      CallbackStudyModal,
		Title:           plainText("Share study location"),
		Submit:          plainText("Announce"),
		PrivateMetadata: replyChannel,
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				input(blockLocation, "Location", false, locationSelect),
				input(blockSpot, "Specific spot (optional)", true, spot),
				input(blockCompanions, "Studying with (optional)", true, companions),
				input(blockDescription, "Description (optional)", true, description),
				header("start_time_header", "Start time"),
				clockSelects(blockStart, actionStartHour, actionStartMinute, actionStartMeridiem, start),
				header("end_time_header", "End time"),
				clockSelects(blockEnd, actionEndHour, actionEndMinute, actionEndMeridiem, end),
			},
		},
	}
}

// AlreadyStudyingModal offers to cancel the user's live session. Its private
// metadata carries the session id.
func AlreadyStudyingModal(s session.Session, loc *time.Location) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      CallbackAlreadyModal,
		Title:           plainText("Already studying"),
		Close:           plainText("Keep it"),
		Submit:          plainText("Cancel & create new"),
		PrivateMetadata: s.ID,
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				markdownSection(study.AlreadyStudyingText(s, loc)),
			},
		},
	}
}

// AnnouncementBlocks renders the public announcement
func AnnouncementBlocks(a study.Announcement) []slack.Block {
	blocks := []slack.Block{markdownSection(a.Headline)}
	if a.Description != "" {
		blocks = append(blocks, markdownSection("_"+a.Description+"_"))
	}
	return blocks
}

// CancelPromptBlocks renders the owner-only cancel button for sessionID
func CancelPromptBlocks(sessionID string) []slack.Block {
	button := slack.NewButtonBlockElement(ActionCancel, sessionID, plainText("Cancel announcement"))
	return []slack.Block{
		markdownSection("Cancel your study announcement?"),
		slack.NewActionBlock(blockCancelPrompt, button),
	}
}
