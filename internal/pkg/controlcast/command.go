package controlcast

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Sections an overlay exposes to remote control.
const (
	SectionAlerts = "alerts"
	SectionVideo  = "video"
	SectionMusic  = "music"
)

// Command is one remote control action aimed at a section of the overlay.
// Commands are transient: serialized, fanned out to live connections, and
// forgotten. A connection that was not live at broadcast time never sees it.
type Command struct {
	Section   string    `json:"section" validate:"required,oneof=alerts video music"`
	Action    string    `json:"action" validate:"required,oneof=toggle_autoplay pause resume skip replay mute unmute volume_up volume_down clear_queue"`
	Timestamp time.Time `json:"timestamp"`
}

var validate = validator.New()

// Validate checks section and action against the allowed values.
func (c *Command) Validate() error {
	return validate.Struct(c)
}

// SectionState is the overlay-visible state of one controllable section.
type SectionState struct {
	Autoplay bool `json:"autoplay"`
	Paused   bool `json:"paused"`
	Muted    bool `json:"muted"`
	Volume   int  `json:"volume"`
}

// State is the full control snapshot pushed to every new connection.
type State struct {
	Alerts SectionState `json:"alerts"`
	Video  SectionState `json:"video"`
	Music  SectionState `json:"music"`
}

// NewState returns the default control state for a fresh streamer session.
func NewState() State {
	def := SectionState{Autoplay: true, Volume: 80}
	return State{Alerts: def, Video: def, Music: def}
}

// Apply folds one command into the snapshot. Actions without a durable state
// effect (skip, replay, clear_queue) leave the snapshot untouched.
func (s *State) Apply(cmd Command) {
	var sec *SectionState
	switch cmd.Section {
	case SectionAlerts:
		sec = &s.Alerts
	case SectionVideo:
		sec = &s.Video
	case SectionMusic:
		sec = &s.Music
	default:
		return
	}

	switch cmd.Action {
	case "toggle_autoplay":
		sec.Autoplay = !sec.Autoplay
	case "pause":
		sec.Paused = true
	case "resume":
		sec.Paused = false
	case "mute":
		sec.Muted = true
	case "unmute":
		sec.Muted = false
	case "volume_up":
		sec.Volume = minInt(sec.Volume+10, 100)
	case "volume_down":
		sec.Volume = maxInt(sec.Volume-10, 0)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
