// Quadbox phase catalog.
//
// Every step of the game is a named phase with a handler kind, a nominal
// duration (fixed, ranged, or computed per instance), and declarative UI
// rules. The scheduler looks phases up by name; dispatch is a closed switch
// over phaseKind, so adding a kind without a handler fails to compile.

package main

import (
	"strings"
	"time"
)

type phaseKind int

const (
	phaseTimed phaseKind = iota
	phaseIdle
	phaseValidation
	phaseBreathQuestion
	phaseAction
	phaseChoice
	phaseGridChoice
	phaseTrivia
	phaseReplay
)

// uiRules is the declarative half of a catalog entry, forwarded to the
// rendering collaborator verbatim.
type uiRules struct {
	InfoColor   string `json:"info_color,omitempty"`
	InfoText    string `json:"info_text,omitempty"`
	VideoText   string `json:"video_text,omitempty"`
	VideoEffect string `json:"video_effect,omitempty"`
	ShowCancel  bool   `json:"show_cancel,omitempty"`

	// cancelTarget is unshifted onto the queue when the player resolves a
	// cancellable phase manually.
	cancelTarget string

	showIdleCountdown bool
}

type phaseRules struct {
	kind     phaseKind
	duration time.Duration

	// minDuration/maxDuration describe a ranged duration (idle gap); they
	// apply only when duration is zero.
	minDuration time.Duration
	maxDuration time.Duration

	ui uiRules
}

// phaseInstance is one queued phase. Ephemeral: built by the sequence
// builder, consumed by the scheduler, then discarded.
type phaseInstance struct {
	name string

	// duration overrides the catalog default when non-zero.
	duration time.Duration

	// action is fixed at sequence-build time for ACTION_MAIN.
	action *actionDef

	// nextEventName labels an idle gap with the upcoming event.
	nextEventName string

	// loop is the 1-based breath cycle number for PUFF_INHALE/HOLD/EXHALE.
	loop int
}

// phaseGroup buckets phase names for cancel-button scoring.
func phaseGroup(name string) string {
	switch {
	case strings.HasPrefix(name, "PUFF_"):
		return "puff"
	case strings.HasPrefix(name, "SNIFF"):
		return "sniff"
	case strings.HasPrefix(name, "MASK"):
		return "mask"
	case strings.HasPrefix(name, "ACTION"):
		return "action"
	default:
		return "other"
	}
}

var defaultCatalog = map[string]phaseRules{
	"IDLE_GAP": {
		kind:        phaseIdle,
		minDuration: 0,
		maxDuration: 99 * time.Second,
		ui: uiRules{
			InfoColor:         "vibe_base",
			showIdleCountdown: true,
		},
	},

	// Puff
	"READY_TO_PUFF": {
		kind:     phaseTimed,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Get Ready to Light",
			VideoText: "READY",
		},
	},
	"PUFF_LIGHT": {
		kind:     phaseTimed,
		duration: 25 * time.Second,
		ui: uiRules{
			InfoColor:    "#FF4500",
			InfoText:     "LIGHT",
			VideoText:    "LIGHT",
			VideoEffect:  "light",
			ShowCancel:   true,
			cancelTarget: "IDLE_GAP",
		},
	},
	"PUFF_SMOKE": {
		kind:     phaseTimed,
		duration: 12 * time.Second,
		ui: uiRules{
			InfoColor:    "linear-gradient(to bottom, #FFA500, #808080)",
			InfoText:     "SMOKE",
			VideoText:    "SMOKE",
			VideoEffect:  "smoke",
			ShowCancel:   true,
			cancelTarget: "IDLE_GAP",
		},
	},
	"PUFF_INHALE": {
		kind:     phaseTimed,
		duration: 5 * time.Second,
		ui: uiRules{
			InfoColor:    "#008000",
			InfoText:     "INHALE",
			VideoText:    "INHALE",
			VideoEffect:  "inhale",
			ShowCancel:   true,
			cancelTarget: "PUFF_VALIDATION",
		},
	},
	"PUFF_HOLD": {
		kind:     phaseTimed,
		duration: 4 * time.Second,
		ui: uiRules{
			InfoColor:    "#808080",
			InfoText:     "HOLD",
			VideoText:    "HOLD",
			VideoEffect:  "hold",
			ShowCancel:   true,
			cancelTarget: "PUFF_VALIDATION",
		},
	},
	"PUFF_EXHALE": {
		kind:     phaseTimed,
		duration: 5 * time.Second,
		ui: uiRules{
			InfoColor:    "#0000FF",
			InfoText:     "EXHALE",
			VideoText:    "EXHALE",
			VideoEffect:  "exhale",
			ShowCancel:   true,
			cancelTarget: "PUFF_VALIDATION",
		},
	},
	"PUFF_VALIDATION": {
		kind:     phaseValidation,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Did you complete the puff?",
		},
	},
	"BREATH_COUNT_QUESTION": {
		kind:     phaseBreathQuestion,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "How many breaths?",
		},
	},

	// Sniff
	"READY_TO_SNIFF": {
		kind:     phaseTimed,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Get ready to sniff",
			VideoText: "READY",
		},
	},
	"SNIFF_MAIN": {
		kind:     phaseTimed,
		duration: 8 * time.Second,
		ui: uiRules{
			InfoColor:   "#FFFF00",
			InfoText:    "SNIFF",
			VideoText:   "SNIFF",
			VideoEffect: "sniff",
			// no manual abort; validation handles the outcome
		},
	},
	"SNIFF_VALIDATION": {
		kind:     phaseValidation,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Did you complete the sniff?",
		},
	},

	// Mask
	"READY_FOR_MASK": {
		kind:     phaseTimed,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Get ready for the mask",
			VideoText: "READY",
		},
	},
	"MASK_MAIN": {
		kind:     phaseTimed,
		duration: 20 * time.Second,
		ui: uiRules{
			InfoColor:    "#36454F",
			InfoText:     "Keep the mask on",
			VideoText:    "MASK",
			VideoEffect:  "mask",
			ShowCancel:   true,
			cancelTarget: "MASK_VALIDATION",
		},
	},
	"MASK_VALIDATION": {
		kind:     phaseValidation,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Did you keep it on?",
		},
	},

	// Actions
	"READY_TO_ACTION": {
		kind:     phaseTimed,
		duration: 5 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Get Ready",
			VideoText: "READY",
		},
	},
	"ACTION_MAIN": {
		kind: phaseAction,
		// duration set per-action at sequence-build time
		ui: uiRules{
			InfoColor:    "vibe_accent",
			InfoText:     "ACTION",
			VideoText:    "ACTION",
			VideoEffect:  "action",
			ShowCancel:   true,
			cancelTarget: "IDLE_GAP",
		},
	},
	"ACTION_VALIDATION": {
		kind:     phaseValidation,
		duration: 10 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Did you finish the action?",
		},
	},

	// Choice / grid / replay / trivia / chill / peace
	"YOU_CHOOSE_OVERLAY": {
		kind:     phaseChoice,
		duration: 20 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Choose your next event",
		},
	},
	"GRID_CHOICE_OVERLAY": {
		kind:     phaseGridChoice,
		duration: 20 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Choose your next video",
		},
	},
	"REPLAY_VIDEO_MAIN": {
		kind: phaseReplay,
		// duration computed from the clip, capped at 60s
		ui: uiRules{
			InfoColor:   "vibe_base",
			InfoText:    "REPLAY",
			VideoText:   "REPLAY",
			VideoEffect: "action",
		},
	},
	"TRIVIA_MAIN": {
		kind:     phaseTrivia,
		duration: 90 * time.Second,
		ui: uiRules{
			InfoColor:   "#6a0dad",
			InfoText:    "Trivia Question",
			VideoEffect: "trivia",
		},
	},
	"CHILL_MAIN": {
		kind:     phaseTimed,
		duration: 30 * time.Second,
		ui: uiRules{
			InfoColor: "vibe_base",
			InfoText:  "Chill for 30 seconds",
		},
	},
	"PEACE_MAIN": {
		kind:     phaseTimed,
		duration: 90 * time.Second,
		ui: uiRules{
			InfoColor:   "#FFFFFF",
			InfoText:    "Chill for 90 seconds",
			VideoEffect: "peace",
		},
	},
}
