package orchestrator

import (
	"fmt"

	"github.com/lamim/deckforge/pkg/models"
)

// Mode is the workflow the user is currently looking at
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeConvert  Mode = "convert"
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGenerate, ModeConvert:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected generate or convert)", s)
	}
}

// Phase is the state of one workflow slot
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAwaitingGeneration Phase = "awaiting_generation"
	PhaseReady              Phase = "ready"
	PhaseAwaitingRender     Phase = "awaiting_render"
	PhaseAwaitingConversion Phase = "awaiting_conversion"
)

// Awaiting reports whether the slot has a request outstanding
func (p Phase) Awaiting() bool {
	return p == PhaseAwaitingGeneration || p == PhaseAwaitingRender || p == PhaseAwaitingConversion
}

// SlotView is the read-only view of one slot
type SlotView struct {
	Phase       Phase
	Job         *models.Job // Latest snapshot of the slot's job, nil when none
	DownloadURL string      // Set once the slot's last job completed
}

// State is a snapshot of the session handed to the presentation layer.
// It shares nothing with the orchestrator.
type State struct {
	Mode       Mode
	Generation SlotView
	Conversion SlotView
	Outline    *models.Outline
	Template   *models.TemplateRef
	Models     []string
	Error      string
}

func (v SlotView) clone() SlotView {
	out := v
	if v.Job != nil {
		job := *v.Job
		out.Job = &job
	}
	return out
}

func (s State) clone() State {
	out := s
	out.Generation = s.Generation.clone()
	out.Conversion = s.Conversion.clone()
	if s.Outline != nil {
		outline := s.Outline.Clone()
		out.Outline = &outline
	}
	if s.Template != nil {
		ref := *s.Template
		out.Template = &ref
	}
	if s.Models != nil {
		out.Models = append([]string(nil), s.Models...)
	}
	return out
}
