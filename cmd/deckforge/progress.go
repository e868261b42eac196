package main

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/lamim/deckforge/internal/orchestrator"
	"github.com/lamim/deckforge/pkg/models"
)

type slotFunc func(orchestrator.State) orchestrator.SlotView

func generationSlot(s orchestrator.State) orchestrator.SlotView { return s.Generation }
func conversionSlot(s orchestrator.State) orchestrator.SlotView { return s.Conversion }

// awaitJob shows a progress bar for the job in slot and returns it once
// terminal. A failed job is returned as an error carrying the backend message.
func awaitJob(ctx context.Context, orch *orchestrator.Orchestrator, label string, slot slotFunc) (*models.Job, error) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	unsubscribe := orch.Subscribe(func(s orchestrator.State) {
		view := slot(s)
		if view.Job == nil {
			return
		}
		_ = bar.Set(view.Job.Progress)
		bar.Describe(fmt.Sprintf("%s (%s)", label, view.Job.Status))
	})
	defer unsubscribe()

	s, err := orch.Await(ctx, func(s orchestrator.State) bool {
		return !slot(s).Phase.Awaiting()
	})
	if err != nil {
		return nil, err
	}

	view := slot(s)
	if view.Job == nil || view.Job.Status != models.JobStatusCompleted {
		msg := s.Error
		if msg == "" {
			msg = "job did not complete"
		}
		return nil, fmt.Errorf("%s failed: %s", label, msg)
	}
	return view.Job, nil
}
