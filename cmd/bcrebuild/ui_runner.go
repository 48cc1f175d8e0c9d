package main

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"bcrebuild/internal/driver"
	"bcrebuild/internal/ui"
)

type rebuildOutcome struct {
	results []*driver.Result
	err     error
}

// rebuildWithUI runs driver.RebuildFiles while a progress view follows
// its events. Leaving the view with ctrl+c cancels the remaining files.
func rebuildWithUI(ctx context.Context, cmd *cobra.Command, paths []string, opts driver.Options) ([]*driver.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan driver.Event, 256)
	outcomeCh := make(chan rebuildOutcome, 1)
	go func() {
		withProgress := opts
		withProgress.Progress = driver.ChannelSink{Ch: events}
		results, err := driver.RebuildFiles(ctx, paths, withProgress)
		close(events)
		outcomeCh <- rebuildOutcome{results: results, err: err}
	}()

	model := ui.NewProgressModel("rebuild", paths, events)
	program := tea.NewProgram(model, tea.WithOutput(cmd.OutOrStdout()), tea.WithContext(ctx))
	_, uiErr := program.Run()
	if uiErr != nil || model.Aborted() {
		cancel()
	}
	// The view may stop reading before the batch ends.
	go func() {
		for range events {
		}
	}()

	outcome := <-outcomeCh
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
