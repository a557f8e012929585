package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"callfuse/internal/driver"
	"callfuse/internal/ui"
)

type optimizeOutcome struct {
	results []driver.FileResult
	err     error
}

// runOptimizeWithUI drives OptimizeDir behind a Bubble Tea progress view.
// The driver runs in a goroutine and feeds events through a channel; the
// view quits when the channel closes.
func runOptimizeWithUI(ctx context.Context, title string, files []string, dir string, opts driver.Options) ([]driver.FileResult, error) {
	events := make(chan driver.Event, 256)
	outcomeCh := make(chan optimizeOutcome, 1)

	go func() {
		optsCopy := opts
		optsCopy.Progress = driver.ChannelSink{Ch: events}
		res, err := driver.OptimizeDir(ctx, dir, optsCopy)
		outcomeCh <- optimizeOutcome{results: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, files, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
