package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"movecheck/internal/bundle"
	"movecheck/internal/ui"
	"movecheck/internal/verifier"
)

type verifyOutcome struct {
	report *verifier.Report
	err    error
}

// runVerifyWithUI verifies b while a progress view renders the events.
func runVerifyWithUI(ctx context.Context, title string, units []string, b *bundle.Bundle,
	opts verifier.Options,
) (*verifier.Report, error) {
	events := make(chan verifier.Event, 256)
	outcomeCh := make(chan verifyOutcome, 1)

	go func() {
		opts.Progress = verifier.ChannelSink{Ch: events}
		report, err := verifier.VerifyBundle(ctx, b, opts)
		outcomeCh <- verifyOutcome{report: report, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, units, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	if uiErr != nil {
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.report, uiErr
	}
	return outcome.report, outcome.err
}

// progressEnabled resolves the --ui flag. auto shows the view when stdout is a
// terminal; JSON output never shows it.
func progressEnabled(value, format string) (bool, error) {
	var on bool
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		on = isTerminal(os.Stdout)
	case "on":
		on = true
	case "off":
		on = false
	default:
		return false, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
	return on && format != "json", nil
}
