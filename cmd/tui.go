package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/ui"
)

// TUI launches the terminal sync monitor with the processor loop running behind it.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())
	r.SetLogger(fileLogger)

	if err := r.open(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if err := r.startBackground(ctx, g, true); err != nil {
		return err
	}

	model := ui.NewModel(ctx, r.store, r.processor, r.progress)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	_, runErr := p.Run()
	interrupted := ctx.Err() != nil
	cancel()
	if err := g.Wait(); err != nil {
		r.logger.Warn("background sync stopped", "error", err)
	}
	if runErr != nil && !interrupted {
		return fmt.Errorf("error running TUI: %w", runErr)
	}
	return nil
}
