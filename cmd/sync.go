package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/reelsync/internal/server"
	"github.com/desertthunder/reelsync/internal/services"
	"github.com/desertthunder/reelsync/internal/tasks"
)

// SyncRun performs one sync run, honoring retry backoff.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, false)
}

// SyncForce performs one sync run immediately.
func (r *Runner) SyncForce(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd, true)
}

func (r *Runner) runSync(ctx context.Context, cmd *cli.Command, force bool) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	asJSON := cmd.Bool("json")

	done := make(chan struct{})
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for {
			select {
			case update := <-r.progress:
				if !asJSON {
					r.writeProgress(update)
				}
			case <-done:
				return
			}
		}
	}()

	run := r.processor.RunOnce
	if force {
		run = r.processor.ForceSync
	}
	result, err := run(ctx)
	close(done)
	<-printed

	if err != nil {
		return err
	}
	if asJSON {
		return r.writeJSON(server.NewRunView(result), true)
	}

	r.writePlain("\n")
	r.writePlainHeader("Sync Complete")
	r.writePlain("%s\n", result.Summary())
	r.writePlain("State: %s  (last sync %s)\n", result.Status.State, result.Status.LastSync)
	if result.Cause != nil {
		r.writePlain("Stopped early: %v\n", result.Cause)
	}
	for _, f := range result.Status.Failures {
		r.writePlain("  failed #%d %s: %s\n", f.Seq, f.Action, f.Message)
	}
	return nil
}

func (r *Runner) writeProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.CheckConnection:
		r.writePlain("🔌 %s\n", update.Message)
	case tasks.Enrich:
		r.writePlain("🔎 %s\n", update.Message)
	case tasks.Push:
		r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, update.Message)
	case tasks.FetchDelta:
		r.writePlain("📥 %s\n", update.Message)
	case tasks.Merge:
		r.writePlain("🔀 %s\n", update.Message)
	}
}

// SyncStatus prints the aggregate sync status.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	status, err := r.processor.Status(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(server.NewStatusView(status), true)
	}

	r.writePlainHeader("Sync Status")
	r.writePlain("State:     %s\n", status.State)
	r.writePlain("Pending:   %d\n", status.PendingCount)
	r.writePlain("Failed:    %d\n", status.FailedCount)
	r.writePlain("Last sync: %s\n", status.LastSync)
	if status.LastError != "" {
		r.writePlain("Error:     %s\n", status.LastError)
	}
	for _, f := range status.Failures {
		r.writePlain("  #%d %s: %s\n", f.Seq, f.Action, f.Message)
	}
	return nil
}

// SyncWatch runs the processor loop until interrupted, printing every status change.
func (r *Runner) SyncWatch(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	statuses, err := r.processor.Subscribe(ctx)
	if err != nil {
		return err
	}
	if err := r.startBackground(ctx, g, !cmd.Bool("no-feed")); err != nil {
		return err
	}
	g.Go(func() error {
		for status := range statuses {
			if status.IsProcessing {
				continue
			}
			r.writePlain("[%s] %s  pending %d  failed %d\n", status.At.Format("15:04:05"), status.State, status.PendingCount, status.FailedCount)
		}
		return nil
	})

	r.logger.Info("watching", "interval", r.config.Sync.Interval.Duration, "on_change", r.config.Sync.OnChange)
	return ignoreCanceled(g.Wait())
}

// startBackground starts the processor loop, the change feed when feed is set, and local change
// following when sync.on_change is enabled.
func (r *Runner) startBackground(ctx context.Context, g *errgroup.Group, feed bool) error {
	g.Go(func() error {
		return ignoreCanceled(r.processor.Run(ctx))
	})

	if feed {
		url, err := services.FeedURL(r.config.Remote.BaseURL, r.config.Remote.FeedURL)
		if err != nil {
			return err
		}
		changeFeed := services.NewChangeFeed(url, r.config.Remote.Token, r.logger)
		g.Go(func() error {
			return ignoreCanceled(changeFeed.Run(ctx, r.processor.OnFeedEvent))
		})
	}

	if r.config.Sync.OnChange {
		changes, err := r.store.Subscribe(ctx)
		if err != nil {
			return err
		}
		g.Go(func() error {
			r.processor.Follow(ctx, changes)
			return nil
		})
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
