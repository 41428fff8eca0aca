package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/reelsync/internal/formatter"
)

// Export writes the local snapshot in the requested format.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	snap, err := r.store.Snapshot(ctx)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(snap, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("export written", "path", path, "format", format, "movies", len(snap.Movies))
	r.writePlain("✓ Exported %d movie(s) to %s\n", len(snap.Movies), path)
	return nil
}
