package main

import (
	"context"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/reelsync/internal/server"
)

// Serve exposes sync status over HTTP while the processor runs in the background.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	c := r.config.Server
	if cmd.IsSet("host") {
		c.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		c.Port = cmd.Int("port")
	}

	handler := server.NewRouter(r.processor, r.store.Queue(), r.logger)
	srv := server.New(c, handler, r.logger)

	g, ctx := errgroup.WithContext(ctx)
	if err := r.startBackground(ctx, g, !cmd.Bool("no-feed")); err != nil {
		return err
	}
	g.Go(func() error {
		return srv.Run(ctx)
	})

	r.logger.Info("status server listening", "addr", srv.Addr())
	r.writePlain("Serving sync status on http://%s\n", srv.Addr())
	return ignoreCanceled(g.Wait())
}
