package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/reelsync/internal/formatter"
	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/server"
	"github.com/desertthunder/reelsync/internal/shared"
)

func seqArg(cmd *cli.Command) (int64, error) {
	raw, err := requiredArg(cmd, "seq")
	if err != nil {
		return 0, err
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: seq %q", shared.ErrInvalidArgument, raw)
	}
	return seq, nil
}

// QueueList prints queued mutations, head first.
func (r *Runner) QueueList(ctx context.Context, cmd *cli.Command) error {
	state, err := models.ParseEntryState(cmd.String("state"))
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	entries, err := r.store.Queue().List(ctx, state)
	if err != nil {
		return err
	}

	switch {
	case cmd.Bool("json"):
		views := make([]server.EntryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, server.NewEntryView(e))
		}
		return r.writeJSON(views, true)
	case cmd.Bool("csv"):
		data, err := formatter.QueueToCSV(entries)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}
	return r.writePlain("%s", formatter.QueueToText(entries))
}

// QueueRetry resets one failed entry, or all of them with --all.
func (r *Runner) QueueRetry(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("all") {
		if err := r.open(ctx); err != nil {
			return err
		}
		n, err := r.store.Queue().RetryAll(ctx)
		if err != nil {
			return err
		}
		r.writePlain("✓ %d entr(ies) back to pending\n", n)
		return nil
	}

	seq, err := seqArg(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.store.Queue().Retry(ctx, seq); err != nil {
		return err
	}
	r.writePlain("✓ #%d back to pending\n", seq)
	return nil
}

// QueueClear drops an entry without sending it. The local write it carried stays applied.
func (r *Runner) QueueClear(ctx context.Context, cmd *cli.Command) error {
	seq, err := seqArg(cmd)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}
	if err := r.store.Queue().Clear(ctx, seq); err != nil {
		return err
	}
	r.writePlain("✓ Cleared #%d\n", seq)
	return nil
}

type queueStats struct {
	Counts map[models.EntryState]int `json:"counts"`
	Log    []logView                 `json:"log"`
}

type logView struct {
	Seq        int64             `json:"seq"`
	Action     models.ActionKind `json:"action"`
	MovieRef   string            `json:"movie,omitempty"`
	Kind       models.LogKind    `json:"kind"`
	Message    string            `json:"message"`
	RecordedAt int64             `json:"recorded_at"`
}

// QueueStats prints per-state counts and the most recent sync log records.
func (r *Runner) QueueStats(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	counts, err := r.store.Queue().Counts(ctx)
	if err != nil {
		return err
	}
	entries, err := r.store.Queue().Log(ctx, "", cmd.Int("limit"))
	if err != nil {
		return err
	}

	stats := queueStats{Counts: counts, Log: make([]logView, 0, len(entries))}
	for _, e := range entries {
		stats.Log = append(stats.Log, logView{
			Seq: e.Seq, Action: e.Action, MovieRef: e.MovieRef, Kind: e.Kind, Message: e.Message, RecordedAt: int64(e.RecordedAt),
		})
	}
	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}

	r.writePlainHeader("Mutation Queue")
	for _, state := range []models.EntryState{models.EntryPending, models.EntryProcessing, models.EntryFailed} {
		r.writePlain("%-11s %d\n", state+":", counts[state])
	}
	if len(stats.Log) > 0 {
		r.writePlainln("Recent sync log:")
		for _, e := range entries {
			r.writePlain("  %s  %-9s #%d %s %s  %s\n", e.RecordedAt, e.Kind, e.Seq, e.Action, e.MovieRef, e.Message)
		}
	}
	return nil
}
