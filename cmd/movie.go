package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/reelsync/internal/formatter"
	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/store"
)

const dateLayout = "2006-01-02"

// movieArg parses a required movie key positional argument.
func movieArg(cmd *cli.Command, name string) (models.MovieID, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return models.MovieID{}, fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return models.ParseMovieID(v)
}

func requiredArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// MovieAdd creates a movie, optionally recording a first recommendation.
func (r *Runner) MovieAdd(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	title := strings.TrimSpace(cmd.StringArg("title"))
	rec, err := r.store.AddMovie(ctx, store.NewMovie{ID: cmd.String("id"), Title: title, Year: cmd.Int("year")})
	if err != nil {
		return err
	}

	if person := strings.TrimSpace(cmd.String("by")); person != "" {
		vote, err := models.ParseVote(cmd.String("vote"))
		if err != nil {
			return err
		}
		if err := r.store.AddRecommendation(ctx, rec.Movie.ID, person, vote); err != nil {
			return err
		}
	}

	r.logger.Info("movie added", "movie", rec.Movie.ID, "temporary", rec.Movie.ID.IsTemporary())
	r.writePlain("✓ Added %s (%s)\n", rec.Movie.Title, rec.Movie.ID)
	if rec.Movie.ID.IsTemporary() {
		r.writePlain("  Temporary key; run 'reelsync movie enrich %s' or sync to resolve it\n", rec.Movie.ID)
	}
	return nil
}

// MovieVote records or replaces a vote.
func (r *Runner) MovieVote(ctx context.Context, cmd *cli.Command) error {
	id, err := movieArg(cmd, "movie")
	if err != nil {
		return err
	}
	person, err := requiredArg(cmd, "person")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	vote := models.Upvote
	if cmd.Bool("down") {
		vote = models.Downvote
	}
	if err := r.store.AddRecommendation(ctx, id, person, vote); err != nil {
		return err
	}
	r.writePlain("✓ %s: %s by %s\n", id, vote, person)
	return nil
}

// MovieUnvote withdraws a vote.
func (r *Runner) MovieUnvote(ctx context.Context, cmd *cli.Command) error {
	id, err := movieArg(cmd, "movie")
	if err != nil {
		return err
	}
	person, err := requiredArg(cmd, "person")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.store.RemoveRecommendation(ctx, id, person); err != nil {
		return err
	}
	r.writePlain("✓ Removed %s's vote on %s\n", person, id)
	return nil
}

// MovieWatch marks a movie watched with a rating.
func (r *Runner) MovieWatch(ctx context.Context, cmd *cli.Command) error {
	id, err := movieArg(cmd, "movie")
	if err != nil {
		return err
	}
	rating := cmd.Float("rating")
	if err := models.ValidateRating(rating); err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	watchedAt := r.store.Now()
	if date := cmd.String("date"); date != "" {
		t, err := time.Parse(dateLayout, date)
		if err != nil {
			return fmt.Errorf("%w: date %q, expected YYYY-MM-DD", shared.ErrInvalidArgument, date)
		}
		watchedAt = models.FromTime(t)
	}

	if err := r.store.MarkWatched(ctx, id, rating, watchedAt); err != nil {
		return err
	}
	r.writePlain("✓ Watched %s on %s (%.1f/10)\n", id, watchedAt.Format(dateLayout), rating)
	return nil
}

// MovieStatus moves a movie to another state.
func (r *Runner) MovieStatus(ctx context.Context, cmd *cli.Command) error {
	id, err := movieArg(cmd, "movie")
	if err != nil {
		return err
	}
	raw, err := requiredArg(cmd, "state")
	if err != nil {
		return err
	}
	state, err := models.ParseState(raw)
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.store.UpdateStatus(ctx, id, state, cmd.String("list")); err != nil {
		return err
	}
	r.writePlain("✓ %s is now %s\n", id, state)
	return nil
}

// MovieDelete deletes a movie.
func (r *Runner) MovieDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := movieArg(cmd, "movie")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	if err := r.store.DeleteMovie(ctx, id); err != nil {
		return err
	}
	r.writePlain("✓ Deleted %s\n", id)
	return nil
}

// MovieShow prints one movie with its votes and watch.
func (r *Runner) MovieShow(ctx context.Context, cmd *cli.Command) error {
	id, err := movieArg(cmd, "movie")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	rec, err := r.store.Movie(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(formatter.NewMovieExport(*rec), true)
	}

	title := rec.Movie.Title
	if rec.Movie.Year > 0 {
		title = fmt.Sprintf("%s (%d)", title, rec.Movie.Year)
	}
	r.writePlainHeader(title)
	r.writePlain("ID:       %s", rec.Movie.ID)
	if rec.Movie.ID.IsTemporary() {
		r.writePlain(" (temporary)")
	}
	r.writePlain("\nStatus:   %s", rec.StateOrDefault())
	if rec.Status != nil && rec.Status.CustomListID != "" {
		r.writePlain(" in %s", rec.Status.CustomListID)
	}
	r.writePlain("\nScore:    %+d\n", rec.Score())
	r.writePlain("Modified: %s\n", rec.Movie.LastModified)
	if rec.Watch != nil {
		r.writePlain("Watched:  %s (%.1f/10)\n", rec.Watch.WatchedAt.Format(dateLayout), rec.Watch.Rating)
	}
	if len(rec.Recommendations) > 0 {
		r.writePlainln("Recommendations:")
		for _, v := range rec.Recommendations {
			r.writePlain("  %-8s %s (%s)\n", v.Vote, v.Person, v.RecommendedAt.Format(dateLayout))
		}
	}
	return nil
}

// MovieList prints movies matching the filter flags.
func (r *Runner) MovieList(ctx context.Context, cmd *cli.Command) error {
	filter := store.MovieFilter{
		Person: cmd.String("person"),
		List:   cmd.String("list"),
		Limit:  cmd.Int("limit"),
	}
	if s := cmd.String("status"); s != "" {
		state, err := models.ParseState(s)
		if err != nil {
			return err
		}
		filter.State = state
	}
	if cmd.Bool("temporary") {
		kind := models.Temporary
		filter.Kind = &kind
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	movies, err := r.store.Movies(ctx, filter)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]formatter.MovieExport, 0, len(movies))
		for _, m := range movies {
			out = append(out, formatter.NewMovieExport(m))
		}
		return r.writeJSON(out, true)
	}

	data, err := formatter.ExportToText(movies)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// MovieEnrich resolves one temporary movie, or all of them, through the metadata service.
func (r *Runner) MovieEnrich(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	if cmd.StringArg("movie") == "" {
		results, err := r.resolver.EnrichAll(ctx, r.enricher)
		for _, res := range results {
			r.writePlain("✓ %s → %s\n", res.Temporary, res.Canonical)
		}
		if err != nil {
			return err
		}
		r.writePlain("Resolved %d temporary movie(s)\n", len(results))
		return nil
	}

	id, err := movieArg(cmd, "movie")
	if err != nil {
		return err
	}
	res, err := r.resolver.Enrich(ctx, r.enricher, id)
	if err != nil {
		return err
	}
	r.writePlain("✓ %s → %s\n", res.Temporary, res.Canonical)
	return nil
}

// MovieRemap replaces a temporary key with a canonical one everywhere.
func (r *Runner) MovieRemap(ctx context.Context, cmd *cli.Command) error {
	temp, err := movieArg(cmd, "temp")
	if err != nil {
		return err
	}
	canonical, err := movieArg(cmd, "canonical")
	if err != nil {
		return err
	}
	if err := r.open(ctx); err != nil {
		return err
	}

	res, err := r.resolver.Remap(ctx, temp, canonical)
	if err != nil {
		return err
	}
	if res.NoOp {
		r.writePlain("%s was already remapped\n", temp)
		return nil
	}
	r.writePlain("✓ %s → %s (%d vote(s), %d queued action(s) rewritten", res.Temporary, res.Canonical, res.Recommendations, res.Rewritten)
	if res.Merged {
		r.writePlain(", merged into existing movie")
	}
	r.writePlain(")\n")
	return nil
}
