// Package merge applies authoritative server records onto the local store.
//
// Movies merge with last-writer-wins on last_modified (ties favor the server), people and lists are
// replaced by key, and deleted ids become soft deletes. Temporary movie keys are remapped to their
// canonical key in the same transaction that rewrites the queue.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/services"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/store"
)

// Result counts what one delta did to the store.
type Result struct {
	Applied  int // movies replaced
	Skipped  int // movies kept because the local copy is newer
	Deleted  int // movies moved to the deleted state
	People   int
	Lists    int
	Dropped  int // rows left out because they failed validation
	LastSync models.Timestamp
}

// Changed reports whether the delta altered anything.
func (r *Result) Changed() bool {
	return r.Applied+r.Deleted+r.People+r.Lists > 0
}

// RemapResult describes a temporary key folded into its canonical key.
type RemapResult struct {
	Temporary       models.MovieID
	Canonical       models.MovieID
	Recommendations int  // votes carried over
	Rewritten       int  // queue entries repointed
	Merged          bool // the canonical movie already existed
	NoOp            bool // the temporary movie was already gone
}

// Resolver merges remote state into a [store.Store].
type Resolver struct {
	store  *store.Store
	logger *log.Logger
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) { r.logger = shared.WithLogger(l, "component", "merge") }
}

// New creates a Resolver for s.
func New(s *store.Store, opts ...Option) *Resolver {
	r := &Resolver{store: s, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply merges delta in one transaction and advances last_sync to the delta's timestamp. Rows that
// fail validation are dropped with a warning and the rest still applies. On a storage error nothing
// is written, so the same window is fetched again on the next run. Applying a delta twice leaves the
// store as applying it once.
func (r *Resolver) Apply(ctx context.Context, delta *models.Delta) (*Result, error) {
	if delta == nil {
		return nil, fmt.Errorf("%w: nil delta", shared.ErrInvalidInput)
	}
	result := &Result{}

	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		tx.Origin = models.OriginRemote
		result.Dropped = len(delta.Dropped)
		for _, cause := range delta.Dropped {
			r.logger.Warn("dropping undecodable row from server", "error", cause)
		}

		for i := range delta.Lists {
			l := delta.Lists[i]
			if err := l.Validate(); err != nil {
				r.logger.Warn("dropping invalid list from server", "list", l.ID, "error", err)
				result.Dropped++
				continue
			}
			if err := tx.Lists.Upsert(ctx, &l); err != nil {
				return fmt.Errorf("failed to merge list %s: %w", l.ID, err)
			}
			tx.Touch(models.EntityList, l.ID)
			result.Lists++
		}

		for i := range delta.People {
			p := delta.People[i]
			if err := p.Validate(); err != nil {
				r.logger.Warn("dropping invalid person from server", "person", p.Name, "error", err)
				result.Dropped++
				continue
			}
			if err := tx.People.Upsert(ctx, &p); err != nil {
				return fmt.Errorf("failed to merge person %s: %w", p.Name, err)
			}
			tx.Touch(models.EntityPerson, p.Name)
			result.People++
		}

		for i := range delta.Movies {
			if err := delta.Movies[i].Movie.Validate(); err != nil {
				r.logger.Warn("dropping invalid movie from server", "movie", delta.Movies[i].Movie.ID, "error", err)
				result.Dropped++
				continue
			}
			applied, err := r.mergeMovie(ctx, tx, &delta.Movies[i])
			if err != nil {
				return fmt.Errorf("failed to merge movie %s: %w", delta.Movies[i].Movie.ID, err)
			}
			if applied {
				result.Applied++
			} else {
				result.Skipped++
			}
		}

		for _, id := range delta.DeletedMovieIDs {
			deleted, err := r.markDeleted(ctx, tx, id)
			if err != nil {
				return fmt.Errorf("failed to delete movie %s: %w", id, err)
			}
			if deleted {
				result.Deleted++
			}
		}

		last, err := tx.Metadata.LastSync(ctx)
		if err != nil {
			return err
		}
		result.LastSync = max(last, delta.Timestamp)
		return tx.Metadata.SetLastSync(ctx, result.LastSync)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("merged delta",
		"applied", result.Applied, "skipped", result.Skipped, "deleted", result.Deleted,
		"people", result.People, "lists", result.Lists, "dropped", result.Dropped, "last_sync", result.LastSync)
	return result, nil
}

// ApplyServerState merges the record the server returned with a conflict reply. It follows the
// same rule as a delta and reports whether the local copy was replaced.
func (r *Resolver) ApplyServerState(ctx context.Context, rec *models.MovieRecord) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("%w: nil server state", shared.ErrInvalidInput)
	}
	if err := rec.Movie.Validate(); err != nil {
		return false, fmt.Errorf("failed to apply server state for %s: %w", rec.Movie.ID, err)
	}
	var applied bool
	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		tx.Origin = models.OriginRemote
		var err error
		applied, err = r.mergeMovie(ctx, tx, rec)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply server state for %s: %w", rec.Movie.ID, err)
	}
	return applied, nil
}

// mergeMovie replaces the local movie with incoming unless the local copy is strictly newer. Votes,
// watch history and status that fail validation are dropped with a warning.
func (r *Resolver) mergeMovie(ctx context.Context, tx *store.Tx, incoming *models.MovieRecord) (bool, error) {
	id := incoming.Movie.ID
	local, exists, err := tx.Movies.LastModified(ctx, id)
	if err != nil {
		return false, err
	}
	if exists && local.Newer(incoming.Movie.LastModified) {
		r.logger.Debug("kept newer local movie", "movie", id, "local", local, "remote", incoming.Movie.LastModified)
		return false, nil
	}

	movie := incoming.Movie
	if err := tx.Movies.Upsert(ctx, &movie); err != nil {
		return false, err
	}

	if _, err := tx.Recommendations.DeleteForMovie(ctx, id); err != nil {
		return false, err
	}
	for _, rec := range incoming.Recommendations {
		rec.MovieID = id
		if err := rec.Validate(); err != nil {
			r.logger.Warn("dropping invalid recommendation from server", "movie", id, "person", rec.Person, "error", err)
			continue
		}
		if err := tx.Recommendations.Upsert(ctx, &rec); err != nil {
			return false, err
		}
	}

	if w := incoming.Watch; w != nil {
		watch := *w
		watch.MovieID = id
		if err := watch.Validate(); err != nil {
			r.logger.Warn("dropping invalid watch history from server", "movie", id, "error", err)
		} else if err := tx.Watches.Upsert(ctx, &watch); err != nil {
			return false, err
		}
	}

	if s := incoming.Status; s != nil {
		status := *s
		status.MovieID = id
		if err := status.Validate(); err != nil {
			r.logger.Warn("dropping invalid status from server", "movie", id, "error", err)
		} else if err := tx.Statuses.Upsert(ctx, &status); err != nil {
			return false, err
		}
	}

	tx.Touch(models.EntityMovie, id.Value)
	return true, nil
}

// markDeleted soft deletes id. Unknown keys are ignored.
func (r *Resolver) markDeleted(ctx context.Context, tx *store.Tx, id models.MovieID) (bool, error) {
	ok, err := tx.Movies.Exists(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	current, err := tx.Statuses.Get(ctx, id)
	switch {
	case err == nil && current.State == models.Deleted:
		return false, nil
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return false, err
	}
	if err := tx.Statuses.Upsert(ctx, &models.Status{MovieID: id, State: models.Deleted}); err != nil {
		return false, err
	}
	tx.Touch(models.EntityMovie, id.Value)
	return true, nil
}

// Remap folds the temporary movie temp into canonical in one transaction:
//   - the canonical movie is created, or merged into when it already exists
//   - votes, watch history and status move across, newer rows winning on collision
//   - the temporary movie is deleted
//   - queue entries referencing temp are repointed at canonical
//   - a deleteMovie tombstone for temp is enqueued
//
// A temp key that no longer exists (already remapped) is a no-op.
func (r *Resolver) Remap(ctx context.Context, temp, canonical models.MovieID) (*RemapResult, error) {
	if !temp.IsTemporary() {
		return nil, fmt.Errorf("%w: %s is not a temporary key", shared.ErrInvalidInput, temp)
	}
	if !canonical.IsCanonical() {
		return nil, fmt.Errorf("%w: %s is not a canonical key", shared.ErrInvalidInput, canonical)
	}

	result := &RemapResult{Temporary: temp, Canonical: canonical}
	at := r.store.Now()

	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		src, err := tx.Record(ctx, temp)
		if errors.Is(err, shared.ErrNotFound) {
			result.NoOp = true
			return nil
		}
		if err != nil {
			return err
		}

		dst, err := tx.Record(ctx, canonical)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			dst = nil
		case err != nil:
			return err
		default:
			result.Merged = true
		}

		if err := tx.Movies.Upsert(ctx, mergedMovie(src, dst, canonical)); err != nil {
			return err
		}

		for _, rec := range src.Recommendations {
			if dst != nil {
				if existing, ok := dst.Vote(rec.Person); ok && !rec.RecommendedAt.Newer(existing.RecommendedAt) {
					continue
				}
			}
			rec.MovieID = canonical
			if err := tx.Recommendations.Upsert(ctx, &rec); err != nil {
				return err
			}
			result.Recommendations++
		}

		if w := src.Watch; w != nil && (dst == nil || dst.Watch == nil || w.WatchedAt.Newer(dst.Watch.WatchedAt)) {
			watch := *w
			watch.MovieID = canonical
			if err := tx.Watches.Upsert(ctx, &watch); err != nil {
				return err
			}
		}

		if s := src.Status; s != nil && (dst == nil || dst.Status == nil || !dst.Movie.LastModified.Newer(src.Movie.LastModified)) {
			status := *s
			status.MovieID = canonical
			if err := tx.Statuses.Upsert(ctx, &status); err != nil {
				return err
			}
		}

		if err := tx.Movies.Delete(ctx, temp); err != nil {
			return err
		}
		tx.Touch(models.EntityMovie, temp.Value)
		tx.Touch(models.EntityMovie, canonical.Value)

		n, err := tx.RewriteMovie(ctx, temp, canonical)
		if err != nil {
			return err
		}
		result.Rewritten = n

		_, err = tx.Enqueue(ctx, models.ActionDeleteMovie, temp.Value, models.DeleteMoviePayload{MovieID: temp.Value}, at)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to remap %s to %s: %w", temp, canonical, err)
	}

	if result.NoOp {
		r.logger.Debug("temporary movie already remapped", "temp", temp, "canonical", canonical)
	} else {
		r.logger.Info("remapped movie", "temp", temp, "canonical", canonical,
			"recommendations", result.Recommendations, "rewritten", result.Rewritten, "merged", result.Merged)
	}
	return result, nil
}

// mergedMovie is the canonical row after a remap. Existing canonical fields win; blanks are filled
// from the temporary movie. last_modified is the newer of the two rows, the same value replaying the
// rewritten queue produces.
func mergedMovie(src, dst *models.MovieRecord, canonical models.MovieID) *models.Movie {
	m := src.Movie
	if dst != nil {
		m = dst.Movie
		if m.Title == "" {
			m.Title = src.Movie.Title
		}
		if m.Year == 0 {
			m.Year = src.Movie.Year
		}
		if len(m.TMDB) == 0 {
			m.TMDB = src.Movie.TMDB
		}
		if len(m.OMDB) == 0 {
			m.OMDB = src.Movie.OMDB
		}
		m.LastModified = max(src.Movie.LastModified, dst.Movie.LastModified)
	}
	m.ID = canonical
	return &m
}

// Enrich resolves the canonical key of a temporary movie through enricher and remaps it.
func (r *Resolver) Enrich(ctx context.Context, enricher services.Enricher, temp models.MovieID) (*RemapResult, error) {
	if enricher == nil {
		return nil, fmt.Errorf("%w: no enrichment service configured", shared.ErrServiceUnavailable)
	}
	rec, err := r.store.Movie(ctx, temp)
	if err != nil {
		return nil, fmt.Errorf("failed to load movie %s: %w", temp, err)
	}
	if !rec.Movie.ID.IsTemporary() {
		return nil, fmt.Errorf("%w: %s already has a canonical key", shared.ErrInvalidInput, temp)
	}

	canonical, err := enricher.Resolve(ctx, rec.Movie.Title, rec.Movie.Year)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", rec.Movie.Title, err)
	}
	return r.Remap(ctx, temp, canonical)
}

// EnrichAll tries to resolve every temporary movie. Movies without a match stay temporary; the
// first error other than [shared.ErrNoMatch] stops the pass.
func (r *Resolver) EnrichAll(ctx context.Context, enricher services.Enricher) ([]*RemapResult, error) {
	kind := models.Temporary
	temps, err := r.store.Movies(ctx, store.MovieFilter{Kind: &kind})
	if err != nil {
		return nil, fmt.Errorf("failed to list temporary movies: %w", err)
	}

	var results []*RemapResult
	for _, rec := range temps {
		res, err := r.Enrich(ctx, enricher, rec.Movie.ID)
		if errors.Is(err, shared.ErrNoMatch) {
			r.logger.Debug("no canonical match", "movie", rec.Movie.ID, "title", rec.Movie.Title)
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
