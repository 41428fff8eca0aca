package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

// apply performs one action against the transaction. Optimistic writes and [Store.Replay] both go
// through here, which keeps a replayed queue identical to the writes that produced it.
func (t *Tx) apply(ctx context.Context, kind models.ActionKind, payload json.RawMessage, at models.Timestamp) error {
	switch kind {
	case models.ActionAddMovie:
		var p models.MoviePayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyAddMovie(ctx, p, at)
	case models.ActionAddRecommendation:
		var p models.RecommendationPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyAddRecommendation(ctx, p, at)
	case models.ActionRemoveRecommendation:
		var p models.RemoveRecommendationPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyRemoveRecommendation(ctx, p, at)
	case models.ActionMarkWatched:
		var p models.WatchPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyMarkWatched(ctx, p, at)
	case models.ActionUpdateStatus:
		var p models.StatusPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyUpdateStatus(ctx, p, at)
	case models.ActionDeleteMovie:
		var p models.DeleteMoviePayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyDeleteMovie(ctx, p, at)
	case models.ActionAddPerson, models.ActionUpdatePerson, models.ActionUpdatePersonTrust:
		var p models.PersonPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyPerson(ctx, kind, p, at)
	case models.ActionDeletePerson:
		var p models.DeletePersonPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyDeletePerson(ctx, p)
	case models.ActionAddList, models.ActionUpdateList:
		var p models.ListPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyList(ctx, kind, p, at)
	case models.ActionDeleteList:
		var p models.DeleteListPayload
		if err := decode(kind, payload, &p); err != nil {
			return err
		}
		return t.applyDeleteList(ctx, p, at)
	}
	return fmt.Errorf("%w: unknown action %q", shared.ErrValidation, kind)
}

func decode(kind models.ActionKind, payload json.RawMessage, dst any) error {
	if err := gojson.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", shared.ErrValidation, kind, err)
	}
	return nil
}

// existingMovie parses key and requires the movie to be present.
func (t *Tx) existingMovie(ctx context.Context, key string) (models.MovieID, error) {
	id, err := models.ParseMovieID(key)
	if err != nil {
		return id, err
	}
	ok, err := t.Movies.Exists(ctx, id)
	if err != nil {
		return id, err
	}
	if !ok {
		return id, fmt.Errorf("%w: movie %s", shared.ErrNotFound, id)
	}
	return id, nil
}

func (t *Tx) touchMovie(ctx context.Context, id models.MovieID, at models.Timestamp) error {
	if err := t.Movies.Touch(ctx, id, at); err != nil {
		return err
	}
	t.Touch(models.EntityMovie, id.Value)
	return nil
}

func (t *Tx) applyAddMovie(ctx context.Context, p models.MoviePayload, at models.Timestamp) error {
	id, err := models.ParseMovieID(p.MovieID)
	if err != nil {
		return err
	}

	movie, err := t.Movies.Get(ctx, id)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		movie = &models.Movie{ID: id}
	case err != nil:
		return err
	}

	if p.Title != "" {
		movie.Title = p.Title
	}
	if p.Year != 0 {
		movie.Year = p.Year
	}
	if len(p.TMDB) > 0 {
		movie.TMDB = p.TMDB
	}
	if len(p.OMDB) > 0 {
		movie.OMDB = p.OMDB
	}
	movie.LastModified = at

	if err := t.Movies.Upsert(ctx, movie); err != nil {
		return err
	}
	t.Touch(models.EntityMovie, id.Value)
	return nil
}

func (t *Tx) applyAddRecommendation(ctx context.Context, p models.RecommendationPayload, at models.Timestamp) error {
	id, err := models.ParseMovieID(p.MovieID)
	if err != nil {
		return err
	}
	rec := &models.Recommendation{MovieID: id, Person: p.Person, RecommendedAt: p.RecommendedAt, Vote: p.Vote}
	if rec.RecommendedAt.IsZero() {
		rec.RecommendedAt = at
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	exists, err := t.Movies.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		if id.IsTemporary() {
			return fmt.Errorf("%w: movie %s", shared.ErrNotFound, id)
		}
		if err := t.Movies.Upsert(ctx, &models.Movie{ID: id, TMDB: p.TMDB, OMDB: p.OMDB, LastModified: at}); err != nil {
			return err
		}
	}

	prev, err := t.Recommendations.Get(ctx, id, p.Person)
	switch {
	case err == nil && prev.Vote == rec.Vote:
		return fmt.Errorf("%w: %s already %sd %s", shared.ErrDuplicateVote, p.Person, rec.Vote, id)
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return err
	}

	created, err := t.People.EnsureExists(ctx, p.Person, at)
	if err != nil {
		return err
	}
	if created {
		t.Touch(models.EntityPerson, p.Person)
	}

	if err := t.Recommendations.Upsert(ctx, rec); err != nil {
		return err
	}
	return t.touchMovie(ctx, id, at)
}

func (t *Tx) applyRemoveRecommendation(ctx context.Context, p models.RemoveRecommendationPayload, at models.Timestamp) error {
	id, err := t.existingMovie(ctx, p.MovieID)
	if err != nil {
		return err
	}
	if err := t.Recommendations.Delete(ctx, id, p.Person); err != nil {
		return err
	}
	return t.touchMovie(ctx, id, at)
}

func (t *Tx) applyMarkWatched(ctx context.Context, p models.WatchPayload, at models.Timestamp) error {
	if err := models.ValidateRating(p.Rating); err != nil {
		return err
	}
	id, err := t.existingMovie(ctx, p.MovieID)
	if err != nil {
		return err
	}

	watch := &models.WatchHistory{MovieID: id, WatchedAt: p.WatchedAt, Rating: p.Rating}
	if watch.WatchedAt.IsZero() {
		watch.WatchedAt = at
	}
	if err := t.Watches.Upsert(ctx, watch); err != nil {
		return err
	}
	if err := t.Statuses.Upsert(ctx, &models.Status{MovieID: id, State: models.Watched}); err != nil {
		return err
	}
	return t.touchMovie(ctx, id, at)
}

func (t *Tx) applyUpdateStatus(ctx context.Context, p models.StatusPayload, at models.Timestamp) error {
	id, err := t.existingMovie(ctx, p.MovieID)
	if err != nil {
		return err
	}
	status := &models.Status{MovieID: id, State: p.Status, CustomListID: p.CustomListID}
	if err := status.Validate(); err != nil {
		return err
	}
	if status.State == models.Custom {
		if _, err := t.Lists.Get(ctx, status.CustomListID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: unknown list %q", shared.ErrValidation, status.CustomListID)
			}
			return err
		}
	}
	if err := t.Statuses.Upsert(ctx, status); err != nil {
		return err
	}
	return t.touchMovie(ctx, id, at)
}

// applyDeleteMovie is a soft delete. A tombstone for a key that no longer exists, such as a remapped
// temporary id, changes nothing.
func (t *Tx) applyDeleteMovie(ctx context.Context, p models.DeleteMoviePayload, at models.Timestamp) error {
	id, err := models.ParseMovieID(p.MovieID)
	if err != nil {
		return err
	}
	ok, err := t.Movies.Exists(ctx, id)
	if err != nil || !ok {
		return err
	}
	if err := t.Statuses.Upsert(ctx, &models.Status{MovieID: id, State: models.Deleted}); err != nil {
		return err
	}
	return t.touchMovie(ctx, id, at)
}

func (t *Tx) applyPerson(ctx context.Context, kind models.ActionKind, p models.PersonPayload, at models.Timestamp) error {
	person, err := t.People.Get(ctx, p.Name)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		if kind != models.ActionAddPerson {
			return err
		}
		person = &models.Person{Name: p.Name}
	case err != nil:
		return err
	}

	if kind == models.ActionUpdatePersonTrust && p.IsTrusted == nil {
		return fmt.Errorf("%w: trust update for %s carries no flag", shared.ErrValidation, p.Name)
	}
	if p.IsTrusted != nil {
		person.IsTrusted = *p.IsTrusted
	}
	if p.IsDefault != nil {
		person.IsDefault = *p.IsDefault
	}
	if p.Color != nil {
		person.Color = *p.Color
	}
	if p.Emoji != nil {
		person.Emoji = *p.Emoji
	}
	person.LastModified = at

	if err := t.People.Upsert(ctx, person); err != nil {
		return err
	}
	t.Touch(models.EntityPerson, p.Name)
	return nil
}

// applyDeletePerson drops the person and every vote they cast.
func (t *Tx) applyDeletePerson(ctx context.Context, p models.DeletePersonPayload) error {
	if err := t.Recommendations.DeleteForPerson(ctx, p.Name); err != nil {
		return err
	}
	if err := t.People.Delete(ctx, p.Name); err != nil {
		return err
	}
	t.Touch(models.EntityPerson, p.Name)
	return nil
}

func (t *Tx) applyList(ctx context.Context, kind models.ActionKind, p models.ListPayload, at models.Timestamp) error {
	list, err := t.Lists.Get(ctx, p.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		if kind != models.ActionAddList {
			return err
		}
		list = &models.CustomList{ID: p.ID, CreatedAt: p.CreatedAt}
		if list.CreatedAt.IsZero() {
			list.CreatedAt = at
		}
		if p.Position == nil {
			pos, err := t.Lists.NextPosition(ctx)
			if err != nil {
				return err
			}
			list.Position = pos
		}
	case err != nil:
		return err
	}

	if p.Name != nil {
		list.Name = *p.Name
	}
	if p.Color != nil {
		list.Color = *p.Color
	}
	if p.Icon != nil {
		list.Icon = *p.Icon
	}
	if p.Position != nil {
		list.Position = *p.Position
	}
	list.LastModified = at

	if err := t.Lists.Upsert(ctx, list); err != nil {
		return err
	}
	t.Touch(models.EntityList, p.ID)
	return nil
}

// applyDeleteList removes the list and returns its movies to toWatch.
func (t *Tx) applyDeleteList(ctx context.Context, p models.DeleteListPayload, at models.Timestamp) error {
	released, err := t.Statuses.ReleaseList(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, key := range released {
		id, err := models.ParseMovieID(key)
		if err != nil {
			return err
		}
		if err := t.touchMovie(ctx, id, at); err != nil {
			return err
		}
	}
	if err := t.Lists.Delete(ctx, p.ID); err != nil {
		return err
	}
	t.Touch(models.EntityList, p.ID)
	return nil
}
