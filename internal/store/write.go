package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/queue"
	"github.com/desertthunder/reelsync/internal/shared"
)

// mutate is the optimistic write path: encode the payload, apply it and enqueue it, all in one
// transaction. Any error leaves both the entities and the queue untouched.
func (s *Store) mutate(ctx context.Context, kind models.ActionKind, payload any, at models.Timestamp) error {
	data, err := queue.Encode(payload)
	if err != nil {
		return err
	}
	ref := ""
	if mk, ok := payload.(models.MovieKeyed); ok {
		ref = mk.MovieKey()
	}

	err = s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.apply(ctx, kind, data, at); err != nil {
			return err
		}
		_, err := tx.Enqueue(ctx, kind, ref, json.RawMessage(data), at)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to %s: %w", kind, err)
	}
	s.logger.Debug("applied local write", "action", kind, "movie", ref)
	return nil
}

// NewMovie describes a movie added locally. An empty ID mints a temporary key.
type NewMovie struct {
	ID    string
	Title string
	Year  int
	TMDB  json.RawMessage
	OMDB  json.RawMessage
}

// AddMovie creates a movie, or refreshes the metadata of an existing one.
func (s *Store) AddMovie(ctx context.Context, in NewMovie) (*models.MovieRecord, error) {
	id := models.NewTemporaryID()
	if strings.TrimSpace(in.ID) != "" {
		parsed, err := models.ParseMovieID(in.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	if id.IsTemporary() && strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: a movie without an id needs a title", shared.ErrValidation)
	}
	candidate := models.Movie{ID: id, Title: in.Title, Year: in.Year, TMDB: in.TMDB, OMDB: in.OMDB}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	payload := models.MoviePayload{MovieID: id.Value, Title: in.Title, Year: in.Year, TMDB: in.TMDB, OMDB: in.OMDB}
	if err := s.mutate(ctx, models.ActionAddMovie, payload, s.Now()); err != nil {
		return nil, err
	}
	return s.Movie(ctx, id)
}

// AddRecommendation records person's vote. A different earlier vote is replaced; the same vote twice
// is rejected with [shared.ErrDuplicateVote].
func (s *Store) AddRecommendation(ctx context.Context, id models.MovieID, person string, vote models.Vote) error {
	person = strings.TrimSpace(person)
	rec := models.Recommendation{MovieID: id, Person: person, Vote: vote}
	if err := rec.Validate(); err != nil {
		return err
	}
	at := s.Now()
	payload := models.RecommendationPayload{MovieID: id.Value, Person: person, Vote: vote, RecommendedAt: at}
	return s.mutate(ctx, models.ActionAddRecommendation, payload, at)
}

// RemoveRecommendation withdraws person's vote.
func (s *Store) RemoveRecommendation(ctx context.Context, id models.MovieID, person string) error {
	payload := models.RemoveRecommendationPayload{MovieID: id.Value, Person: strings.TrimSpace(person)}
	return s.mutate(ctx, models.ActionRemoveRecommendation, payload, s.Now())
}

// MarkWatched rates a movie and moves it to watched. A zero watchedAt means now.
func (s *Store) MarkWatched(ctx context.Context, id models.MovieID, rating float64, watchedAt models.Timestamp) error {
	if err := models.ValidateRating(rating); err != nil {
		return err
	}
	at := s.Now()
	if watchedAt.IsZero() {
		watchedAt = at
	}
	payload := models.WatchPayload{MovieID: id.Value, WatchedAt: watchedAt, Rating: rating}
	return s.mutate(ctx, models.ActionMarkWatched, payload, at)
}

// UpdateStatus moves a movie to state. listID is required for, and only allowed with, [models.Custom].
func (s *Store) UpdateStatus(ctx context.Context, id models.MovieID, state models.State, listID string) error {
	status := models.Status{MovieID: id, State: state, CustomListID: listID}
	if err := status.Validate(); err != nil {
		return err
	}
	payload := models.StatusPayload{MovieID: id.Value, Status: state, CustomListID: listID}
	return s.mutate(ctx, models.ActionUpdateStatus, payload, s.Now())
}

// DeleteMovie soft deletes a movie so the deletion can reach other devices.
func (s *Store) DeleteMovie(ctx context.Context, id models.MovieID) error {
	if _, err := s.Movie(ctx, id); err != nil {
		return err
	}
	return s.mutate(ctx, models.ActionDeleteMovie, models.DeleteMoviePayload{MovieID: id.Value}, s.Now())
}

// AddPerson creates a person. Unset styling falls back to the defaults.
func (s *Store) AddPerson(ctx context.Context, p models.Person) error {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := s.Person(ctx, p.Name); err == nil {
		return fmt.Errorf("%w: person %q already exists", shared.ErrValidation, p.Name)
	}
	p = p.WithDefaults()
	payload := models.PersonPayload{Name: p.Name, IsTrusted: &p.IsTrusted, IsDefault: &p.IsDefault, Color: &p.Color}
	if p.Emoji != "" {
		payload.Emoji = &p.Emoji
	}
	return s.mutate(ctx, models.ActionAddPerson, payload, s.Now())
}

// UpdatePerson changes the non-nil fields of update on the person named update.Name.
func (s *Store) UpdatePerson(ctx context.Context, update models.PersonPayload) error {
	if update.Color != nil {
		if err := models.ValidateColor(*update.Color); err != nil {
			return err
		}
	}
	return s.mutate(ctx, models.ActionUpdatePerson, update, s.Now())
}

// SetPersonTrust flips the trusted flag.
func (s *Store) SetPersonTrust(ctx context.Context, name string, trusted bool) error {
	payload := models.PersonPayload{Name: name, IsTrusted: &trusted}
	return s.mutate(ctx, models.ActionUpdatePersonTrust, payload, s.Now())
}

// DeletePerson removes a person and their votes.
func (s *Store) DeletePerson(ctx context.Context, name string) error {
	return s.mutate(ctx, models.ActionDeletePerson, models.DeletePersonPayload{Name: name}, s.Now())
}

// AddList creates a custom list at the end of the ordering.
func (s *Store) AddList(ctx context.Context, name, color, icon string) (*models.CustomList, error) {
	list := models.CustomList{ID: shared.GenerateID(), Name: strings.TrimSpace(name), Color: color, Icon: icon}
	if err := list.Validate(); err != nil {
		return nil, err
	}
	list = list.WithDefaults()

	at := s.Now()
	payload := models.ListPayload{ID: list.ID, Name: &list.Name, Color: &list.Color, Icon: &list.Icon, CreatedAt: at}
	if err := s.mutate(ctx, models.ActionAddList, payload, at); err != nil {
		return nil, err
	}
	return s.List(ctx, list.ID)
}

// UpdateList changes the non-nil fields of update on the list update.ID.
func (s *Store) UpdateList(ctx context.Context, update models.ListPayload) error {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return fmt.Errorf("%w: list name is required", shared.ErrValidation)
	}
	if update.Color != nil {
		if err := models.ValidateColor(*update.Color); err != nil {
			return err
		}
	}
	if update.Position != nil && *update.Position < 0 {
		return fmt.Errorf("%w: list position %d", shared.ErrValidation, *update.Position)
	}
	update.CreatedAt = 0
	return s.mutate(ctx, models.ActionUpdateList, update, s.Now())
}

// DeleteList removes a list. Its movies go back to toWatch.
func (s *Store) DeleteList(ctx context.Context, id string) error {
	return s.mutate(ctx, models.ActionDeleteList, models.DeleteListPayload{ID: id}, s.Now())
}

// Replay applies queue entries in order without enqueuing them again, stamping each with its
// enqueue time. Replaying a queue onto a fresh store reproduces the store that produced it.
func (s *Store) Replay(ctx context.Context, entries []*models.QueueEntry) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, e := range entries {
			if err := tx.apply(ctx, e.Action, e.Payload, e.EnqueuedAt); err != nil {
				return fmt.Errorf("failed to replay entry %d (%s): %w", e.Seq, e.Action, err)
			}
		}
		return nil
	})
}
