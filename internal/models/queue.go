package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/reelsync/internal/shared"
)

// ActionKind names a queued write intent. The values are the action names the server accepts.
type ActionKind string

const (
	ActionAddMovie             ActionKind = "addMovie"
	ActionAddRecommendation    ActionKind = "addRecommendation"
	ActionRemoveRecommendation ActionKind = "removeRecommendation"
	ActionMarkWatched          ActionKind = "markWatched"
	ActionUpdateStatus         ActionKind = "updateStatus"
	ActionDeleteMovie          ActionKind = "deleteMovie"
	ActionAddPerson            ActionKind = "addPerson"
	ActionUpdatePerson         ActionKind = "updatePerson"
	ActionUpdatePersonTrust    ActionKind = "updatePersonTrust"
	ActionDeletePerson         ActionKind = "deletePerson"
	ActionAddList              ActionKind = "addList"
	ActionUpdateList           ActionKind = "updateList"
	ActionDeleteList           ActionKind = "deleteList"
)

var actionKinds = map[ActionKind]bool{
	ActionAddMovie: true, ActionAddRecommendation: true, ActionRemoveRecommendation: true,
	ActionMarkWatched: true, ActionUpdateStatus: true, ActionDeleteMovie: true,
	ActionAddPerson: true, ActionUpdatePerson: true, ActionUpdatePersonTrust: true, ActionDeletePerson: true,
	ActionAddList: true, ActionUpdateList: true, ActionDeleteList: true,
}

// Valid reports whether k is a known action.
func (k ActionKind) Valid() bool { return actionKinds[k] }

// ParseActionKind rejects unknown action names.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", shared.ErrInvalidInput, s)
	}
	return k, nil
}

// EntryState is the lifecycle state of a [QueueEntry].
//
// pending → processing → (removed on success) | pending (retry) | failed (retries exhausted)
type EntryState string

const (
	EntryPending    EntryState = "pending"
	EntryProcessing EntryState = "processing"
	EntryFailed     EntryState = "failed"
)

// ParseEntryState accepts a known state or the empty string, which means any state.
func ParseEntryState(s string) (EntryState, error) {
	switch st := EntryState(strings.ToLower(strings.TrimSpace(s))); st {
	case "", EntryPending, EntryProcessing, EntryFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown state %q", shared.ErrInvalidInput, s)
}

// QueueEntry is one durable write intent.
type QueueEntry struct {
	Seq           int64
	Action        ActionKind
	MovieRef      string
	Payload       json.RawMessage
	EnqueuedAt    Timestamp
	State         EntryState
	RetryCount    int
	NextAttemptAt Timestamp
	LastError     string
}

func (e *QueueEntry) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", shared.ErrValidation, e.Action)
	}
	if !json.Valid(e.Payload) {
		return fmt.Errorf("%w: payload for %s is not valid JSON", shared.ErrValidation, e.Action)
	}
	return nil
}

// Eligible reports whether the entry may be attempted at now.
func (e *QueueEntry) Eligible(now Timestamp) bool {
	return e.State == EntryPending && e.NextAttemptAt <= now
}

// MovieKeyed is implemented by payloads that reference a movie.
type MovieKeyed interface {
	MovieKey() string
}

// MoviePayload creates a movie. Title and year feed enrichment when the key is temporary.
type MoviePayload struct {
	MovieID string          `json:"imdb_id"`
	Title   string          `json:"title,omitempty"`
	Year    int             `json:"year,omitempty"`
	TMDB    json.RawMessage `json:"tmdb_data,omitempty"`
	OMDB    json.RawMessage `json:"omdb_data,omitempty"`
}

// RecommendationPayload adds or replaces a vote. The server creates the movie and the person when missing.
type RecommendationPayload struct {
	MovieID       string          `json:"imdb_id"`
	Person        string          `json:"person"`
	Vote          Vote            `json:"vote_type"`
	RecommendedAt Timestamp       `json:"date_recommended"`
	TMDB          json.RawMessage `json:"tmdb_data,omitempty"`
	OMDB          json.RawMessage `json:"omdb_data,omitempty"`
}

// RemoveRecommendationPayload withdraws a vote.
type RemoveRecommendationPayload struct {
	MovieID string `json:"imdb_id"`
	Person  string `json:"person"`
}

// WatchPayload marks a movie watched.
type WatchPayload struct {
	MovieID   string    `json:"imdb_id"`
	WatchedAt Timestamp `json:"date_watched"`
	Rating    float64   `json:"my_rating"`
}

// StatusPayload moves a movie to another state.
type StatusPayload struct {
	MovieID      string `json:"imdb_id"`
	Status       State  `json:"status"`
	CustomListID string `json:"custom_list_id,omitempty"`
}

// DeleteMoviePayload is the tombstone for a movie key, including remapped temporary keys.
type DeleteMoviePayload struct {
	MovieID string `json:"imdb_id"`
}

// PersonPayload carries addPerson, updatePerson and updatePersonTrust. Nil fields are left untouched.
type PersonPayload struct {
	Name      string  `json:"name"`
	IsTrusted *bool   `json:"is_trusted,omitempty"`
	IsDefault *bool   `json:"is_default,omitempty"`
	Color     *string `json:"color,omitempty"`
	Emoji     *string `json:"emoji,omitempty"`
}

// DeletePersonPayload removes a person and their votes.
type DeletePersonPayload struct {
	Name string `json:"name"`
}

// ListPayload carries addList and updateList. Nil fields are left untouched.
type ListPayload struct {
	ID        string    `json:"id"`
	Name      *string   `json:"name,omitempty"`
	Color     *string   `json:"color,omitempty"`
	Icon      *string   `json:"icon,omitempty"`
	Position  *int      `json:"position,omitempty"`
	CreatedAt Timestamp `json:"created_at,omitempty"`
}

// DeleteListPayload removes a list; its movies return to [ToWatch].
type DeleteListPayload struct {
	ID string `json:"id"`
}

func (p MoviePayload) MovieKey() string                { return p.MovieID }
func (p RecommendationPayload) MovieKey() string       { return p.MovieID }
func (p RemoveRecommendationPayload) MovieKey() string { return p.MovieID }
func (p WatchPayload) MovieKey() string                { return p.MovieID }
func (p StatusPayload) MovieKey() string               { return p.MovieID }
func (p DeleteMoviePayload) MovieKey() string          { return p.MovieID }
