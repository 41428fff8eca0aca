package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/desertthunder/reelsync/internal/shared"
)

// Rating bounds for [WatchHistory.Rating], inclusive.
const (
	MinRating = 1.0
	MaxRating = 10.0
)

// Movie is a tracked title. TMDB and OMDB hold provider metadata verbatim.
type Movie struct {
	ID           MovieID
	Title        string
	Year         int
	TMDB         json.RawMessage
	OMDB         json.RawMessage
	LastModified Timestamp
}

func (m *Movie) Validate() error {
	if m.ID.IsZero() {
		return fmt.Errorf("%w: movie id is required", shared.ErrValidation)
	}
	if m.Year < 0 {
		return fmt.Errorf("%w: year %d", shared.ErrValidation, m.Year)
	}
	for name, blob := range map[string]json.RawMessage{"tmdb_data": m.TMDB, "omdb_data": m.OMDB} {
		if len(blob) > 0 && !json.Valid(blob) {
			return fmt.Errorf("%w: %s is not valid JSON", shared.ErrValidation, name)
		}
	}
	return nil
}

// Vote is the kind of a [Recommendation].
type Vote string

const (
	Upvote   Vote = "upvote"
	Downvote Vote = "downvote"
)

// ParseVote accepts "upvote"/"downvote" and the shorthands "up"/"down".
func ParseVote(s string) (Vote, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upvote", "up", "":
		return Upvote, nil
	case "downvote", "down":
		return Downvote, nil
	}
	return "", fmt.Errorf("%w: vote %q", shared.ErrValidation, s)
}

// Recommendation is a single person's vote on a movie.
type Recommendation struct {
	MovieID       MovieID
	Person        string
	RecommendedAt Timestamp
	Vote          Vote
}

func (r *Recommendation) Validate() error {
	switch {
	case r.MovieID.IsZero():
		return fmt.Errorf("%w: recommendation needs a movie", shared.ErrValidation)
	case strings.TrimSpace(r.Person) == "":
		return fmt.Errorf("%w: recommendation needs a person", shared.ErrValidation)
	case r.Vote != Upvote && r.Vote != Downvote:
		return fmt.Errorf("%w: vote %q", shared.ErrValidation, r.Vote)
	}
	return nil
}

// WatchHistory records when a movie was watched and how it was rated.
type WatchHistory struct {
	MovieID   MovieID
	WatchedAt Timestamp
	Rating    float64
}

func (w *WatchHistory) Validate() error {
	if w.MovieID.IsZero() {
		return fmt.Errorf("%w: watch history needs a movie", shared.ErrValidation)
	}
	return ValidateRating(w.Rating)
}

// ValidateRating rejects ratings outside [MinRating, MaxRating].
func ValidateRating(r float64) error {
	if math.IsNaN(r) || r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: rating %.1f outside %.1f-%.1f", shared.ErrValidation, r, MinRating, MaxRating)
	}
	return nil
}

// State is the soft status of a movie.
type State string

const (
	ToWatch State = "toWatch"
	Watched State = "watched"
	Deleted State = "deleted"
	Custom  State = "custom"
)

// ParseState accepts the wire names and a few CLI friendly spellings.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "towatch", "to-watch", "to_watch":
		return ToWatch, nil
	case "watched":
		return Watched, nil
	case "deleted":
		return Deleted, nil
	case "custom":
		return Custom, nil
	}
	return "", fmt.Errorf("%w: status %q", shared.ErrValidation, s)
}

// Status is one-to-one with a movie. CustomListID is set only for [Custom].
type Status struct {
	MovieID      MovieID
	State        State
	CustomListID string
}

func (s *Status) Validate() error {
	if s.MovieID.IsZero() {
		return fmt.Errorf("%w: status needs a movie", shared.ErrValidation)
	}
	if _, err := ParseState(string(s.State)); err != nil {
		return err
	}
	if s.State == Custom && s.CustomListID == "" {
		return fmt.Errorf("%w: custom status requires a list", shared.ErrValidation)
	}
	if s.State != Custom && s.CustomListID != "" {
		return fmt.Errorf("%w: only custom status may reference a list", shared.ErrValidation)
	}
	return nil
}

// MovieRecord is a movie together with its child rows, the unit the resolver merges.
type MovieRecord struct {
	Movie           Movie
	Recommendations []Recommendation
	Watch           *WatchHistory
	Status          *Status
}

// Vote returns the recommendation left by person, if any.
func (r *MovieRecord) Vote(person string) (Recommendation, bool) {
	for _, rec := range r.Recommendations {
		if rec.Person == person {
			return rec, true
		}
	}
	return Recommendation{}, false
}

// Score is upvotes minus downvotes.
func (r *MovieRecord) Score() int {
	score := 0
	for _, rec := range r.Recommendations {
		if rec.Vote == Upvote {
			score++
		} else {
			score--
		}
	}
	return score
}

// StateOrDefault returns the movie's state, treating a missing status row as [ToWatch].
func (r *MovieRecord) StateOrDefault() State {
	if r.Status == nil {
		return ToWatch
	}
	return r.Status.State
}
