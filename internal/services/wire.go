package services

import (
	"encoding/json"
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

// The server speaks Unix seconds as floats. Everything below converts at this boundary so the rest of
// the program only ever sees millisecond [models.Timestamp] values.

// SyncAction is the POST /sync envelope.
type SyncAction struct {
	Action    models.ActionKind `json:"action"`
	Data      json.RawMessage   `json:"data"`
	Timestamp int64             `json:"timestamp"` // ms
}

// SyncResponse is the POST /sync reply.
type SyncResponse struct {
	Success      bool       `json:"success"`
	LastModified *float64   `json:"last_modified,omitempty"`
	Error        string     `json:"error,omitempty"`
	Conflict     bool       `json:"conflict"`
	ServerState  *WireMovie `json:"server_state,omitempty"`
}

// WireMovie is a movie as serialized by the server.
type WireMovie struct {
	IMDBID          string               `json:"imdb_id"`
	Title           string               `json:"title,omitempty"`
	Year            int                  `json:"year,omitempty"`
	TMDB            json.RawMessage      `json:"tmdb_data,omitempty"`
	OMDB            json.RawMessage      `json:"omdb_data,omitempty"`
	LastModified    float64              `json:"last_modified"`
	Status          string               `json:"status,omitempty"`
	CustomListID    string               `json:"custom_list_id,omitempty"`
	Recommendations []WireRecommendation `json:"recommendations"`
	WatchHistory    *WireWatch           `json:"watch_history,omitempty"`
}

// WireRecommendation is one vote inside a [WireMovie].
type WireRecommendation struct {
	Person          string  `json:"person"`
	DateRecommended float64 `json:"date_recommended"`
	VoteType        string  `json:"vote_type,omitempty"`
}

// WireWatch is the watch history inside a [WireMovie].
type WireWatch struct {
	DateWatched float64 `json:"date_watched"`
	MyRating    float64 `json:"my_rating"`
}

// WirePerson is a person as serialized by the server.
type WirePerson struct {
	Name      string `json:"name"`
	IsTrusted bool   `json:"is_trusted"`
	IsDefault bool   `json:"is_default"`
	Color     string `json:"color,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// WireList is a custom list as serialized by the server.
type WireList struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Color     string  `json:"color,omitempty"`
	Icon      string  `json:"icon,omitempty"`
	Position  int     `json:"position"`
	CreatedAt float64 `json:"created_at"`
}

// WireDelta is the GET /sync reply.
type WireDelta struct {
	Movies          []WireMovie  `json:"movies"`
	People          []WirePerson `json:"people"`
	Lists           []WireList   `json:"lists"`
	DeletedMovieIDs []string     `json:"deleted_movie_ids"`
	Timestamp       float64      `json:"timestamp"`
}

// Record converts a server movie. The server never holds temporary keys, but a key that looks
// temporary is kept temporary so a later remap can find it.
func (w *WireMovie) Record() (*models.MovieRecord, error) {
	id, err := models.ParseMovieID(w.IMDBID)
	if err != nil {
		return nil, fmt.Errorf("movie %q: %w", w.IMDBID, err)
	}
	lm := models.FromSeconds(w.LastModified)

	rec := &models.MovieRecord{
		Movie: models.Movie{ID: id, Title: w.Title, Year: w.Year, TMDB: nullJSON(w.TMDB), OMDB: nullJSON(w.OMDB), LastModified: lm},
	}
	for _, r := range w.Recommendations {
		vote := models.Upvote
		if r.VoteType != "" {
			v, err := models.ParseVote(r.VoteType)
			if err != nil {
				return nil, fmt.Errorf("movie %s: %w", id, err)
			}
			vote = v
		}
		rec.Recommendations = append(rec.Recommendations, models.Recommendation{
			MovieID: id, Person: r.Person, RecommendedAt: models.FromSeconds(r.DateRecommended), Vote: vote,
		})
	}
	if w.WatchHistory != nil {
		rec.Watch = &models.WatchHistory{MovieID: id, WatchedAt: models.FromSeconds(w.WatchHistory.DateWatched), Rating: w.WatchHistory.MyRating}
	}
	if w.Status != "" {
		state, err := models.ParseState(w.Status)
		if err != nil {
			return nil, fmt.Errorf("movie %s: %w", id, err)
		}
		rec.Status = &models.Status{MovieID: id, State: state}
		if state == models.Custom {
			rec.Status.CustomListID = w.CustomListID
		}
	}
	return rec, nil
}

// Delta converts a server delta. Movies and deleted ids that do not decode are skipped and
// reported in [models.Delta.Dropped] so one bad row cannot hold back the rest.
func (w *WireDelta) Delta() *models.Delta {
	d := &models.Delta{Timestamp: models.FromSeconds(w.Timestamp)}
	for i := range w.Movies {
		rec, err := w.Movies[i].Record()
		if err != nil {
			d.Dropped = append(d.Dropped, err)
			continue
		}
		d.Movies = append(d.Movies, *rec)
	}
	for _, p := range w.People {
		d.People = append(d.People, models.Person{
			Name: p.Name, IsTrusted: p.IsTrusted, IsDefault: p.IsDefault, Color: p.Color, Emoji: p.Emoji, LastModified: d.Timestamp,
		})
	}
	for _, l := range w.Lists {
		d.Lists = append(d.Lists, models.CustomList{
			ID: l.ID, Name: l.Name, Color: l.Color, Icon: l.Icon, Position: l.Position,
			CreatedAt: models.FromSeconds(l.CreatedAt), LastModified: d.Timestamp,
		})
	}
	for _, key := range w.DeletedMovieIDs {
		id, err := models.ParseMovieID(key)
		if err != nil {
			d.Dropped = append(d.Dropped, fmt.Errorf("deleted id: %w", err))
			continue
		}
		d.DeletedMovieIDs = append(d.DeletedMovieIDs, id)
	}
	return d
}

// ToWireMovie is the inverse of [WireMovie.Record], used by test doubles and the export of server
// shaped JSON.
func ToWireMovie(rec *models.MovieRecord) WireMovie {
	w := WireMovie{
		IMDBID:       rec.Movie.ID.Value,
		Title:        rec.Movie.Title,
		Year:         rec.Movie.Year,
		TMDB:         rec.Movie.TMDB,
		OMDB:         rec.Movie.OMDB,
		LastModified: rec.Movie.LastModified.Seconds(),
	}
	for _, r := range rec.Recommendations {
		w.Recommendations = append(w.Recommendations, WireRecommendation{
			Person: r.Person, DateRecommended: r.RecommendedAt.Seconds(), VoteType: string(r.Vote),
		})
	}
	if rec.Watch != nil {
		w.WatchHistory = &WireWatch{DateWatched: rec.Watch.WatchedAt.Seconds(), MyRating: rec.Watch.Rating}
	}
	if rec.Status != nil {
		w.Status = string(rec.Status.State)
		w.CustomListID = rec.Status.CustomListID
	}
	return w
}

// secondFields are payload fields holding timestamps. They are stored in milliseconds locally and
// sent in seconds.
var secondFields = []string{"date_recommended", "date_watched", "created_at"}

// payloadToWire rewrites millisecond timestamp fields of a queued payload to float seconds.
func payloadToWire(payload json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := gojson.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object: %v", shared.ErrValidation, err)
	}
	changed := false
	for _, key := range secondFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var ms int64
		if err := gojson.Unmarshal(raw, &ms); err != nil {
			continue
		}
		encoded, err := gojson.Marshal(models.Timestamp(ms).Seconds())
		if err != nil {
			return nil, err
		}
		fields[key] = encoded
		changed = true
	}
	if !changed {
		return payload, nil
	}
	return gojson.Marshal(fields)
}

func nullJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
