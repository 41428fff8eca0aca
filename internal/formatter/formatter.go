// Package formatter renders the local snapshot and the mutation queue as JSON, CSV, Markdown or plain text.
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

// Format names an export format.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "md"
	Text     Format = "txt"
)

const dateLayout = "2006-01-02"

// ParseFormat accepts json, csv, md (or markdown) and txt (or text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	case "txt", "text":
		return Text, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, s)
}

// MovieExport is the JSON form of a [models.MovieRecord].
type MovieExport struct {
	IMDBID          string                 `json:"imdb_id"`
	Title           string                 `json:"title,omitempty"`
	Year            int                    `json:"year,omitempty"`
	Status          models.State           `json:"status"`
	CustomListID    string                 `json:"custom_list_id,omitempty"`
	Score           int                    `json:"score"`
	Recommendations []RecommendationExport `json:"recommendations"`
	WatchedAt       int64                  `json:"date_watched,omitempty"`
	Rating          *float64               `json:"my_rating,omitempty"`
	LastModified    int64                  `json:"last_modified"`
	TMDB            json.RawMessage        `json:"tmdb_data,omitempty"`
	OMDB            json.RawMessage        `json:"omdb_data,omitempty"`
}

// RecommendationExport is one vote inside a [MovieExport].
type RecommendationExport struct {
	Person        string      `json:"person"`
	Vote          models.Vote `json:"vote_type"`
	RecommendedAt int64       `json:"date_recommended"`
}

// PersonExport is the JSON form of a [models.Person].
type PersonExport struct {
	Name      string `json:"name"`
	IsTrusted bool   `json:"is_trusted"`
	IsDefault bool   `json:"is_default"`
	Color     string `json:"color,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// ListExport is the JSON form of a [models.CustomList].
type ListExport struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Position  int    `json:"position"`
	CreatedAt int64  `json:"created_at"`
}

// SnapshotExport is the document written by [ExportToJSON].
type SnapshotExport struct {
	Movies []MovieExport  `json:"movies"`
	People []PersonExport `json:"people"`
	Lists  []ListExport   `json:"lists"`
}

// NewMovieExport flattens a record for export.
func NewMovieExport(r models.MovieRecord) MovieExport {
	m := MovieExport{
		IMDBID:          r.Movie.ID.Value,
		Title:           r.Movie.Title,
		Year:            r.Movie.Year,
		Status:          r.StateOrDefault(),
		Score:           r.Score(),
		Recommendations: make([]RecommendationExport, 0, len(r.Recommendations)),
		LastModified:    int64(r.Movie.LastModified),
		TMDB:            r.Movie.TMDB,
		OMDB:            r.Movie.OMDB,
	}
	if r.Status != nil {
		m.CustomListID = r.Status.CustomListID
	}
	for _, rec := range r.Recommendations {
		m.Recommendations = append(m.Recommendations, RecommendationExport{
			Person:        rec.Person,
			Vote:          rec.Vote,
			RecommendedAt: int64(rec.RecommendedAt),
		})
	}
	if r.Watch != nil {
		rating := r.Watch.Rating
		m.WatchedAt = int64(r.Watch.WatchedAt)
		m.Rating = &rating
	}
	return m
}

func NewPersonExport(p models.Person) PersonExport {
	return PersonExport{Name: p.Name, IsTrusted: p.IsTrusted, IsDefault: p.IsDefault, Color: p.Color, Emoji: p.Emoji}
}

func NewListExport(l models.CustomList) ListExport {
	return ListExport{ID: l.ID, Name: l.Name, Color: l.Color, Icon: l.Icon, Position: l.Position, CreatedAt: int64(l.CreatedAt)}
}

// ExportToJSON renders the whole snapshot as indented JSON.
func ExportToJSON(snap *models.Snapshot) ([]byte, error) {
	doc := SnapshotExport{
		Movies: make([]MovieExport, 0, len(snap.Movies)),
		People: make([]PersonExport, 0, len(snap.People)),
		Lists:  make([]ListExport, 0, len(snap.Lists)),
	}
	for _, r := range snap.Movies {
		doc.Movies = append(doc.Movies, NewMovieExport(r))
	}
	for _, p := range snap.People {
		doc.People = append(doc.People, NewPersonExport(p))
	}
	for _, l := range snap.Lists {
		doc.Lists = append(doc.Lists, NewListExport(l))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV renders one row per movie with columns: IMDB ID, Title, Year, Status, Score,
// Upvotes, Downvotes, Recommended By, Watched, Rating.
func ExportToCSV(movies []models.MovieRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"IMDB ID", "Title", "Year", "Status", "Score", "Upvotes", "Downvotes", "Recommended By", "Watched", "Rating"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range movies {
		up, down := tally(r)
		var watched, rating string
		if r.Watch != nil {
			watched = r.Watch.WatchedAt.Format(dateLayout)
			rating = strconv.FormatFloat(r.Watch.Rating, 'f', -1, 64)
		}
		record := []string{
			r.Movie.ID.Value,
			r.Movie.Title,
			year(r.Movie.Year),
			string(r.StateOrDefault()),
			strconv.Itoa(r.Score()),
			strconv.Itoa(up),
			strconv.Itoa(down),
			strings.Join(people(r), "; "),
			watched,
			rating,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown renders the snapshot as a document with one section per status, followed by the
// people and custom lists.
func ExportToMarkdown(snap *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# Movies\n\n")
	buf.WriteString(fmt.Sprintf("**Movies**: %d\n", len(snap.Movies)))
	buf.WriteString(fmt.Sprintf("**People**: %d\n", len(snap.People)))
	buf.WriteString(fmt.Sprintf("**Lists**: %d\n\n", len(snap.Lists)))

	lists := make(map[string]string, len(snap.Lists))
	for _, l := range snap.Lists {
		lists[l.ID] = l.Name
	}

	for _, state := range []models.State{models.ToWatch, models.Watched, models.Custom} {
		var section []models.MovieRecord
		for _, r := range snap.Movies {
			if r.StateOrDefault() == state {
				section = append(section, r)
			}
		}
		if len(section) == 0 {
			continue
		}

		buf.WriteString(fmt.Sprintf("## %s\n\n", stateTitle(state)))
		for i, r := range section {
			buf.WriteString(fmt.Sprintf("%d. %s", i+1, title(r.Movie)))
			buf.WriteString(fmt.Sprintf(" [%+d]", r.Score()))
			if names := people(r); len(names) > 0 {
				buf.WriteString(" - " + strings.Join(names, ", "))
			}
			if r.Watch != nil {
				buf.WriteString(fmt.Sprintf(" (watched %s, %.1f/10)", r.Watch.WatchedAt.Format(dateLayout), r.Watch.Rating))
			}
			if r.Status != nil && r.Status.CustomListID != "" {
				if name, ok := lists[r.Status.CustomListID]; ok {
					buf.WriteString(fmt.Sprintf(" in _%s_", name))
				}
			}
			buf.WriteString("\n")
		}
		buf.WriteString("\n")
	}

	if len(snap.People) > 0 {
		buf.WriteString("## People\n\n")
		for _, p := range snap.People {
			trusted := ""
			if p.IsTrusted {
				trusted = " (trusted)"
			}
			buf.WriteString(fmt.Sprintf("- %s%s%s\n", emoji(p.Emoji), p.Name, trusted))
		}
		buf.WriteString("\n")
	}

	if len(snap.Lists) > 0 {
		buf.WriteString("## Lists\n\n")
		for _, l := range snap.Lists {
			buf.WriteString(fmt.Sprintf("- %s\n", l.Name))
		}
	}
	return buf.Bytes(), nil
}

// ExportToText renders one line per movie.
func ExportToText(movies []models.MovieRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Movies: %d\n\n", len(movies)))
	for i, r := range movies {
		buf.WriteString(fmt.Sprintf("%d. %s [%s] score %+d\n", i+1, title(r.Movie), r.StateOrDefault(), r.Score()))
	}
	return buf.Bytes(), nil
}

// QueueToText renders the mutation queue, head first.
func QueueToText(entries []*models.QueueEntry) []byte {
	var buf bytes.Buffer
	if len(entries) == 0 {
		buf.WriteString("Queue is empty\n")
		return buf.Bytes()
	}
	for _, e := range entries {
		buf.WriteString(fmt.Sprintf("#%d %-20s %-12s %-10s retries=%d", e.Seq, e.Action, e.MovieRef, e.State, e.RetryCount))
		if e.LastError != "" {
			buf.WriteString("  " + e.LastError)
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// QueueToCSV renders the mutation queue with columns: Seq, Action, Movie, State, Retries, Enqueued,
// Next Attempt, Last Error, Payload.
func QueueToCSV(entries []*models.QueueEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"Seq", "Action", "Movie", "State", "Retries", "Enqueued", "Next Attempt", "Last Error", "Payload"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.Seq, 10),
			string(e.Action),
			e.MovieRef,
			string(e.State),
			strconv.Itoa(e.RetryCount),
			e.EnqueuedAt.String(),
			e.NextAttemptAt.String(),
			e.LastError,
			string(e.Payload),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// Export renders snap in format.
func Export(snap *models.Snapshot, format Format) ([]byte, error) {
	switch format {
	case JSON:
		return ExportToJSON(snap)
	case CSV:
		return ExportToCSV(snap.Movies)
	case Markdown:
		return ExportToMarkdown(snap)
	case Text:
		return ExportToText(snap.Movies)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
}

// WriteExport renders snap in format and writes it to path, creating parent directories.
//
// An empty path defaults to movies.{format}.
func WriteExport(snap *models.Snapshot, format Format, path string) (string, error) {
	if path == "" {
		path = "movies." + string(format)
	}

	data, err := Export(snap, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

func tally(r models.MovieRecord) (up, down int) {
	for _, rec := range r.Recommendations {
		if rec.Vote == models.Upvote {
			up++
		} else {
			down++
		}
	}
	return up, down
}

func people(r models.MovieRecord) []string {
	names := make([]string, 0, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		names = append(names, rec.Person)
	}
	return names
}

func title(m models.Movie) string {
	name := m.Title
	if name == "" {
		name = m.ID.Value
	}
	if m.Year > 0 {
		name += fmt.Sprintf(" (%d)", m.Year)
	}
	return name
}

func year(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func emoji(e string) string {
	if e == "" {
		return ""
	}
	return e + " "
}

func stateTitle(s models.State) string {
	switch s {
	case models.ToWatch:
		return "To Watch"
	case models.Watched:
		return "Watched"
	case models.Custom:
		return "Custom Lists"
	}
	return string(s)
}
