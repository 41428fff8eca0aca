package formatter

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
	th "github.com/desertthunder/reelsync/internal/testing"
)

const day = models.Timestamp(1_700_000_000_000)

func sampleSnapshot() *models.Snapshot {
	heat := models.CanonicalID("tt0113277")
	alien := models.CanonicalID("tt0078748")
	temp := models.TemporaryID("temp_01hx")
	return &models.Snapshot{
		Movies: []models.MovieRecord{
			{
				Movie: models.Movie{ID: heat, Title: "Heat", Year: 1995, LastModified: day},
				Recommendations: []models.Recommendation{
					{MovieID: heat, Person: "Alice", Vote: models.Upvote, RecommendedAt: day},
					{MovieID: heat, Person: "Bob", Vote: models.Upvote, RecommendedAt: day},
				},
			},
			{
				Movie:           models.Movie{ID: alien, Title: "Alien", Year: 1979, LastModified: day},
				Recommendations: []models.Recommendation{{MovieID: alien, Person: "Bob", Vote: models.Downvote, RecommendedAt: day}},
				Watch:           &models.WatchHistory{MovieID: alien, WatchedAt: day, Rating: 8.5},
				Status:          &models.Status{MovieID: alien, State: models.Watched},
			},
			{
				Movie:  models.Movie{ID: temp, Title: "Thief, The", LastModified: day},
				Status: &models.Status{MovieID: temp, State: models.Custom, CustomListID: "list-1"},
			},
		},
		People: []models.Person{
			{Name: "Alice", IsTrusted: true, Emoji: "🎬"},
			{Name: "Bob"},
		},
		Lists: []models.CustomList{{ID: "list-1", Name: "Noir", Position: 0, CreatedAt: day}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"json", JSON},
		{"CSV", CSV},
		{"md", Markdown},
		{"markdown", Markdown},
		{" text ", Text},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExporters(t *testing.T) {
	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(sampleSnapshot())
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}

		var doc SnapshotExport
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(doc.Movies) != 3 || len(doc.People) != 2 || len(doc.Lists) != 1 {
			t.Fatalf("unexpected counts: %d movies, %d people, %d lists", len(doc.Movies), len(doc.People), len(doc.Lists))
		}

		heat := doc.Movies[0]
		if heat.IMDBID != "tt0113277" || heat.Score != 2 || heat.Status != models.ToWatch {
			t.Errorf("unexpected movie %+v", heat)
		}
		if heat.Rating != nil {
			t.Errorf("expected no rating for an unwatched movie")
		}

		alien := doc.Movies[1]
		if alien.Rating == nil || *alien.Rating != 8.5 || alien.WatchedAt != int64(day) {
			t.Errorf("expected the watch to be exported, got %+v", alien)
		}
		if doc.Movies[2].CustomListID != "list-1" {
			t.Errorf("expected the custom list id, got %+v", doc.Movies[2])
		}
	})

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(sampleSnapshot().Movies)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "IMDB ID,Title,Year,Status,Score,Upvotes,Downvotes,Recommended By,Watched,Rating") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, "tt0113277,Heat,1995,toWatch,2,2,0,Alice; Bob,,") {
			t.Errorf("CSV missing Heat row, got: %s", output)
		}
		if !strings.Contains(output, "tt0078748,Alien,1979,watched,-1,0,1,Bob,2023-11-14,8.5") {
			t.Errorf("CSV missing Alien row, got: %s", output)
		}
		if !strings.Contains(output, `"Thief, The"`) {
			t.Errorf("CSV did not quote a title with a comma, got: %s", output)
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(sampleSnapshot())
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Movies",
			"**Movies**: 3",
			"## To Watch",
			"1. Heat (1995) [+2] - Alice, Bob",
			"## Watched",
			"1. Alien (1979) [-1] - Bob (watched 2023-11-14, 8.5/10)",
			"## Custom Lists",
			"1. Thief, The [+0] in _Noir_",
			"- 🎬 Alice (trusted)",
			"- Bob",
			"## Lists",
			"- Noir",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(sampleSnapshot().Movies)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Movies: 3") {
			t.Errorf("Text missing count, got: %s", output)
		}
		if !strings.Contains(output, "2. Alien (1979) [watched] score -1") {
			t.Errorf("Text missing Alien line, got: %s", output)
		}
	})

	t.Run("Export Unknown Format", func(t *testing.T) {
		if _, err := Export(sampleSnapshot(), Format("xml")); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestQueueFormatters(t *testing.T) {
	entries := []*models.QueueEntry{
		{Seq: 1, Action: models.ActionAddRecommendation, MovieRef: "tt001", State: models.EntryPending, Payload: []byte(`{"imdb_id":"tt001"}`), EnqueuedAt: day},
		{Seq: 2, Action: models.ActionMarkWatched, MovieRef: "tt002", State: models.EntryFailed, RetryCount: 5, LastError: "transient failure: 503", EnqueuedAt: day},
	}

	t.Run("QueueToText", func(t *testing.T) {
		output := string(QueueToText(entries))
		if !strings.Contains(output, "#1 addRecommendation") {
			t.Errorf("missing head entry, got: %s", output)
		}
		if !strings.Contains(output, "retries=5  transient failure: 503") {
			t.Errorf("missing failure details, got: %s", output)
		}

		if got := string(QueueToText(nil)); got != "Queue is empty\n" {
			t.Errorf("unexpected empty output %q", got)
		}
	})

	t.Run("QueueToCSV", func(t *testing.T) {
		data, err := QueueToCSV(entries)
		if err != nil {
			t.Fatalf("QueueToCSV failed: %v", err)
		}
		output := string(data)
		if !strings.HasPrefix(output, "Seq,Action,Movie,State,Retries,Enqueued,Next Attempt,Last Error,Payload\n") {
			t.Errorf("CSV missing headers, got: %s", output)
		}
		if !strings.Contains(output, `1,addRecommendation,tt001,pending,0,2023-11-14T22:13:20Z,never,,"{""imdb_id"":""tt001""}"`) {
			t.Errorf("CSV missing first entry, got: %s", output)
		}
	})
}

func TestWriteExport(t *testing.T) {
	t.Run("WithDefaultPath", func(t *testing.T) {
		tempDir := t.TempDir()
		originalDir := th.MustGetwd(t)
		th.MustChdir(t, tempDir)
		defer th.MustChdir(t, originalDir)

		path, err := WriteExport(sampleSnapshot(), Markdown, "")
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if path != "movies.md" {
			t.Errorf("expected movies.md, got %s", path)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "## To Watch") {
			t.Errorf("unexpected file content: %s", content)
		}
	})

	t.Run("WithNestedPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "exports", "2024", "movies.json")

		got, err := WriteExport(sampleSnapshot(), JSON, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		th.AssertDirExists(t, filepath.Dir(got))
		th.AssertFileExists(t, got)
		if content := th.MustReadFile(t, got); !strings.Contains(content, `"imdb_id": "tt0113277"`) {
			t.Errorf("unexpected file content: %s", content)
		}
	})
}
