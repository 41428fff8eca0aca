package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func mustMovie(t *testing.T, repo *MovieRepository, key string, lm models.Timestamp) models.MovieID {
	t.Helper()
	id, err := models.ParseMovieID(key)
	if err != nil {
		t.Fatalf("bad movie id %q: %v", key, err)
	}
	if err := repo.Upsert(context.Background(), &models.Movie{ID: id, Title: "Title " + key, LastModified: lm}); err != nil {
		t.Fatalf("failed to upsert movie: %v", err)
	}
	return id
}

func TestMovieRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert and Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMovieRepository(db)
		movie := &models.Movie{
			ID:           models.CanonicalID("tt001"),
			Title:        "Heat",
			Year:         1995,
			TMDB:         json.RawMessage(`{"id":949}`),
			LastModified: 1000,
		}
		if err := repo.Upsert(ctx, movie); err != nil {
			t.Fatalf("failed to upsert movie: %v", err)
		}

		got, err := repo.Get(ctx, movie.ID)
		if err != nil {
			t.Fatalf("failed to get movie: %v", err)
		}
		if got.Title != "Heat" || got.Year != 1995 {
			t.Errorf("expected Heat (1995), got %s (%d)", got.Title, got.Year)
		}
		if string(got.TMDB) != `{"id":949}` {
			t.Errorf("expected tmdb blob to round trip, got %s", got.TMDB)
		}
		if got.OMDB != nil {
			t.Errorf("expected nil omdb blob, got %s", got.OMDB)
		}
	})

	t.Run("Kind survives storage", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMovieRepository(db)
		id := mustMovie(t, repo, "temp_abc123", 1)

		got, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("failed to get movie: %v", err)
		}
		if !got.ID.IsTemporary() {
			t.Errorf("expected temporary id, got %+v", got.ID)
		}
	})

	t.Run("Upsert replaces", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewMovieRepository(db)
		id := mustMovie(t, repo, "tt001", 1)
		if err := repo.Upsert(ctx, &models.Movie{ID: id, Title: "Renamed", LastModified: 2}); err != nil {
			t.Fatalf("failed to upsert movie: %v", err)
		}

		lm, ok, err := repo.LastModified(ctx, id)
		if err != nil || !ok {
			t.Fatalf("expected movie to exist: %v", err)
		}
		if lm != 2 {
			t.Errorf("expected last_modified 2, got %d", lm)
		}
	})

	t.Run("List by status and person", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		set := NewSet(db)
		a := mustMovie(t, set.Movies, "tt001", 1)
		b := mustMovie(t, set.Movies, "tt002", 2)
		mustMovie(t, set.Movies, "tt003", 3)

		if err := set.Statuses.Upsert(ctx, &models.Status{MovieID: b, State: models.Watched}); err != nil {
			t.Fatalf("failed to set status: %v", err)
		}
		if err := set.Recommendations.Upsert(ctx, &models.Recommendation{MovieID: a, Person: "Alice", Vote: models.Upvote}); err != nil {
			t.Fatalf("failed to add recommendation: %v", err)
		}

		watched, err := set.Movies.List(ctx, map[string]any{"status": models.Watched})
		if err != nil {
			t.Fatalf("failed to list movies: %v", err)
		}
		if len(watched) != 1 || watched[0].ID != b {
			t.Errorf("expected only tt002 to be watched, got %v", watched)
		}

		toWatch, _ := set.Movies.List(ctx, map[string]any{"status": models.ToWatch})
		if len(toWatch) != 2 {
			t.Errorf("expected movies without status to count as toWatch, got %d", len(toWatch))
		}

		alice, _ := set.Movies.List(ctx, map[string]any{"person": "Alice"})
		if len(alice) != 1 || alice[0].ID != a {
			t.Errorf("expected Alice's movie only, got %v", alice)
		}

		limited, _ := set.Movies.List(ctx, map[string]any{"limit": 1})
		if len(limited) != 1 || limited[0].ID.Value != "tt003" {
			t.Errorf("expected newest movie first, got %v", limited)
		}
	})

	t.Run("Delete cascades", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		set := NewSet(db)
		id := mustMovie(t, set.Movies, "tt001", 1)
		if err := set.Recommendations.Upsert(ctx, &models.Recommendation{MovieID: id, Person: "Alice", Vote: models.Upvote}); err != nil {
			t.Fatalf("failed to add recommendation: %v", err)
		}
		if err := set.Watches.Upsert(ctx, &models.WatchHistory{MovieID: id, WatchedAt: 5, Rating: 8}); err != nil {
			t.Fatalf("failed to add watch history: %v", err)
		}

		if err := set.Movies.Delete(ctx, id); err != nil {
			t.Fatalf("failed to delete movie: %v", err)
		}

		n, _ := set.Recommendations.CountReferencing(ctx, id)
		if n != 0 {
			t.Errorf("expected recommendations to cascade, %d remain", n)
		}
		if _, err := set.Watches.Get(ctx, id); err == nil {
			t.Error("expected watch history to cascade")
		}
	})
}

func TestRecommendationRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Re-vote replaces", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		set := NewSet(db)
		id := mustMovie(t, set.Movies, "tt001", 1)

		up := &models.Recommendation{MovieID: id, Person: "Alice", RecommendedAt: 10, Vote: models.Upvote}
		down := &models.Recommendation{MovieID: id, Person: "Alice", RecommendedAt: 20, Vote: models.Downvote}
		for _, rec := range []*models.Recommendation{up, down} {
			if err := set.Recommendations.Upsert(ctx, rec); err != nil {
				t.Fatalf("failed to upsert recommendation: %v", err)
			}
		}

		recs, err := set.Recommendations.ForMovie(ctx, id)
		if err != nil {
			t.Fatalf("failed to list recommendations: %v", err)
		}
		if len(recs) != 1 {
			t.Fatalf("expected exactly one recommendation, got %d", len(recs))
		}
		if recs[0].Vote != models.Downvote || recs[0].RecommendedAt != 20 {
			t.Errorf("expected the downvote to replace the upvote, got %+v", recs[0])
		}
	})

	t.Run("DeleteForMovie", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		set := NewSet(db)
		id := mustMovie(t, set.Movies, "tt001", 1)
		for _, p := range []string{"Alice", "Bob"} {
			if err := set.Recommendations.Upsert(ctx, &models.Recommendation{MovieID: id, Person: p, Vote: models.Upvote}); err != nil {
				t.Fatalf("failed to upsert recommendation: %v", err)
			}
		}

		n, err := set.Recommendations.DeleteForMovie(ctx, id)
		if err != nil {
			t.Fatalf("failed to clear recommendations: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 rows removed, got %d", n)
		}
	})
}

func TestStatusRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("ReleaseList", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		set := NewSet(db)
		a := mustMovie(t, set.Movies, "tt001", 1)
		b := mustMovie(t, set.Movies, "tt002", 1)
		if err := set.Statuses.Upsert(ctx, &models.Status{MovieID: a, State: models.Custom, CustomListID: "weekend"}); err != nil {
			t.Fatalf("failed to set status: %v", err)
		}
		if err := set.Statuses.Upsert(ctx, &models.Status{MovieID: b, State: models.Watched}); err != nil {
			t.Fatalf("failed to set status: %v", err)
		}

		released, err := set.Statuses.ReleaseList(ctx, "weekend")
		if err != nil {
			t.Fatalf("failed to release list: %v", err)
		}
		if len(released) != 1 || released[0] != "tt001" {
			t.Errorf("expected tt001 to be released, got %v", released)
		}

		s, _ := set.Statuses.Get(ctx, a)
		if s.State != models.ToWatch || s.CustomListID != "" {
			t.Errorf("expected tt001 back in toWatch, got %+v", s)
		}
		s, _ = set.Statuses.Get(ctx, b)
		if s.State != models.Watched {
			t.Errorf("expected tt002 untouched, got %+v", s)
		}
	})
}

func TestPersonAndListRepositories(t *testing.T) {
	ctx := context.Background()

	t.Run("EnsureExists only creates once", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewPersonRepository(db)
		if err := repo.Upsert(ctx, &models.Person{Name: "Alice", IsTrusted: true, Color: "#ff0000"}); err != nil {
			t.Fatalf("failed to upsert person: %v", err)
		}

		created, err := repo.EnsureExists(ctx, "Alice", 5)
		if err != nil {
			t.Fatalf("failed to ensure person: %v", err)
		}
		if created {
			t.Error("existing person must not be recreated")
		}

		created, _ = repo.EnsureExists(ctx, "Bob", 5)
		if !created {
			t.Error("expected Bob to be created")
		}

		bob, err := repo.Get(ctx, "Bob")
		if err != nil {
			t.Fatalf("failed to get Bob: %v", err)
		}
		if bob.IsTrusted || bob.Color != models.DefaultColor {
			t.Errorf("expected untrusted Bob with default color, got %+v", bob)
		}

		trusted, _ := repo.List(ctx, map[string]any{"trusted": true})
		if len(trusted) != 1 || trusted[0].Name != "Alice" {
			t.Errorf("expected only Alice to be trusted, got %v", trusted)
		}
	})

	t.Run("Lists default styling and order", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewListRepository(db)
		for i, name := range []string{"Weekend", "Horror"} {
			pos, err := repo.NextPosition(ctx)
			if err != nil {
				t.Fatalf("failed to read next position: %v", err)
			}
			if pos != i {
				t.Errorf("expected position %d, got %d", i, pos)
			}
			if err := repo.Upsert(ctx, &models.CustomList{ID: name, Name: name, Position: pos}); err != nil {
				t.Fatalf("failed to upsert list: %v", err)
			}
		}

		lists, err := repo.List(ctx, nil)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(lists) != 2 || lists[0].Name != "Weekend" {
			t.Fatalf("expected Weekend first, got %v", lists)
		}
		if lists[0].Icon != models.DefaultIcon || lists[0].Color != models.DefaultColor {
			t.Errorf("expected default styling, got %+v", lists[0])
		}
	})
}

func TestQueueRepository(t *testing.T) {
	ctx := context.Background()

	insert := func(t *testing.T, repo *QueueRepository, action models.ActionKind, ref string) int64 {
		t.Helper()
		seq, err := repo.Insert(ctx, &models.QueueEntry{Action: action, MovieRef: ref, Payload: json.RawMessage(`{"imdb_id":"` + ref + `"}`), EnqueuedAt: 1})
		if err != nil {
			t.Fatalf("failed to insert entry: %v", err)
		}
		return seq
	}

	t.Run("Head follows seq and skips parked entries", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewQueueRepository(db)
		first := insert(t, repo, models.ActionAddMovie, "tt001")
		second := insert(t, repo, models.ActionMarkWatched, "tt001")

		head, err := repo.Head(ctx)
		if err != nil {
			t.Fatalf("failed to read head: %v", err)
		}
		if head.Seq != first {
			t.Errorf("expected head %d, got %d", first, head.Seq)
		}

		if err := repo.RecordFailure(ctx, first, 5, 0, models.EntryFailed, "gave up"); err != nil {
			t.Fatalf("failed to park entry: %v", err)
		}
		head, _ = repo.Head(ctx)
		if head == nil || head.Seq != second {
			t.Errorf("expected head to move past the parked entry, got %+v", head)
		}

		counts, _ := repo.Counts(ctx)
		if counts[models.EntryFailed] != 1 || counts[models.EntryPending] != 1 {
			t.Errorf("unexpected counts %v", counts)
		}
	})

	t.Run("Empty queue has no head", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		head, err := NewQueueRepository(db).Head(ctx)
		if err != nil || head != nil {
			t.Errorf("expected nil head, got %+v (%v)", head, err)
		}
	})

	t.Run("RecoverProcessing and ResetFailed", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewQueueRepository(db)
		a := insert(t, repo, models.ActionAddMovie, "tt001")
		b := insert(t, repo, models.ActionAddMovie, "tt002")
		if err := repo.SetState(ctx, a, models.EntryProcessing); err != nil {
			t.Fatalf("failed to set state: %v", err)
		}
		if err := repo.RecordFailure(ctx, b, 3, 99, models.EntryFailed, "boom"); err != nil {
			t.Fatalf("failed to record failure: %v", err)
		}

		if n, _ := repo.RecoverProcessing(ctx); n != 1 {
			t.Errorf("expected one recovered entry, got %d", n)
		}
		if n, _ := repo.ResetFailed(ctx); n != 1 {
			t.Errorf("expected one reset entry, got %d", n)
		}

		e, _ := repo.Get(ctx, b)
		if e.State != models.EntryPending || e.RetryCount != 0 || e.LastError != "" {
			t.Errorf("expected a clean pending entry, got %+v", e)
		}
	})

	t.Run("UpdatePayload", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewQueueRepository(db)
		seq := insert(t, repo, models.ActionAddRecommendation, "temp_abc123")
		if err := repo.UpdatePayload(ctx, seq, "tt004321", []byte(`{"imdb_id":"tt004321"}`)); err != nil {
			t.Fatalf("failed to update payload: %v", err)
		}

		old, _ := repo.ForMovie(ctx, "temp_abc123")
		if len(old) != 0 {
			t.Errorf("expected no entries under the old key, got %d", len(old))
		}
		moved, _ := repo.ForMovie(ctx, "tt004321")
		if len(moved) != 1 || string(moved[0].Payload) != `{"imdb_id":"tt004321"}` {
			t.Errorf("expected rewritten entry, got %v", moved)
		}
	})
}

func TestMetadataRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewMetadataRepository(db)

	ts, err := repo.LastSync(ctx)
	if err != nil || ts != 0 {
		t.Errorf("expected zero last_sync on a fresh store, got %d (%v)", ts, err)
	}

	if err := repo.SetLastSync(ctx, 1700000000123); err != nil {
		t.Fatalf("failed to set last_sync: %v", err)
	}
	ts, _ = repo.LastSync(ctx)
	if ts != 1700000000123 {
		t.Errorf("expected 1700000000123, got %d", ts)
	}
}
