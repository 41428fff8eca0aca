package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

func TestRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			set := NewSet(db)
			id := models.CanonicalID("tt404")

			if _, err := set.Movies.Get(ctx, id); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for movie, got %v", err)
			}
			if _, err := set.People.Get(ctx, "nobody"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for person, got %v", err)
			}
			if _, err := set.Lists.Get(ctx, "nolist"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for list, got %v", err)
			}
			if _, err := set.Queue.Get(ctx, 42); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for queue entry, got %v", err)
			}
			if _, err := set.Recommendations.Get(ctx, id, "Alice"); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound for recommendation, got %v", err)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			set := NewSet(db)
			if err := set.Movies.Delete(ctx, models.CanonicalID("tt404")); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if err := set.Queue.Delete(ctx, 7); !errors.Is(err, shared.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	})

	t.Run("Validation", func(t *testing.T) {
		t.Run("RatingOutOfRange", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			set := NewSet(db)
			id := mustMovie(t, set.Movies, "tt001", 1)
			err := set.Watches.Upsert(ctx, &models.WatchHistory{MovieID: id, WatchedAt: 1, Rating: 11.0})
			if !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})

		t.Run("UnknownAction", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			_, err := NewQueueRepository(db).Insert(ctx, &models.QueueEntry{Action: "shareMovie", Payload: []byte(`{}`)})
			if !errors.Is(err, shared.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})

		t.Run("RecommendationForeignKey", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			err := NewRecommendationRepository(db).Upsert(ctx, &models.Recommendation{
				MovieID: models.CanonicalID("tt404"), Person: "Alice", Vote: models.Upvote,
			})
			if err == nil {
				t.Error("expected foreign key violation for an unknown movie")
			}
		})
	})
}
