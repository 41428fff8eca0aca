package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

// WatchRepository stores the one-to-one watch history of a movie.
type WatchRepository struct {
	db DBTX
}

// NewWatchRepository creates a new WatchRepository with the given database connection
func NewWatchRepository(db DBTX) *WatchRepository {
	return &WatchRepository{db: db}
}

// Get returns the watch history of movie.
func (r *WatchRepository) Get(ctx context.Context, movie models.MovieID) (*models.WatchHistory, error) {
	var (
		at     int64
		rating float64
	)
	err := r.db.QueryRowContext(ctx, "SELECT watched_at, rating FROM watch_history WHERE movie_id = ?", movie.Value).Scan(&at, &rating)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("watch history", movie.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan watch history: %w", err)
	}
	return &models.WatchHistory{MovieID: movie, WatchedAt: models.Timestamp(at), Rating: rating}, nil
}

// Upsert writes w after checking the rating range.
func (r *WatchRepository) Upsert(ctx context.Context, w *models.WatchHistory) error {
	if err := w.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO watch_history (movie_id, watched_at, rating) VALUES (?, ?, ?)
		ON CONFLICT(movie_id) DO UPDATE SET watched_at = excluded.watched_at, rating = excluded.rating
	`
	if _, err := r.db.ExecContext(ctx, query, w.MovieID.Value, int64(w.WatchedAt), w.Rating); err != nil {
		return fmt.Errorf("failed to upsert watch history: %w", err)
	}
	return nil
}

// Delete removes the watch history of movie, if any.
func (r *WatchRepository) Delete(ctx context.Context, movie models.MovieID) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM watch_history WHERE movie_id = ?", movie.Value); err != nil {
		return fmt.Errorf("failed to delete watch history: %w", err)
	}
	return nil
}
