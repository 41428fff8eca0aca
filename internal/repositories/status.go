package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

// StatusRepository stores the one-to-one soft status of a movie.
type StatusRepository struct {
	db DBTX
}

// NewStatusRepository creates a new StatusRepository with the given database connection
func NewStatusRepository(db DBTX) *StatusRepository {
	return &StatusRepository{db: db}
}

// Get returns the status row of movie.
func (r *StatusRepository) Get(ctx context.Context, movie models.MovieID) (*models.Status, error) {
	var (
		state string
		list  sql.NullString
	)
	err := r.db.QueryRowContext(ctx, "SELECT status, custom_list_id FROM movie_status WHERE movie_id = ?", movie.Value).Scan(&state, &list)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("status", movie.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan status: %w", err)
	}
	return &models.Status{MovieID: movie, State: models.State(state), CustomListID: list.String}, nil
}

// Upsert writes s.
func (r *StatusRepository) Upsert(ctx context.Context, s *models.Status) error {
	if err := s.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO movie_status (movie_id, status, custom_list_id) VALUES (?, ?, ?)
		ON CONFLICT(movie_id) DO UPDATE SET status = excluded.status, custom_list_id = excluded.custom_list_id
	`
	if _, err := r.db.ExecContext(ctx, query, s.MovieID.Value, string(s.State), nullString(s.CustomListID)); err != nil {
		return fmt.Errorf("failed to upsert status: %w", err)
	}
	return nil
}

// ReleaseList moves every movie filed under list back to toWatch and returns the affected movie keys.
func (r *StatusRepository) ReleaseList(ctx context.Context, list string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT movie_id FROM movie_status WHERE custom_list_id = ?", list)
	if err != nil {
		return nil, fmt.Errorf("failed to query list members: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan list member: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating list members: %w", err)
	}

	query := "UPDATE movie_status SET status = 'toWatch', custom_list_id = NULL WHERE custom_list_id = ?"
	if _, err := r.db.ExecContext(ctx, query, list); err != nil {
		return nil, fmt.Errorf("failed to release list: %w", err)
	}
	return keys, nil
}
