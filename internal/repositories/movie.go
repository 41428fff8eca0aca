package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

var _ models.Repository[models.MovieID, *models.Movie] = (*MovieRepository)(nil)

// MovieRepository implements models.Repository[models.MovieID, *models.Movie].
//
// The id kind is stored in its own column so reads rebuild the tagged identifier without inspecting the key.
type MovieRepository struct {
	db DBTX
}

// NewMovieRepository creates a new MovieRepository with the given database connection
func NewMovieRepository(db DBTX) *MovieRepository {
	return &MovieRepository{db: db}
}

const movieColumns = "id, id_kind, title, year, tmdb_data, omdb_data, last_modified"

// Get retrieves a movie by key
func (r *MovieRepository) Get(ctx context.Context, id models.MovieID) (*models.Movie, error) {
	query := "SELECT " + movieColumns + " FROM movies WHERE id = ?"
	return r.scanOne(r.db.QueryRowContext(ctx, query, id.Value), id.Value)
}

// Exists reports whether a movie row exists for id.
func (r *MovieRepository) Exists(ctx context.Context, id models.MovieID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM movies WHERE id = ?)", id.Value).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check movie: %w", err)
	}
	return exists, nil
}

// LastModified returns the stored last_modified for id and whether the movie exists.
func (r *MovieRepository) LastModified(ctx context.Context, id models.MovieID) (models.Timestamp, bool, error) {
	var ts int64
	err := r.db.QueryRowContext(ctx, "SELECT last_modified FROM movies WHERE id = ?", id.Value).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read last_modified: %w", err)
	}
	return models.Timestamp(ts), true, nil
}

// Upsert inserts the movie or replaces every column of an existing row with the same key.
func (r *MovieRepository) Upsert(ctx context.Context, movie *models.Movie) error {
	if err := movie.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO movies (id, id_kind, title, year, tmdb_data, omdb_data, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			id_kind = excluded.id_kind,
			title = excluded.title,
			year = excluded.year,
			tmdb_data = excluded.tmdb_data,
			omdb_data = excluded.omdb_data,
			last_modified = excluded.last_modified
	`

	_, err := r.db.ExecContext(ctx, query,
		movie.ID.Value,
		movie.ID.Kind.String(),
		movie.Title,
		movie.Year,
		nullRaw(movie.TMDB),
		nullRaw(movie.OMDB),
		int64(movie.LastModified),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert movie: %w", err)
	}
	return nil
}

// Touch bumps last_modified for an existing movie.
func (r *MovieRepository) Touch(ctx context.Context, id models.MovieID, at models.Timestamp) error {
	result, err := r.db.ExecContext(ctx, "UPDATE movies SET last_modified = ? WHERE id = ?", int64(at), id.Value)
	if err != nil {
		return fmt.Errorf("failed to touch movie: %w", err)
	}
	return checkAffected(result, "movie", id.Value)
}

// Delete removes a movie row. Child rows cascade.
func (r *MovieRepository) Delete(ctx context.Context, id models.MovieID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM movies WHERE id = ?", id.Value)
	if err != nil {
		return fmt.Errorf("failed to delete movie: %w", err)
	}
	return checkAffected(result, "movie", id.Value)
}

// List retrieves movies matching criteria, newest first.
//
// Supported criteria: "status" (models.State), "person" (string), "list" (custom list id),
// "kind" (models.IDKind), "limit" (int). Movies without a status row count as toWatch.
func (r *MovieRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Movie, error) {
	var conds []string
	var args []any

	if state, ok := criteria["status"].(models.State); ok && state != "" {
		if state == models.ToWatch {
			conds = append(conds, "COALESCE(s.status, 'toWatch') = ?")
		} else {
			conds = append(conds, "s.status = ?")
		}
		args = append(args, string(state))
	}
	if person, ok := criteria["person"].(string); ok && person != "" {
		conds = append(conds, "EXISTS(SELECT 1 FROM recommendations rc WHERE rc.movie_id = m.id AND rc.person = ?)")
		args = append(args, person)
	}
	if list, ok := criteria["list"].(string); ok && list != "" {
		conds = append(conds, "s.custom_list_id = ?")
		args = append(args, list)
	}
	if kind, ok := criteria["kind"].(models.IDKind); ok {
		conds = append(conds, "m.id_kind = ?")
		args = append(args, kind.String())
	}

	query := `
		SELECT m.id, m.id_kind, m.title, m.year, m.tmdb_data, m.omdb_data, m.last_modified
		FROM movies m
		LEFT JOIN movie_status s ON s.movie_id = m.id` +
		whereClause(conds) +
		" ORDER BY m.last_modified DESC, m.id" +
		limitClause(criteria)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	defer rows.Close()

	var movies []*models.Movie
	for rows.Next() {
		movie, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating movies: %w", err)
	}
	return movies, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *MovieRepository) scan(s scanner) (*models.Movie, error) {
	var (
		id, kind, title string
		year            int
		tmdb, omdb      sql.NullString
		lastModified    int64
	)
	if err := s.Scan(&id, &kind, &title, &year, &tmdb, &omdb, &lastModified); err != nil {
		return nil, err
	}

	idKind, err := models.ParseIDKind(kind)
	if err != nil {
		return nil, err
	}

	return &models.Movie{
		ID:           models.MovieID{Kind: idKind, Value: id},
		Title:        title,
		Year:         year,
		TMDB:         rawOrNil(tmdb),
		OMDB:         rawOrNil(omdb),
		LastModified: models.Timestamp(lastModified),
	}, nil
}

func (r *MovieRepository) scanOne(row *sql.Row, key string) (*models.Movie, error) {
	movie, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("movie", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan movie: %w", err)
	}
	return movie, nil
}

func (r *MovieRepository) scanRow(rows *sql.Rows) (*models.Movie, error) {
	movie, err := r.scan(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan movie: %w", err)
	}
	return movie, nil
}
