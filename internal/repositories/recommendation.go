package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

// RecommendationRepository stores votes. (movie_id, person) is unique, so writes replace rather than append.
type RecommendationRepository struct {
	db DBTX
}

// NewRecommendationRepository creates a new RecommendationRepository with the given database connection
func NewRecommendationRepository(db DBTX) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

// Upsert records rec, replacing any earlier vote by the same person on the same movie.
func (r *RecommendationRepository) Upsert(ctx context.Context, rec *models.Recommendation) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO recommendations (movie_id, person, recommended_at, vote)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(movie_id, person) DO UPDATE SET
			recommended_at = excluded.recommended_at,
			vote = excluded.vote
	`
	if _, err := r.db.ExecContext(ctx, query, rec.MovieID.Value, rec.Person, int64(rec.RecommendedAt), string(rec.Vote)); err != nil {
		return fmt.Errorf("failed to upsert recommendation: %w", err)
	}
	return nil
}

// Get returns person's vote on movie.
func (r *RecommendationRepository) Get(ctx context.Context, movie models.MovieID, person string) (*models.Recommendation, error) {
	query := `
		SELECT recommended_at, vote FROM recommendations
		WHERE movie_id = ? AND person = ?
	`
	var (
		at   int64
		vote string
	)
	err := r.db.QueryRowContext(ctx, query, movie.Value, person).Scan(&at, &vote)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("recommendation", movie.Value+"/"+person)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recommendation: %w", err)
	}
	return &models.Recommendation{MovieID: movie, Person: person, RecommendedAt: models.Timestamp(at), Vote: models.Vote(vote)}, nil
}

// ForMovie lists the votes on movie ordered by person.
func (r *RecommendationRepository) ForMovie(ctx context.Context, movie models.MovieID) ([]models.Recommendation, error) {
	query := `
		SELECT person, recommended_at, vote FROM recommendations
		WHERE movie_id = ?
		ORDER BY person
	`
	rows, err := r.db.QueryContext(ctx, query, movie.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		rec := models.Recommendation{MovieID: movie}
		var (
			at   int64
			vote string
		)
		if err := rows.Scan(&rec.Person, &at, &vote); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		rec.RecommendedAt = models.Timestamp(at)
		rec.Vote = models.Vote(vote)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}
	return recs, nil
}

// Delete removes person's vote on movie.
func (r *RecommendationRepository) Delete(ctx context.Context, movie models.MovieID, person string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM recommendations WHERE movie_id = ? AND person = ?", movie.Value, person)
	if err != nil {
		return fmt.Errorf("failed to delete recommendation: %w", err)
	}
	return checkAffected(result, "recommendation", movie.Value+"/"+person)
}

// DeleteForMovie removes every vote on movie and returns how many were removed.
func (r *RecommendationRepository) DeleteForMovie(ctx context.Context, movie models.MovieID) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM recommendations WHERE movie_id = ?", movie.Value)
	if err != nil {
		return 0, fmt.Errorf("failed to clear recommendations: %w", err)
	}
	return result.RowsAffected()
}

// DeleteForPerson removes every vote cast by person.
func (r *RecommendationRepository) DeleteForPerson(ctx context.Context, person string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM recommendations WHERE person = ?", person); err != nil {
		return fmt.Errorf("failed to clear recommendations for %s: %w", person, err)
	}
	return nil
}

// CountReferencing returns how many rows point at movie.
func (r *RecommendationRepository) CountReferencing(ctx context.Context, movie models.MovieID) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recommendations WHERE movie_id = ?", movie.Value).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recommendations: %w", err)
	}
	return n, nil
}
