package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

// SearchResult is one normalized TMDB search hit returned by the proxy.
type SearchResult struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Name      string `json:"name,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Year      any    `json:"year"`
}

// MovieDetails is the proxy's TMDB details shape.
type MovieDetails struct {
	TMDBID int    `json:"tmdbId"`
	IMDBID string `json:"imdbId"`
	Title  string `json:"title"`
	Year   any    `json:"year"`
}

// MetadataService resolves canonical ids through the sync server's TMDB proxy.
type MetadataService struct {
	api *APIService
}

// NewMetadataService creates a MetadataService on top of api.
func NewMetadataService(api *APIService) *MetadataService {
	return &MetadataService{api: api}
}

// Search calls GET /external/tmdb/search. A zero year searches every year.
func (m *MetadataService) Search(ctx context.Context, title string, year int) ([]SearchResult, error) {
	query := url.Values{"q": {title}}
	if year > 0 {
		query.Set("year", strconv.Itoa(year))
	}
	var results []SearchResult
	if err := m.api.getJSON(ctx, "/external/tmdb/search", query, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Details calls GET /external/tmdb/movie/{id}.
func (m *MetadataService) Details(ctx context.Context, tmdbID int) (*MovieDetails, error) {
	var details MovieDetails
	if err := m.api.getJSON(ctx, "/external/tmdb/movie/"+strconv.Itoa(tmdbID), nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Resolve searches for title and returns the IMDb id of the first movie hit.
func (m *MetadataService) Resolve(ctx context.Context, title string, year int) (models.MovieID, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.MovieID{}, fmt.Errorf("%w: title is required", shared.ErrInvalidInput)
	}

	results, err := m.Search(ctx, title, year)
	if err != nil {
		return models.MovieID{}, fmt.Errorf("failed to search for %q: %w", title, err)
	}

	for _, r := range results {
		if r.ID == 0 || (r.MediaType != "" && r.MediaType != "movie") {
			continue
		}
		details, err := m.Details(ctx, r.ID)
		if err != nil {
			return models.MovieID{}, fmt.Errorf("failed to fetch details for %d: %w", r.ID, err)
		}
		if details.IMDBID == "" {
			return models.MovieID{}, fmt.Errorf("%w: %q has no IMDb id", shared.ErrNoMatch, title)
		}
		return models.ParseMovieID(details.IMDBID)
	}
	return models.MovieID{}, fmt.Errorf("%w: %q", shared.ErrNoMatch, title)
}
