package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/repositories"
	"github.com/desertthunder/reelsync/internal/shared"
)

// MovieFilter narrows [Store.Movies]. Zero fields are ignored.
type MovieFilter struct {
	State  models.State
	Person string
	List   string
	Kind   *models.IDKind
	Limit  int
}

func (f MovieFilter) criteria() map[string]any {
	c := map[string]any{}
	if f.State != "" {
		c["status"] = f.State
	}
	if f.Person != "" {
		c["person"] = f.Person
	}
	if f.List != "" {
		c["list"] = f.List
	}
	if f.Kind != nil {
		c["kind"] = *f.Kind
	}
	if f.Limit > 0 {
		c["limit"] = f.Limit
	}
	return c
}

// Record loads a movie together with its recommendations, watch history and status.
func (t *Tx) Record(ctx context.Context, id models.MovieID) (*models.MovieRecord, error) {
	return loadRecord(ctx, t.Set, id)
}

func loadRecord(ctx context.Context, set *repositories.Set, id models.MovieID) (*models.MovieRecord, error) {
	movie, err := set.Movies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return hydrate(ctx, set, movie)
}

func hydrate(ctx context.Context, set *repositories.Set, movie *models.Movie) (*models.MovieRecord, error) {
	rec := &models.MovieRecord{Movie: *movie}

	recs, err := set.Recommendations.ForMovie(ctx, movie.ID)
	if err != nil {
		return nil, err
	}
	rec.Recommendations = recs

	watch, err := set.Watches.Get(ctx, movie.ID)
	switch {
	case err == nil:
		rec.Watch = watch
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	status, err := set.Statuses.Get(ctx, movie.ID)
	switch {
	case err == nil:
		rec.Status = status
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}
	return rec, nil
}

// Movie returns one movie record.
func (s *Store) Movie(ctx context.Context, id models.MovieID) (*models.MovieRecord, error) {
	return loadRecord(ctx, repositories.NewSet(s.db), id)
}

// Movies lists movie records, most recently modified first.
func (s *Store) Movies(ctx context.Context, filter MovieFilter) ([]models.MovieRecord, error) {
	set := repositories.NewSet(s.db)
	movies, err := set.Movies.List(ctx, filter.criteria())
	if err != nil {
		return nil, err
	}

	records := make([]models.MovieRecord, 0, len(movies))
	for _, m := range movies {
		rec, err := hydrate(ctx, set, m)
		if err != nil {
			return nil, fmt.Errorf("failed to load movie %s: %w", m.ID, err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Person returns one person.
func (s *Store) Person(ctx context.Context, name string) (*models.Person, error) {
	return repositories.NewPersonRepository(s.db).Get(ctx, name)
}

// People lists people by name. When trustedOnly is set, untrusted people are left out.
func (s *Store) People(ctx context.Context, trustedOnly bool) ([]models.Person, error) {
	criteria := map[string]any{}
	if trustedOnly {
		criteria["trusted"] = true
	}
	people, err := repositories.NewPersonRepository(s.db).List(ctx, criteria)
	if err != nil {
		return nil, err
	}
	out := make([]models.Person, len(people))
	for i, p := range people {
		out[i] = *p
	}
	return out, nil
}

// List returns one custom list.
func (s *Store) List(ctx context.Context, id string) (*models.CustomList, error) {
	return repositories.NewListRepository(s.db).Get(ctx, id)
}

// Lists returns custom lists in display order.
func (s *Store) Lists(ctx context.Context) ([]models.CustomList, error) {
	lists, err := repositories.NewListRepository(s.db).List(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]models.CustomList, len(lists))
	for i, l := range lists {
		out[i] = *l
	}
	return out, nil
}

// LastSync returns the server timestamp of the last merged delta, zero before the first sync.
func (s *Store) LastSync(ctx context.Context) (models.Timestamp, error) {
	return repositories.NewMetadataRepository(s.db).LastSync(ctx)
}

// Snapshot dumps every entity in a stable order: movies by key, people by name, lists by position.
func (s *Store) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.WithTx(ctx, func(tx *Tx) error {
		movies, err := tx.Movies.List(ctx, nil)
		if err != nil {
			return err
		}
		sort.Slice(movies, func(i, j int) bool { return movies[i].ID.Value < movies[j].ID.Value })
		for _, m := range movies {
			rec, err := hydrate(ctx, tx.Set, m)
			if err != nil {
				return err
			}
			snap.Movies = append(snap.Movies, *rec)
		}

		people, err := tx.People.List(ctx, nil)
		if err != nil {
			return err
		}
		for _, p := range people {
			snap.People = append(snap.People, *p)
		}

		lists, err := tx.Lists.List(ctx, nil)
		if err != nil {
			return err
		}
		for _, l := range lists {
			snap.Lists = append(snap.Lists, *l)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take snapshot: %w", err)
	}
	return &snap, nil
}
