package tasks

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/reelsync/internal/merge"
	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/queue"
	"github.com/desertthunder/reelsync/internal/services"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/store"
	tu "github.com/desertthunder/reelsync/internal/testing"
)

// mockRemote records every call and answers pushes through pushFn (success when nil).
type mockRemote struct {
	mu       sync.Mutex
	pingErr  error
	pings    int
	pushed   []models.QueueEntry
	pushFn   func(e *models.QueueEntry) (*services.PushResult, error)
	delta    *models.Delta
	deltaErr error
	sinces   []models.Timestamp
}

func (m *mockRemote) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.pingErr
}

func (m *mockRemote) Push(ctx context.Context, e *models.QueueEntry) (*services.PushResult, error) {
	m.mu.Lock()
	m.pushed = append(m.pushed, *e)
	fn := m.pushFn
	m.mu.Unlock()
	if fn != nil {
		return fn(e)
	}
	return &services.PushResult{LastModified: e.EnqueuedAt}, nil
}

func (m *mockRemote) FetchDelta(ctx context.Context, since models.Timestamp) (*models.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinces = append(m.sinces, since)
	if m.deltaErr != nil {
		return nil, m.deltaErr
	}
	if m.delta != nil {
		return m.delta, nil
	}
	return &models.Delta{}, nil
}

func (m *mockRemote) actions() []models.ActionKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kinds []models.ActionKind
	for _, e := range m.pushed {
		kinds = append(kinds, e.Action)
	}
	return kinds
}

func (m *mockRemote) refs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []string
	for _, e := range m.pushed {
		refs = append(refs, e.MovieRef)
	}
	return refs
}

func statusError(code int) error {
	return &services.RequestError{Method: http.MethodPost, Path: "/sync", StatusCode: code}
}

func setupProcessor(t *testing.T, remote services.Remote, opts ...Option) (*Processor, *store.Store) {
	t.Helper()
	s, _, _ := tu.NewStore(t)
	return setupProcessorWith(t, s, remote, opts...), s
}

func setupProcessorWith(t *testing.T, s *store.Store, remote services.Remote, opts ...Option) *Processor {
	t.Helper()
	p := NewProcessor(s, remote, merge.New(s), opts...)
	t.Cleanup(p.Close)
	return p
}

func pendingCount(t *testing.T, s *store.Store) int {
	t.Helper()
	entries, err := s.Queue().List(context.Background(), "")
	require.NoError(t, err)
	return len(entries)
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("offline run leaves the queue untouched", func(t *testing.T) {
		remote := &mockRemote{pingErr: fmt.Errorf("%w: connection refused", shared.ErrOffline)}
		p, s := setupProcessor(t, remote)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt002"), "Alice", models.Upvote))
		before, err := s.Queue().List(ctx, "")
		require.NoError(t, err)

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, result.Offline)
		assert.ErrorIs(t, result.Cause, shared.ErrOffline)
		assert.Equal(t, models.StateOffline, result.Status.State)
		assert.Equal(t, 2, result.Status.PendingCount)
		assert.Empty(t, remote.actions())
		assert.Empty(t, remote.sinces, "no delta is pulled while offline")

		after, err := s.Queue().List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("drains in order then pulls the delta", func(t *testing.T) {
		remote := &mockRemote{delta: &models.Delta{
			People:    []models.Person{{Name: "Bob"}},
			Timestamp: models.Timestamp(tu.Epoch + 60_000),
		}}
		p, s := setupProcessor(t, remote)
		_, err := s.AddMovie(ctx, store.NewMovie{ID: "tt001", Title: "Alien"})
		require.NoError(t, err)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))
		require.NoError(t, s.MarkWatched(ctx, models.CanonicalID("tt001"), 9, 0))

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Pushed)
		assert.False(t, result.Halted)
		assert.Equal(t, []models.ActionKind{
			models.ActionAddMovie, models.ActionAddRecommendation, models.ActionMarkWatched,
		}, remote.actions())

		assert.Equal(t, []models.Timestamp{0}, remote.sinces)
		require.NotNil(t, result.Merge)
		assert.Equal(t, 1, result.Merge.People)
		assert.Equal(t, models.StateSynced, result.Status.State)
		assert.Equal(t, models.Timestamp(tu.Epoch+60_000), result.Status.LastSync)
		assert.Zero(t, pendingCount(t, s))

		_, err = p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.Timestamp(tu.Epoch+60_000), remote.sinces[1], "the next pull starts at last_sync")
	})

	t.Run("transient failure halts the drain and resumes from the same entry", func(t *testing.T) {
		var (
			mu   sync.Mutex
			down = true
		)
		remote := &mockRemote{}
		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			mu.Lock()
			defer mu.Unlock()
			if down {
				return nil, statusError(http.StatusServiceUnavailable)
			}
			return &services.PushResult{}, nil
		}
		p, s := setupProcessor(t, remote)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt002"), "Alice", models.Upvote))

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, result.Halted)
		assert.ErrorIs(t, result.Cause, shared.ErrTransient)
		assert.Equal(t, []string{"tt001"}, remote.refs(), "the second entry is not attempted")
		assert.Equal(t, models.StatePending, result.Status.State)
		assert.NotEmpty(t, result.Status.LastError)
		assert.Len(t, remote.sinces, 1, "the delta is still pulled after a halt")

		head, err := s.Queue().List(ctx, models.EntryPending)
		require.NoError(t, err)
		require.Len(t, head, 2)
		assert.Equal(t, 1, head[0].RetryCount)

		result, err = p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Pushed, "the backed off head blocks the queue")
		assert.Len(t, remote.refs(), 1)

		mu.Lock()
		down = false
		mu.Unlock()

		result, err = p.ForceSync(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Pushed)
		assert.Equal(t, []string{"tt001", "tt001", "tt002"}, remote.refs())
		assert.Equal(t, models.StateSynced, result.Status.State)
		assert.Empty(t, result.Status.LastError)
	})

	t.Run("permanent rejection does not block later entries", func(t *testing.T) {
		remote := &mockRemote{}
		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			if e.MovieRef == "tt001" {
				return nil, statusError(http.StatusUnprocessableEntity)
			}
			return &services.PushResult{}, nil
		}
		p, s := setupProcessor(t, remote)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt002"), "Alice", models.Upvote))

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Rejected)
		assert.Equal(t, 1, result.Pushed)
		assert.Zero(t, pendingCount(t, s))

		logged, err := s.Queue().Log(ctx, models.LogRejected, 0)
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Equal(t, "tt001", logged[0].MovieRef)

		rec, err := s.Movie(ctx, models.CanonicalID("tt001"))
		require.NoError(t, err)
		assert.Len(t, rec.Recommendations, 1, "the optimistic write stays visible")
	})

	t.Run("conflict applies the server record and consumes the entry", func(t *testing.T) {
		remote := &mockRemote{}
		p, s := setupProcessor(t, remote)
		id := models.CanonicalID("tt001")
		require.NoError(t, s.AddRecommendation(ctx, id, "Alice", models.Upvote))
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt002"), "Alice", models.Upvote))

		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			if e.MovieRef != "tt001" {
				return &services.PushResult{}, nil
			}
			return &services.PushResult{
				Conflict: true,
				Message:  "Conflict: server has a newer version of this movie",
				ServerState: &models.MovieRecord{
					Movie:           models.Movie{ID: id, Title: "Server Title", LastModified: models.Timestamp(tu.Epoch + 1_000_000)},
					Recommendations: []models.Recommendation{{MovieID: id, Person: "Bob", Vote: models.Downvote, RecommendedAt: 1}},
				},
			}, nil
		}

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Conflicts)
		assert.Equal(t, 1, result.Pushed)
		assert.Equal(t, models.StateConflict, result.Status.State)
		assert.Zero(t, pendingCount(t, s))

		rec, err := s.Movie(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Server Title", rec.Movie.Title)
		require.Len(t, rec.Recommendations, 1)
		assert.Equal(t, "Bob", rec.Recommendations[0].Person)

		logged, err := s.Queue().Log(ctx, models.LogConflict, 0)
		require.NoError(t, err)
		require.Len(t, logged, 1)
		assert.Contains(t, logged[0].Message, "newer version")
	})

	t.Run("re-vote before drain leaves one downvote", func(t *testing.T) {
		remote := &mockRemote{}
		p, s := setupProcessor(t, remote)
		id := models.CanonicalID("tt001")
		require.NoError(t, s.AddRecommendation(ctx, id, "Alice", models.Upvote))
		require.NoError(t, s.AddRecommendation(ctx, id, "Alice", models.Downvote))

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Pushed)

		var votes []models.Vote
		for _, e := range remote.pushed {
			var payload models.RecommendationPayload
			require.NoError(t, queue.Decode(&e, &payload))
			votes = append(votes, payload.Vote)
		}
		assert.Equal(t, []models.Vote{models.Upvote, models.Downvote}, votes)

		rec, err := s.Movie(ctx, id)
		require.NoError(t, err)
		require.Len(t, rec.Recommendations, 1)
		assert.Equal(t, models.Downvote, rec.Recommendations[0].Vote)
	})

	t.Run("exhausted entries are parked and surfaced", func(t *testing.T) {
		remote := &mockRemote{}
		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			if e.MovieRef == "tt001" {
				return nil, statusError(http.StatusBadGateway)
			}
			return &services.PushResult{}, nil
		}
		s, _, _ := tu.NewStore(t, queue.WithPolicy(queue.RetryPolicy{MaxRetries: 1, Base: time.Second, Max: time.Second}))
		p := setupProcessorWith(t, s, remote)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt002"), "Alice", models.Upvote))

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Exhausted)
		assert.Equal(t, models.StateConflict, result.Status.State)
		assert.Equal(t, 1, result.Status.FailedCount)
		require.Len(t, result.Status.Failures, 1)
		assert.Equal(t, models.ActionAddRecommendation, result.Status.Failures[0].Action)

		result, err = p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Pushed, "the parked entry no longer holds the queue")
		assert.Equal(t, 1, pendingCount(t, s), "the parked entry is kept for the user")
	})

	t.Run("delta failure leaves last sync alone", func(t *testing.T) {
		remote := &mockRemote{deltaErr: statusError(http.StatusInternalServerError)}
		p, s := setupProcessor(t, remote)

		_, err := p.RunOnce(ctx)
		require.ErrorIs(t, err, shared.ErrTransient)

		last, err := s.LastSync(ctx)
		require.NoError(t, err)
		assert.Zero(t, last)

		status, err := p.Status(ctx)
		require.NoError(t, err)
		assert.Contains(t, status.LastError, "failed to fetch delta")
		assert.Equal(t, models.StatePending, status.State, "a failed pull is not reported as synced")
	})

	t.Run("temporary movies are resolved before they are pushed", func(t *testing.T) {
		remote := &mockRemote{}
		s, _, _ := tu.NewStore(t)
		p := setupProcessorWith(t, s, remote, WithEnricher(stubEnricher{id: models.CanonicalID("tt0113277")}))
		rec, err := s.AddMovie(ctx, store.NewMovie{Title: "Heat", Year: 1995})
		require.NoError(t, err)
		require.NoError(t, s.AddRecommendation(ctx, rec.Movie.ID, "Alice", models.Upvote))

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		require.Len(t, result.Remapped, 1)
		assert.Equal(t, []string{"tt0113277", "tt0113277", rec.Movie.ID.Value}, remote.refs())
		assert.Equal(t, models.ActionDeleteMovie, remote.actions()[2])
	})

	t.Run("an entry whose outcome cannot be recorded is handed back", func(t *testing.T) {
		s, _, db := tu.NewStore(t)
		remote := &mockRemote{}
		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			if _, err := db.Exec("DROP TABLE sync_log"); err != nil {
				return nil, err
			}
			return nil, statusError(http.StatusUnprocessableEntity)
		}
		p := setupProcessorWith(t, s, remote)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))

		_, err := p.RunOnce(ctx)
		require.Error(t, err)

		head, err := s.Queue().DequeueNextPending(ctx, false)
		require.NoError(t, err)
		require.NotNil(t, head, "the head is pending again instead of stuck in processing")
		assert.Equal(t, models.EntryPending, head.State)
		assert.Zero(t, head.RetryCount)
	})

	t.Run("an entry repointed while in flight is sent again", func(t *testing.T) {
		remote := &mockRemote{}
		p, s := setupProcessor(t, remote)
		rec, err := s.AddMovie(ctx, store.NewMovie{Title: "Heat", Year: 1995})
		require.NoError(t, err)
		temp, canonical := rec.Movie.ID, models.CanonicalID("tt0113277")

		var once sync.Once
		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			var remapErr error
			once.Do(func() { _, remapErr = merge.New(s).Remap(ctx, temp, canonical) })
			return &services.PushResult{}, remapErr
		}

		result, err := p.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Pushed)
		assert.Equal(t, []string{temp.Value, canonical.Value, temp.Value}, remote.refs())
		assert.Equal(t, []models.ActionKind{models.ActionAddMovie, models.ActionAddMovie, models.ActionDeleteMovie}, remote.actions())
		assert.Zero(t, pendingCount(t, s))
	})
}

func TestInvalidServerRows(t *testing.T) {
	ctx := context.Background()
	server := tu.NewSyncServer(t)
	server.SetDelta(map[string]any{
		"movies": []map[string]any{
			{"imdb_id": "tt001", "title": "Alien", "last_modified": 1800000000.0, "recommendations": []any{}},
			{"imdb_id": "tt002", "title": "Archived", "status": "archived", "last_modified": 1800000000.0, "recommendations": []any{}},
			{
				"imdb_id": "tt003", "title": "Heat", "last_modified": 1800000000.0,
				"recommendations": []map[string]any{
					{"person": "", "date_recommended": 1700000000.0},
					{"person": "Dana", "date_recommended": 1700000000.0},
				},
			},
		},
		"people":            []any{},
		"deleted_movie_ids": []any{},
		"timestamp":         1800000001.0,
	})

	remote := services.NewSyncService(services.NewAPIService(server.URL, nil))
	p, s := setupProcessor(t, remote)

	result, err := p.RunOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, result.Merge)
	assert.Equal(t, 2, result.Merge.Applied)
	assert.Equal(t, 1, result.Merge.Dropped)
	assert.Equal(t, models.StateSynced, result.Status.State)

	_, err = s.Movie(ctx, models.CanonicalID("tt001"))
	require.NoError(t, err)
	_, err = s.Movie(ctx, models.CanonicalID("tt002"))
	assert.ErrorIs(t, err, shared.ErrNotFound)

	heat, err := s.Movie(ctx, models.CanonicalID("tt003"))
	require.NoError(t, err)
	require.Len(t, heat.Recommendations, 1)
	assert.Equal(t, "Dana", heat.Recommendations[0].Person)

	last, err := s.LastSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Timestamp(1_800_000_001_000), last)

	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.000", "1800000001.000"}, server.Since(), "the next pull moves past the bad rows")
}

type stubEnricher struct {
	id models.MovieID
}

func (e stubEnricher) Resolve(context.Context, string, int) (models.MovieID, error) {
	return e.id, nil
}

func TestSingleWriter(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent calls share one run", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once

		remote := &mockRemote{}
		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			once.Do(func() { close(started) })
			<-release
			return &services.PushResult{}, nil
		}
		p, s := setupProcessor(t, remote)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))

		results := make(chan *RunResult, 2)
		go func() {
			r, _ := p.RunOnce(ctx)
			results <- r
		}()
		<-started
		assert.True(t, p.IsRunning())

		go func() {
			r, _ := p.ForceSync(ctx)
			results <- r
		}()
		time.Sleep(20 * time.Millisecond)
		close(release)

		first, second := <-results, <-results
		require.NotNil(t, first)
		assert.Same(t, first, second)
		remote.mu.Lock()
		assert.Equal(t, 1, remote.pings)
		remote.mu.Unlock()
		assert.Len(t, remote.actions(), 1)
		assert.False(t, p.IsRunning())
	})

	t.Run("a cancelled caller does not abort the run", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		remote := &mockRemote{}
		remote.pushFn = func(e *models.QueueEntry) (*services.PushResult, error) {
			close(started)
			<-release
			return &services.PushResult{}, nil
		}
		p, s := setupProcessor(t, remote)
		require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))

		statuses, err := p.Subscribe(t.Context())
		require.NoError(t, err)

		callCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			_, err := p.RunOnce(callCtx)
			done <- err
		}()
		<-started
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)

		close(release)
		start := <-statuses
		assert.True(t, start.IsProcessing)
		end := <-statuses
		assert.False(t, end.IsProcessing)
		assert.Zero(t, pendingCount(t, s), "the entry was still delivered")
	})
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	remote := &mockRemote{}
	p, s := setupProcessor(t, remote)

	status, err := p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StateSynced, status.State)
	assert.False(t, status.IsProcessing)

	require.NoError(t, s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote))
	status, err = p.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, status.State)
	assert.Equal(t, 1, status.PendingCount)
}

func TestRun(t *testing.T) {
	remote := &mockRemote{}
	p, _ := setupProcessor(t, remote, WithInterval(time.Hour))

	statuses, err := p.Subscribe(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// initial run
	<-statuses
	<-statuses

	p.Trigger()
	<-statuses
	<-statuses

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	remote.mu.Lock()
	defer remote.mu.Unlock()
	assert.Equal(t, 2, remote.pings)
}

func TestFollow(t *testing.T) {
	p, _ := setupProcessor(t, &mockRemote{})
	changes := make(chan models.Change, 3)
	changes <- models.Change{Origin: models.OriginRemote, Entity: models.EntityMovie}
	changes <- models.Change{Origin: models.OriginLocal, Entity: models.EntityQueue}
	close(changes)

	p.Follow(context.Background(), changes)
	select {
	case <-p.trigger:
		t.Fatal("remote and queue changes must not trigger a run")
	default:
	}

	changes = make(chan models.Change, 1)
	changes <- models.Change{Origin: models.OriginLocal, Entity: models.EntityMovie}
	close(changes)
	p.Follow(context.Background(), changes)
	select {
	case <-p.trigger:
	default:
		t.Fatal("expected a trigger for a local change")
	}
}

func TestSyncServerRoundTrip(t *testing.T) {
	ctx := context.Background()
	server := tu.NewSyncServer(t)
	server.SetDelta(map[string]any{
		"movies": []map[string]any{{
			"imdb_id": "tt009", "title": "From Server", "last_modified": 1800000000.0,
			"recommendations": []map[string]any{{"person": "Dana", "date_recommended": 1700000000.0}},
		}},
		"people":            []any{},
		"deleted_movie_ids": []any{},
		"timestamp":         1800000001.0,
	})

	remote := services.NewSyncService(services.NewAPIService(server.URL, nil))
	p, s := setupProcessor(t, remote)
	_, err := s.AddMovie(ctx, store.NewMovie{ID: "tt001", Title: "Alien"})
	require.NoError(t, err)
	require.NoError(t, s.MarkWatched(ctx, models.CanonicalID("tt001"), 7.5, models.Timestamp(1_600_000_000_500)))

	server.SetDown(true)
	result, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, result.Offline)
	assert.Equal(t, 2, pendingCount(t, s))

	server.SetDown(false)
	result, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pushed)

	received := server.Received()
	require.Len(t, received, 2)
	assert.Equal(t, "addMovie", received[0].Action)
	assert.Equal(t, "markWatched", received[1].Action)
	assert.Equal(t, 1_600_000_000.5, received[1].Data["date_watched"])
	assert.Equal(t, 7.5, received[1].Data["my_rating"])
	assert.Equal(t, []string{"0.000"}, server.Since())

	rec, err := s.Movie(ctx, models.CanonicalID("tt009"))
	require.NoError(t, err)
	assert.Equal(t, "From Server", rec.Movie.Title)
	assert.Equal(t, models.Timestamp(1_800_000_000_000), rec.Movie.LastModified)

	last, err := s.LastSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Timestamp(1_800_000_001_000), last)
}
