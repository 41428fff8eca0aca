package queue

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

func setupQueue(t *testing.T, opts ...Option) (*Queue, *shared.FixedClock, *sql.DB) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(context.Background(), db))

	clock := shared.NewFixedClock(1_000_000)
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(db, opts...), clock, db
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, Base: 2 * time.Second, Max: 10 * time.Second}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{30, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.failures), "failures=%d", tt.failures)
	}
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns increasing sequence numbers", func(t *testing.T) {
		q, _, _ := setupQueue(t)

		first, err := q.Enqueue(ctx, models.ActionAddMovie, "tt001", models.MoviePayload{MovieID: "tt001"})
		require.NoError(t, err)
		second, err := q.Enqueue(ctx, models.ActionMarkWatched, "tt001", models.WatchPayload{MovieID: "tt001", Rating: 8})
		require.NoError(t, err)
		assert.Greater(t, second, first)

		entries, err := q.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, models.ActionAddMovie, entries[0].Action)
		assert.JSONEq(t, `{"imdb_id":"tt001"}`, string(entries[0].Payload))
	})

	t.Run("rejects unknown actions", func(t *testing.T) {
		q, _, _ := setupQueue(t)

		_, err := q.Enqueue(ctx, "shareMovie", "", map[string]string{})
		assert.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("EnqueueTx rolls back with the transaction", func(t *testing.T) {
		q, _, db := setupQueue(t)

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = q.EnqueueTx(ctx, tx, models.ActionAddPerson, "", models.PersonPayload{Name: "Alice"}, 42)
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		entries, err := q.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestDequeueNextPending(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		q, _, _ := setupQueue(t)

		e, err := q.DequeueNextPending(ctx, false)
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("backed off head blocks the queue", func(t *testing.T) {
		q, clock, _ := setupQueue(t)

		first, _ := q.Enqueue(ctx, models.ActionAddMovie, "tt001", models.MoviePayload{MovieID: "tt001"})
		_, _ = q.Enqueue(ctx, models.ActionAddMovie, "tt002", models.MoviePayload{MovieID: "tt002"})

		exhausted, err := q.MarkFailed(ctx, first, errors.New("connection refused"))
		require.NoError(t, err)
		assert.False(t, exhausted)

		e, err := q.DequeueNextPending(ctx, false)
		require.NoError(t, err)
		assert.Nil(t, e, "later entries must not overtake a backed off head")

		e, err = q.DequeueNextPending(ctx, true)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, first, e.Seq)

		clock.Advance(3 * time.Second)
		e, err = q.DequeueNextPending(ctx, false)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, first, e.Seq)
		assert.Equal(t, 1, e.RetryCount)
		assert.Equal(t, "connection refused", e.LastError)
	})

	t.Run("in flight head is not handed out twice", func(t *testing.T) {
		q, _, _ := setupQueue(t)

		seq, _ := q.Enqueue(ctx, models.ActionAddMovie, "tt001", models.MoviePayload{MovieID: "tt001"})
		require.NoError(t, q.MarkProcessing(ctx, seq))

		e, err := q.DequeueNextPending(ctx, true)
		require.NoError(t, err)
		assert.Nil(t, e)

		n, err := q.Recover(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		e, err = q.DequeueNextPending(ctx, true)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, seq, e.Seq)
	})
}

func TestFailureLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("exhausted entries are parked and logged", func(t *testing.T) {
		q, _, _ := setupQueue(t, WithPolicy(RetryPolicy{MaxRetries: 2, Base: time.Second, Max: time.Minute}))

		parked, _ := q.Enqueue(ctx, models.ActionAddMovie, "tt001", models.MoviePayload{MovieID: "tt001"})
		next, _ := q.Enqueue(ctx, models.ActionAddMovie, "tt002", models.MoviePayload{MovieID: "tt002"})

		exhausted, err := q.MarkFailed(ctx, parked, errors.New("503"))
		require.NoError(t, err)
		assert.False(t, exhausted)

		exhausted, err = q.MarkFailed(ctx, parked, errors.New("503"))
		require.NoError(t, err)
		assert.True(t, exhausted)

		e, err := q.DequeueNextPending(ctx, true)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, next, e.Seq, "parked entries leave the drain")

		counts, err := q.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[models.EntryFailed])

		logs, err := q.Log(ctx, models.LogExhausted, 0)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, parked, logs[0].Seq)

		require.NoError(t, q.Retry(ctx, parked))
		e, _ = q.DequeueNextPending(ctx, false)
		require.NotNil(t, e)
		assert.Equal(t, parked, e.Seq, "retried entry keeps its place in line")
		assert.Zero(t, e.RetryCount)
	})

	t.Run("reject removes the entry and keeps a record", func(t *testing.T) {
		q, _, _ := setupQueue(t)

		seq, _ := q.Enqueue(ctx, models.ActionUpdateStatus, "tt001", models.StatusPayload{MovieID: "tt001", Status: models.Watched})
		require.NoError(t, q.Reject(ctx, seq, errors.New("422: invalid status")))

		_, err := q.Get(ctx, seq)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		logs, err := q.Log(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, models.LogRejected, logs[0].Kind)
		assert.Equal(t, "422: invalid status", logs[0].Message)
	})

	t.Run("MarkDone", func(t *testing.T) {
		q, _, _ := setupQueue(t)

		seq, _ := q.Enqueue(ctx, models.ActionDeletePerson, "", models.DeletePersonPayload{Name: "Bob"})
		require.NoError(t, q.MarkProcessing(ctx, seq))
		require.NoError(t, q.MarkDone(ctx, seq))

		counts, _ := q.Counts(ctx)
		assert.Empty(t, counts)
	})

	t.Run("Release", func(t *testing.T) {
		q, _, _ := setupQueue(t)

		seq, _ := q.Enqueue(ctx, models.ActionAddMovie, "tt001", models.MoviePayload{MovieID: "tt001"})
		require.NoError(t, q.MarkProcessing(ctx, seq))
		require.NoError(t, q.Release(ctx, seq))

		head, err := q.DequeueNextPending(ctx, false)
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, seq, head.Seq)
		assert.Zero(t, head.RetryCount, "a release is not an attempt")
	})

	t.Run("Release leaves parked entries alone", func(t *testing.T) {
		q, _, _ := setupQueue(t, WithPolicy(RetryPolicy{MaxRetries: 1, Base: time.Second, Max: time.Second}))

		seq, _ := q.Enqueue(ctx, models.ActionAddMovie, "tt001", models.MoviePayload{MovieID: "tt001"})
		require.NoError(t, q.MarkProcessing(ctx, seq))
		exhausted, err := q.MarkFailed(ctx, seq, errors.New("timeout"))
		require.NoError(t, err)
		require.True(t, exhausted)
		require.NoError(t, q.Release(ctx, seq))

		entry, err := q.Get(ctx, seq)
		require.NoError(t, err)
		assert.Equal(t, models.EntryFailed, entry.State)
	})
}

func TestAck(t *testing.T) {
	ctx := context.Background()

	t.Run("removes an unchanged entry", func(t *testing.T) {
		q, _, _ := setupQueue(t)
		seq, _ := q.Enqueue(ctx, models.ActionAddMovie, "tt001", models.MoviePayload{MovieID: "tt001"})
		sent, err := q.DequeueNextPending(ctx, false)
		require.NoError(t, err)
		require.NoError(t, q.MarkProcessing(ctx, seq))

		resend, err := q.Ack(ctx, sent)
		require.NoError(t, err)
		assert.False(t, resend)
		counts, _ := q.Counts(ctx)
		assert.Empty(t, counts)
	})

	t.Run("keeps an entry rewritten while in flight", func(t *testing.T) {
		q, _, db := setupQueue(t)
		temp := models.TemporaryID("abc123")
		canonical := models.CanonicalID("tt004321")

		seq, _ := q.Enqueue(ctx, models.ActionAddMovie, temp.Value, models.MoviePayload{MovieID: temp.Value, Title: "Arrival"})
		sent, err := q.DequeueNextPending(ctx, false)
		require.NoError(t, err)
		require.NoError(t, q.MarkProcessing(ctx, seq))

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = q.RewriteMovieTx(ctx, tx, temp, canonical)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		resend, err := q.Ack(ctx, sent)
		require.NoError(t, err)
		assert.True(t, resend)

		head, err := q.DequeueNextPending(ctx, false)
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, canonical.Value, head.MovieRef)
		assert.Equal(t, models.EntryPending, head.State)
	})

	t.Run("missing entry", func(t *testing.T) {
		q, _, _ := setupQueue(t)
		_, err := q.Ack(ctx, &models.QueueEntry{Seq: 42, MovieRef: "tt001"})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestRewriteMovieTx(t *testing.T) {
	ctx := context.Background()
	q, _, db := setupQueue(t)

	temp := models.TemporaryID("abc123")
	canonical := models.CanonicalID("tt004321")

	_, _ = q.Enqueue(ctx, models.ActionAddMovie, temp.Value, models.MoviePayload{MovieID: temp.Value, Title: "Arrival"})
	voted, _ := q.Enqueue(ctx, models.ActionAddRecommendation, temp.Value, models.RecommendationPayload{MovieID: temp.Value, Person: "Alice", Vote: models.Upvote})
	_, _ = q.Enqueue(ctx, models.ActionAddMovie, "tt999", models.MoviePayload{MovieID: "tt999"})
	_, err := q.MarkFailed(ctx, voted, errors.New("timeout"))
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	n, err := q.RewriteMovieTx(ctx, tx, temp, canonical)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, 2, n)

	entries, err := q.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, e := range entries[:2] {
		assert.Equal(t, canonical.Value, e.MovieRef)
		var payload map[string]any
		require.NoError(t, Decode(e, &payload))
		assert.Equal(t, canonical.Value, payload["imdb_id"])
	}
	assert.Equal(t, "Arrival", mustField(t, entries[0], "title"))
	assert.Equal(t, "tt999", entries[2].MovieRef)
	assert.Equal(t, 1, entries[1].RetryCount, "rewrite keeps retry bookkeeping")
}

func mustField(t *testing.T, e *models.QueueEntry, key string) any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, Decode(e, &payload))
	return payload[key]
}
