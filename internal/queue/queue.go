// Package queue is the durable, strictly ordered log of local write intents awaiting the server.
package queue

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	gojson "github.com/goccy/go-json"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/repositories"
	"github.com/desertthunder/reelsync/internal/shared"
)

// RetryPolicy bounds how often and how quickly a failed entry is retried.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

// DefaultRetryPolicy matches the [sync] defaults of the example config.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, Base: 2 * time.Second, Max: 5 * time.Minute}
}

// PolicyFromConfig reads the [sync] section.
func PolicyFromConfig(c shared.SyncConfig) RetryPolicy {
	return RetryPolicy{MaxRetries: c.MaxRetries, Base: c.BackoffBase.Duration, Max: c.BackoffMax.Duration}
}

// Backoff returns the delay before attempt n+1 after n failures: min(base * 2^(n-1), max).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := p.Base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.Max || d <= 0 {
			return p.Max
		}
	}
	return min(d, p.Max)
}

// Queue wraps the mutation_queue table with lifecycle rules.
type Queue struct {
	db     *sql.DB
	repo   *repositories.QueueRepository
	log    *repositories.SyncLogRepository
	clock  shared.Clock
	policy RetryPolicy
	logger *log.Logger
}

// Option configures a [Queue].
type Option func(*Queue)

// WithClock replaces the system clock.
func WithClock(c shared.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithPolicy replaces [DefaultRetryPolicy].
func WithPolicy(p RetryPolicy) Option {
	return func(q *Queue) { q.policy = p }
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *log.Logger) Option {
	return func(q *Queue) { q.logger = shared.WithLogger(l, "component", "queue") }
}

// New creates a Queue over db.
func New(db *sql.DB, opts ...Option) *Queue {
	q := &Queue{
		db:     db,
		repo:   repositories.NewQueueRepository(db),
		log:    repositories.NewSyncLogRepository(db),
		clock:  shared.NewSystemClock(),
		policy: DefaultRetryPolicy(),
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Clock returns the clock entries are stamped with.
func (q *Queue) Clock() shared.Clock { return q.clock }

// Policy returns the retry policy in force.
func (q *Queue) Policy() RetryPolicy { return q.policy }

// Encode serializes an action payload. Raw JSON is passed through untouched.
func Encode(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	}
	data, err := gojson.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// Decode unmarshals an entry payload into dst.
func Decode(e *models.QueueEntry, dst any) error {
	if err := gojson.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: payload of entry %d (%s): %v", shared.ErrValidation, e.Seq, e.Action, err)
	}
	return nil
}

// Enqueue durably appends an action and returns its sequence number.
func (q *Queue) Enqueue(ctx context.Context, action models.ActionKind, movieRef string, payload any) (int64, error) {
	return q.EnqueueTx(ctx, q.db, action, movieRef, payload, 0)
}

// EnqueueTx appends an action through tx so it commits together with the local write it describes.
// A zero at is stamped from the queue clock.
func (q *Queue) EnqueueTx(ctx context.Context, tx repositories.DBTX, action models.ActionKind, movieRef string, payload any, at models.Timestamp) (int64, error) {
	data, err := Encode(payload)
	if err != nil {
		return 0, err
	}
	if at.IsZero() {
		at = models.Timestamp(q.clock.NowMillis())
	}
	e := &models.QueueEntry{Action: action, MovieRef: movieRef, Payload: data, EnqueuedAt: at}
	seq, err := repositories.NewQueueRepository(tx).Insert(ctx, e)
	if err != nil {
		return 0, err
	}
	q.logger.Debug("enqueued", "seq", seq, "action", action, "movie", movieRef)
	return seq, nil
}

// DequeueNextPending returns the head of the queue if it may be attempted now.
//
// The head is never skipped: when its backoff has not elapsed the result is nil, unless ignoreBackoff
// is set. Parked (failed) entries are not part of the drain. The entry is left in place; callers move it
// through MarkProcessing and then Ack, MarkDone or MarkFailed.
func (q *Queue) DequeueNextPending(ctx context.Context, ignoreBackoff bool) (*models.QueueEntry, error) {
	head, err := q.repo.Head(ctx)
	if err != nil || head == nil {
		return nil, err
	}
	if head.State != models.EntryPending {
		return nil, nil
	}
	if !ignoreBackoff && !head.Eligible(models.Timestamp(q.clock.NowMillis())) {
		return nil, nil
	}
	return head, nil
}

// MarkProcessing flags an entry as in flight.
func (q *Queue) MarkProcessing(ctx context.Context, seq int64) error {
	return q.repo.SetState(ctx, seq, models.EntryProcessing)
}

// MarkDone removes an acknowledged entry.
func (q *Queue) MarkDone(ctx context.Context, seq int64) error {
	return q.repo.Delete(ctx, seq)
}

// Ack removes an entry the server accepted. If the stored entry no longer matches sent, because a
// remap repointed it while the push was in flight, the stale copy is what the server saw: the entry
// goes back to pending so it is sent again, and resend is true.
func (q *Queue) Ack(ctx context.Context, sent *models.QueueEntry) (resend bool, err error) {
	err = q.withTx(ctx, func(tx *sql.Tx) error {
		repo := repositories.NewQueueRepository(tx)
		current, err := repo.Get(ctx, sent.Seq)
		if err != nil {
			return err
		}
		if current.MovieRef != sent.MovieRef || !bytes.Equal(current.Payload, sent.Payload) {
			resend = true
			return repo.SetState(ctx, sent.Seq, models.EntryPending)
		}
		return repo.Delete(ctx, sent.Seq)
	})
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge entry %d: %w", sent.Seq, err)
	}
	if resend {
		q.logger.Info("entry changed while in flight, sending again", "seq", sent.Seq, "movie", sent.MovieRef)
	}
	return resend, nil
}

// Release returns an entry left in processing by a failed attempt to pending without counting a
// retry. Entries in any other state are left alone.
func (q *Queue) Release(ctx context.Context, seq int64) error {
	released, err := q.repo.Release(ctx, seq)
	if err != nil {
		return err
	}
	if released {
		q.logger.Debug("released entry", "seq", seq)
	}
	return nil
}

// MarkFailed records a transient failure. The entry returns to pending with a backoff, or is parked as
// failed once the retry budget is spent, in which case exhausted is true.
func (q *Queue) MarkFailed(ctx context.Context, seq int64, cause error) (exhausted bool, err error) {
	msg := errMessage(cause)
	err = q.withTx(ctx, func(tx *sql.Tx) error {
		repo := repositories.NewQueueRepository(tx)
		e, err := repo.Get(ctx, seq)
		if err != nil {
			return err
		}

		now := models.Timestamp(q.clock.NowMillis())
		retries := e.RetryCount + 1
		if retries >= q.policy.MaxRetries {
			exhausted = true
			if err := repo.RecordFailure(ctx, seq, retries, now, models.EntryFailed, msg); err != nil {
				return err
			}
			return repositories.NewSyncLogRepository(tx).Record(ctx, &models.SyncLogEntry{
				Seq: seq, Action: e.Action, MovieRef: e.MovieRef, Kind: models.LogExhausted, Message: msg, RecordedAt: now,
			})
		}

		next := now + models.Timestamp(q.policy.Backoff(retries).Milliseconds())
		return repo.RecordFailure(ctx, seq, retries, next, models.EntryPending, msg)
	})
	if err != nil {
		return false, fmt.Errorf("failed to record failure for entry %d: %w", seq, err)
	}
	if exhausted {
		q.logger.Warn("entry exhausted its retries", "seq", seq, "error", msg)
	} else {
		q.logger.Debug("entry will be retried", "seq", seq, "error", msg)
	}
	return exhausted, nil
}

// Reject drops an entry the server refused permanently, keeping a sync log record of it.
func (q *Queue) Reject(ctx context.Context, seq int64, cause error) error {
	return q.consume(ctx, seq, models.LogRejected, cause)
}

// Resolve drops an entry answered with a conflict after the server state has been applied locally.
func (q *Queue) Resolve(ctx context.Context, seq int64, cause error) error {
	return q.consume(ctx, seq, models.LogConflict, cause)
}

func (q *Queue) consume(ctx context.Context, seq int64, kind models.LogKind, cause error) error {
	msg := errMessage(cause)
	err := q.withTx(ctx, func(tx *sql.Tx) error {
		repo := repositories.NewQueueRepository(tx)
		e, err := repo.Get(ctx, seq)
		if err != nil {
			return err
		}
		if err := repositories.NewSyncLogRepository(tx).Record(ctx, &models.SyncLogEntry{
			Seq: seq, Action: e.Action, MovieRef: e.MovieRef, Kind: kind, Message: msg,
			RecordedAt: models.Timestamp(q.clock.NowMillis()),
		}); err != nil {
			return err
		}
		return repo.Delete(ctx, seq)
	})
	if err != nil {
		return fmt.Errorf("failed to drop entry %d: %w", seq, err)
	}
	q.logger.Info("entry dropped", "seq", seq, "kind", kind, "error", msg)
	return nil
}

// Retry returns a parked or backed off entry to pending with a fresh retry budget.
func (q *Queue) Retry(ctx context.Context, seq int64) error {
	return q.repo.Reset(ctx, seq)
}

// RetryAll returns every parked entry to pending.
func (q *Queue) RetryAll(ctx context.Context) (int64, error) {
	return q.repo.ResetFailed(ctx)
}

// Clear discards an entry without sending it.
func (q *Queue) Clear(ctx context.Context, seq int64) error {
	return q.repo.Delete(ctx, seq)
}

// Get returns one entry.
func (q *Queue) Get(ctx context.Context, seq int64) (*models.QueueEntry, error) {
	return q.repo.Get(ctx, seq)
}

// List returns entries in seq order, optionally filtered by state.
func (q *Queue) List(ctx context.Context, state models.EntryState) ([]*models.QueueEntry, error) {
	return q.repo.List(ctx, map[string]any{"state": state})
}

// Counts returns the number of entries per state.
func (q *Queue) Counts(ctx context.Context) (map[models.EntryState]int, error) {
	return q.repo.Counts(ctx)
}

// Log returns sync log records, newest first. An empty kind returns every kind.
func (q *Queue) Log(ctx context.Context, kind models.LogKind, limit int) ([]*models.SyncLogEntry, error) {
	return q.log.List(ctx, map[string]any{"kind": kind, "limit": limit})
}

// Recover returns entries left in processing by an interrupted run to pending. Call once at startup.
func (q *Queue) Recover(ctx context.Context) (int64, error) {
	n, err := q.repo.RecoverProcessing(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("recovered interrupted entries", "count", n)
	}
	return n, nil
}

// RewriteMovieTx points every entry referencing from at to instead, in any state, rewriting the
// "imdb_id" field of each payload.
func (q *Queue) RewriteMovieTx(ctx context.Context, tx repositories.DBTX, from, to models.MovieID) (int, error) {
	repo := repositories.NewQueueRepository(tx)
	entries, err := repo.ForMovie(ctx, from.Value)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		payload, err := rewriteKey(e.Payload, to.Value)
		if err != nil {
			return 0, fmt.Errorf("failed to rewrite entry %d: %w", e.Seq, err)
		}
		if err := repo.UpdatePayload(ctx, e.Seq, to.Value, payload); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

func rewriteKey(payload json.RawMessage, key string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := gojson.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	encoded, err := gojson.Marshal(key)
	if err != nil {
		return nil, err
	}
	fields["imdb_id"] = encoded
	return gojson.Marshal(fields)
}

func (q *Queue) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
