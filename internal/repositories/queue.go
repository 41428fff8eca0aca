package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

// QueueRepository is the SQL layer under the mutation queue. Lifecycle rules live in package queue.
type QueueRepository struct {
	db DBTX
}

// NewQueueRepository creates a new QueueRepository with the given database connection
func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

const queueColumns = "seq, action, movie_ref, payload, enqueued_at, state, retry_count, next_attempt_at, last_error"

// Insert appends e in the pending state and returns its sequence number.
func (r *QueueRepository) Insert(ctx context.Context, e *models.QueueEntry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	query := `
		INSERT INTO mutation_queue (action, movie_ref, payload, enqueued_at, state)
		VALUES (?, ?, ?, ?, 'pending')
	`
	result, err := r.db.ExecContext(ctx, query, string(e.Action), nullString(e.MovieRef), string(e.Payload), int64(e.EnqueuedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue entry: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue sequence: %w", err)
	}
	e.Seq = seq
	e.State = models.EntryPending
	return seq, nil
}

// Get retrieves an entry by sequence number.
func (r *QueueRepository) Get(ctx context.Context, seq int64) (*models.QueueEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, "SELECT "+queueColumns+" FROM mutation_queue WHERE seq = ?", seq))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("queue entry", fmt.Sprint(seq))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	return e, nil
}

// Head returns the lowest-seq entry that is not parked as failed, or nil when there is none.
func (r *QueueRepository) Head(ctx context.Context) (*models.QueueEntry, error) {
	query := "SELECT " + queueColumns + " FROM mutation_queue WHERE state <> 'failed' ORDER BY seq LIMIT 1"
	e, err := scanEntry(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue head: %w", err)
	}
	return e, nil
}

// SetState moves an entry to state without touching retry bookkeeping.
func (r *QueueRepository) SetState(ctx context.Context, seq int64, state models.EntryState) error {
	result, err := r.db.ExecContext(ctx, "UPDATE mutation_queue SET state = ? WHERE seq = ?", string(state), seq)
	if err != nil {
		return fmt.Errorf("failed to update queue entry state: %w", err)
	}
	return checkAffected(result, "queue entry", fmt.Sprint(seq))
}

// RecordFailure stores a failed attempt: the new retry count, when the entry becomes eligible again and its state.
func (r *QueueRepository) RecordFailure(ctx context.Context, seq int64, retries int, nextAttempt models.Timestamp, state models.EntryState, msg string) error {
	query := `
		UPDATE mutation_queue
		SET retry_count = ?, next_attempt_at = ?, state = ?, last_error = ?
		WHERE seq = ?
	`
	result, err := r.db.ExecContext(ctx, query, retries, int64(nextAttempt), string(state), msg, seq)
	if err != nil {
		return fmt.Errorf("failed to record queue failure: %w", err)
	}
	return checkAffected(result, "queue entry", fmt.Sprint(seq))
}

// Reset returns an entry to pending with a clean retry counter.
func (r *QueueRepository) Reset(ctx context.Context, seq int64) error {
	query := "UPDATE mutation_queue SET state = 'pending', retry_count = 0, next_attempt_at = 0, last_error = NULL WHERE seq = ?"
	result, err := r.db.ExecContext(ctx, query, seq)
	if err != nil {
		return fmt.Errorf("failed to reset queue entry: %w", err)
	}
	return checkAffected(result, "queue entry", fmt.Sprint(seq))
}

// ResetFailed returns every parked entry to pending and reports how many were reset.
func (r *QueueRepository) ResetFailed(ctx context.Context) (int64, error) {
	query := "UPDATE mutation_queue SET state = 'pending', retry_count = 0, next_attempt_at = 0, last_error = NULL WHERE state = 'failed'"
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed entries: %w", err)
	}
	return result.RowsAffected()
}

// RecoverProcessing returns entries left in processing by an interrupted run to pending.
func (r *QueueRepository) RecoverProcessing(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE mutation_queue SET state = 'pending' WHERE state = 'processing'")
	if err != nil {
		return 0, fmt.Errorf("failed to recover processing entries: %w", err)
	}
	return result.RowsAffected()
}

// Release returns an entry to pending if it is still marked processing and reports whether it was.
func (r *QueueRepository) Release(ctx context.Context, seq int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE mutation_queue SET state = 'pending' WHERE seq = ? AND state = 'processing'", seq)
	if err != nil {
		return false, fmt.Errorf("failed to release queue entry: %w", err)
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// Delete removes an entry.
func (r *QueueRepository) Delete(ctx context.Context, seq int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM mutation_queue WHERE seq = ?", seq)
	if err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return checkAffected(result, "queue entry", fmt.Sprint(seq))
}

// ForMovie lists the entries referencing movie key ref in seq order.
func (r *QueueRepository) ForMovie(ctx context.Context, ref string) ([]*models.QueueEntry, error) {
	return r.query(ctx, "SELECT "+queueColumns+" FROM mutation_queue WHERE movie_ref = ? ORDER BY seq", ref)
}

// UpdatePayload rewrites the movie reference and payload of an entry.
func (r *QueueRepository) UpdatePayload(ctx context.Context, seq int64, ref string, payload []byte) error {
	result, err := r.db.ExecContext(ctx, "UPDATE mutation_queue SET movie_ref = ?, payload = ? WHERE seq = ?", nullString(ref), string(payload), seq)
	if err != nil {
		return fmt.Errorf("failed to rewrite queue entry: %w", err)
	}
	return checkAffected(result, "queue entry", fmt.Sprint(seq))
}

// List returns entries in seq order. Supported criteria: "state" (models.EntryState), "limit" (int).
func (r *QueueRepository) List(ctx context.Context, criteria map[string]any) ([]*models.QueueEntry, error) {
	var conds []string
	var args []any
	if state, ok := criteria["state"].(models.EntryState); ok && state != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(state))
	}
	query := "SELECT " + queueColumns + " FROM mutation_queue" + whereClause(conds) + " ORDER BY seq" + limitClause(criteria)
	return r.query(ctx, query, args...)
}

// Counts returns the number of entries per state.
func (r *QueueRepository) Counts(ctx context.Context) (map[models.EntryState]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM mutation_queue GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count queue entries: %w", err)
	}
	defer rows.Close()

	counts := map[models.EntryState]int{}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan queue count: %w", err)
		}
		counts[models.EntryState(state)] = n
	}
	return counts, rows.Err()
}

func (r *QueueRepository) query(ctx context.Context, query string, args ...any) ([]*models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue: %w", err)
	}
	return entries, nil
}

func scanEntry(s scanner) (*models.QueueEntry, error) {
	var (
		e                         models.QueueEntry
		action, state, payload    string
		ref, lastErr              sql.NullString
		enqueuedAt, nextAttemptAt int64
	)
	err := s.Scan(&e.Seq, &action, &ref, &payload, &enqueuedAt, &state, &e.RetryCount, &nextAttemptAt, &lastErr)
	if err != nil {
		return nil, err
	}
	e.Action = models.ActionKind(action)
	e.MovieRef = ref.String
	e.Payload = []byte(payload)
	e.EnqueuedAt = models.Timestamp(enqueuedAt)
	e.State = models.EntryState(state)
	e.NextAttemptAt = models.Timestamp(nextAttemptAt)
	e.LastError = lastErr.String
	return &e, nil
}
