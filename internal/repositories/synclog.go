package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

// SyncLogRepository keeps actions the server rejected, that exhausted their retries, or that conflicted.
type SyncLogRepository struct {
	db DBTX
}

// NewSyncLogRepository creates a new SyncLogRepository with the given database connection
func NewSyncLogRepository(db DBTX) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Record appends a log row.
func (r *SyncLogRepository) Record(ctx context.Context, entry *models.SyncLogEntry) error {
	query := `
		INSERT INTO sync_log (seq, action, movie_ref, kind, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		entry.Seq,
		string(entry.Action),
		nullString(entry.MovieRef),
		string(entry.Kind),
		entry.Message,
		int64(entry.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record sync log: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// List returns log rows newest first. Supported criteria: "kind" (models.LogKind), "limit" (int).
func (r *SyncLogRepository) List(ctx context.Context, criteria map[string]any) ([]*models.SyncLogEntry, error) {
	var conds []string
	var args []any
	if kind, ok := criteria["kind"].(models.LogKind); ok && kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(kind))
	}

	query := "SELECT id, seq, action, movie_ref, kind, message, recorded_at FROM sync_log" +
		whereClause(conds) + " ORDER BY id DESC" + limitClause(criteria)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		var (
			e            models.SyncLogEntry
			action, kind string
			ref          sql.NullString
			at           int64
		)
		if err := rows.Scan(&e.ID, &e.Seq, &action, &ref, &kind, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		e.Action = models.ActionKind(action)
		e.MovieRef = ref.String
		e.Kind = models.LogKind(kind)
		e.RecordedAt = models.Timestamp(at)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}
	return entries, nil
}
