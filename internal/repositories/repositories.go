package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/desertthunder/reelsync/internal/shared"
)

// DBTX is the subset of *sql.DB and *sql.Tx the repositories need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)

// Set groups the repositories bound to one connection or transaction.
type Set struct {
	Movies          *MovieRepository
	Recommendations *RecommendationRepository
	Watches         *WatchRepository
	Statuses        *StatusRepository
	People          *PersonRepository
	Lists           *ListRepository
	Queue           *QueueRepository
	Metadata        *MetadataRepository
	SyncLog         *SyncLogRepository
}

// NewSet binds every repository to db.
func NewSet(db DBTX) *Set {
	return &Set{
		Movies:          NewMovieRepository(db),
		Recommendations: NewRecommendationRepository(db),
		Watches:         NewWatchRepository(db),
		Statuses:        NewStatusRepository(db),
		People:          NewPersonRepository(db),
		Lists:           NewListRepository(db),
		Queue:           NewQueueRepository(db),
		Metadata:        NewMetadataRepository(db),
		SyncLog:         NewSyncLogRepository(db),
	}
}

// notFound wraps [shared.ErrNotFound] with the entity and key that were looked up.
func notFound(entity, key string) error {
	return fmt.Errorf("%w: %s %s", shared.ErrNotFound, entity, key)
}

// checkAffected turns a zero-row write into a not found error.
func checkAffected(result sql.Result, entity, key string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound(entity, key)
	}
	return nil
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func rawOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// whereClause joins conditions with AND, returning an empty string when there are none.
func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// limitClause reads an optional "limit" criterion.
func limitClause(criteria map[string]any) string {
	if n, ok := criteria["limit"].(int); ok && n > 0 {
		return fmt.Sprintf(" LIMIT %d", n)
	}
	return ""
}
