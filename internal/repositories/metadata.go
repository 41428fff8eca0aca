package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/desertthunder/reelsync/internal/models"
)

// Well-known sync metadata keys.
const (
	KeyLastSync = "last_sync"
	KeyDeviceID = "device_id"
)

// MetadataRepository reads and writes the sync_metadata key/value table.
type MetadataRepository struct {
	db DBTX
}

// NewMetadataRepository creates a new MetadataRepository with the given database connection
func NewMetadataRepository(db DBTX) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Get returns the value stored under key and whether it was present.
func (r *MetadataRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM sync_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (r *MetadataRepository) Set(ctx context.Context, key, value string) error {
	query := "INSERT INTO sync_metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", key, err)
	}
	return nil
}

// LastSync returns the last successful sync timestamp, zero when the store never synced.
func (r *MetadataRepository) LastSync(ctx context.Context) (models.Timestamp, error) {
	v, ok, err := r.Get(ctx, KeyLastSync)
	if err != nil || !ok {
		return 0, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s %q: %w", KeyLastSync, v, err)
	}
	return models.Timestamp(ms), nil
}

// SetLastSync records ts as the last successful sync.
func (r *MetadataRepository) SetLastSync(ctx context.Context, ts models.Timestamp) error {
	return r.Set(ctx, KeyLastSync, strconv.FormatInt(int64(ts), 10))
}
