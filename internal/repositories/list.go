package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

var _ models.Repository[string, *models.CustomList] = (*ListRepository)(nil)

// ListRepository implements models.Repository[string, *models.CustomList].
type ListRepository struct {
	db DBTX
}

// NewListRepository creates a new ListRepository with the given database connection
func NewListRepository(db DBTX) *ListRepository {
	return &ListRepository{db: db}
}

const listColumns = "id, name, color, icon, position, created_at, last_modified"

// Get retrieves a custom list by id
func (r *ListRepository) Get(ctx context.Context, id string) (*models.CustomList, error) {
	l, err := scanList(r.db.QueryRowContext(ctx, "SELECT "+listColumns+" FROM custom_lists WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("list", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan list: %w", err)
	}
	return l, nil
}

// Upsert inserts or fully replaces a list, filling default styling.
func (r *ListRepository) Upsert(ctx context.Context, l *models.CustomList) error {
	if err := l.Validate(); err != nil {
		return err
	}
	v := l.WithDefaults()

	query := `
		INSERT INTO custom_lists (id, name, color, icon, position, created_at, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			icon = excluded.icon,
			position = excluded.position,
			created_at = excluded.created_at,
			last_modified = excluded.last_modified
	`
	_, err := r.db.ExecContext(ctx, query, v.ID, v.Name, v.Color, v.Icon, v.Position, int64(v.CreatedAt), int64(v.LastModified))
	if err != nil {
		return fmt.Errorf("failed to upsert list: %w", err)
	}
	return nil
}

// Delete removes a list by id
func (r *ListRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM custom_lists WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete list: %w", err)
	}
	return checkAffected(result, "list", id)
}

// NextPosition returns the position after the last list.
func (r *ListRepository) NextPosition(ctx context.Context) (int, error) {
	var pos int
	if err := r.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(position) + 1, 0) FROM custom_lists").Scan(&pos); err != nil {
		return 0, fmt.Errorf("failed to read list positions: %w", err)
	}
	return pos, nil
}

// List retrieves lists ordered by position. Supported criteria: "limit" (int).
func (r *ListRepository) List(ctx context.Context, criteria map[string]any) ([]*models.CustomList, error) {
	query := "SELECT " + listColumns + " FROM custom_lists ORDER BY position, id" + limitClause(criteria)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom lists: %w", err)
	}
	defer rows.Close()

	var lists []*models.CustomList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lists: %w", err)
	}
	return lists, nil
}

func scanList(s scanner) (*models.CustomList, error) {
	var (
		l                 models.CustomList
		created, modified int64
	)
	if err := s.Scan(&l.ID, &l.Name, &l.Color, &l.Icon, &l.Position, &created, &modified); err != nil {
		return nil, err
	}
	l.CreatedAt = models.Timestamp(created)
	l.LastModified = models.Timestamp(modified)
	return &l, nil
}
