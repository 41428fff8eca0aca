package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/reelsync/internal/models"
)

var _ models.Repository[string, *models.Person] = (*PersonRepository)(nil)

// PersonRepository implements models.Repository[string, *models.Person], keyed by name.
type PersonRepository struct {
	db DBTX
}

// NewPersonRepository creates a new PersonRepository with the given database connection
func NewPersonRepository(db DBTX) *PersonRepository {
	return &PersonRepository{db: db}
}

const personColumns = "name, is_trusted, is_default, color, emoji, last_modified"

// Get retrieves a person by name
func (r *PersonRepository) Get(ctx context.Context, name string) (*models.Person, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+personColumns+" FROM people WHERE name = ?", name)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("person", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan person: %w", err)
	}
	return p, nil
}

// Upsert inserts or fully replaces a person. Empty colors fall back to the default.
func (r *PersonRepository) Upsert(ctx context.Context, p *models.Person) error {
	if err := p.Validate(); err != nil {
		return err
	}
	withDefaults := p.WithDefaults()

	query := `
		INSERT INTO people (name, is_trusted, is_default, color, emoji, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			is_trusted = excluded.is_trusted,
			is_default = excluded.is_default,
			color = excluded.color,
			emoji = excluded.emoji,
			last_modified = excluded.last_modified
	`
	_, err := r.db.ExecContext(ctx, query,
		withDefaults.Name,
		withDefaults.IsTrusted,
		withDefaults.IsDefault,
		withDefaults.Color,
		nullString(withDefaults.Emoji),
		int64(withDefaults.LastModified),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert person: %w", err)
	}
	return nil
}

// EnsureExists creates an untrusted person with default styling when name is unknown.
func (r *PersonRepository) EnsureExists(ctx context.Context, name string, at models.Timestamp) (bool, error) {
	query := `
		INSERT INTO people (name, color, last_modified) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, name, models.DefaultColor, int64(at))
	if err != nil {
		return false, fmt.Errorf("failed to ensure person: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// Delete removes a person by name
func (r *PersonRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM people WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return checkAffected(result, "person", name)
}

// List retrieves people ordered by name. Supported criteria: "trusted" (bool), "limit" (int).
func (r *PersonRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Person, error) {
	var conds []string
	var args []any
	if trusted, ok := criteria["trusted"].(bool); ok {
		conds = append(conds, "is_trusted = ?")
		args = append(args, trusted)
	}

	query := "SELECT " + personColumns + " FROM people" + whereClause(conds) + " ORDER BY name" + limitClause(criteria)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	var people []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating people: %w", err)
	}
	return people, nil
}

func scanPerson(s scanner) (*models.Person, error) {
	var (
		p     models.Person
		emoji sql.NullString
		at    int64
	)
	if err := s.Scan(&p.Name, &p.IsTrusted, &p.IsDefault, &p.Color, &emoji, &at); err != nil {
		return nil, err
	}
	p.Emoji = emoji.String
	p.LastModified = models.Timestamp(at)
	return &p, nil
}
