// Package store is the local source of truth. Every optimistic write validates, applies and enqueues
// in one transaction, and committed changes are published to subscribers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/notify"
	"github.com/desertthunder/reelsync/internal/queue"
	"github.com/desertthunder/reelsync/internal/repositories"
	"github.com/desertthunder/reelsync/internal/shared"
)

// Store owns the entity tables and the change hub.
type Store struct {
	db      *sql.DB
	queue   *queue.Queue
	clock   shared.Clock
	logger  *log.Logger
	changes *notify.Hub[models.Change]
	device  string
}

// Option configures a [Store].
type Option func(*Store)

// WithClock replaces the queue's clock for local timestamps.
func WithClock(c shared.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the store logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = shared.WithLogger(l, "component", "store") }
}

// Open binds a store to a migrated database and makes sure the installation has a device id.
func Open(ctx context.Context, db *sql.DB, q *queue.Queue, opts ...Option) (*Store, error) {
	s := &Store{
		db:      db,
		queue:   q,
		clock:   q.Clock(),
		logger:  log.New(io.Discard),
		changes: notify.NewHub[models.Change](notify.DefaultBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}

	meta := repositories.NewMetadataRepository(db)
	device, ok, err := meta.Get(ctx, repositories.KeyDeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read device id: %w", err)
	}
	if !ok {
		device = shared.GenerateID()
		if err := meta.Set(ctx, repositories.KeyDeviceID, device); err != nil {
			return nil, fmt.Errorf("failed to store device id: %w", err)
		}
		s.logger.Info("registered device", "device", device)
	}
	s.device = device
	return s, nil
}

// DeviceID identifies this installation.
func (s *Store) DeviceID() string { return s.device }

// Queue returns the mutation queue the store appends to.
func (s *Store) Queue() *queue.Queue { return s.queue }

// DB exposes the underlying connection for read-only tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Subscribe delivers a [models.Change] for every committed write, local or remote, until ctx is done.
func (s *Store) Subscribe(ctx context.Context) (<-chan models.Change, error) {
	return s.changes.Subscribe(ctx, nil)
}

// Close ends every subscription.
func (s *Store) Close() {
	s.changes.Shutdown()
}

// Now reads the store clock.
func (s *Store) Now() models.Timestamp {
	return models.Timestamp(s.clock.NowMillis())
}

// Tx is a store transaction. The embedded repositories are bound to it.
type Tx struct {
	*repositories.Set
	// Origin is stamped on the changes published after commit.
	Origin models.Origin

	tx      *sql.Tx
	store   *Store
	changes []models.Change
	seen    map[models.Change]bool
}

// WithTx runs fn in a transaction. Changes recorded through [Tx.Touch] are published only after commit.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tx := &Tx{
		Set:    repositories.NewSet(sqlTx),
		Origin: models.OriginLocal,
		tx:     sqlTx,
		store:  s,
		seen:   map[models.Change]bool{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	at := s.Now()
	for i := range tx.changes {
		tx.changes[i].Origin = tx.Origin
		tx.changes[i].At = at
	}
	s.changes.Publish(tx.changes...)
	return nil
}

// Touch records that entity key changed.
func (t *Tx) Touch(entity models.Entity, key string) {
	c := models.Change{Entity: entity, Key: key}
	if t.seen[c] {
		return
	}
	t.seen[c] = true
	t.changes = append(t.changes, c)
}

// Conn returns the transaction for collaborators that take a [repositories.DBTX].
func (t *Tx) Conn() repositories.DBTX { return t.tx }

// Enqueue appends a queue entry inside the transaction.
func (t *Tx) Enqueue(ctx context.Context, action models.ActionKind, movieRef string, payload any, at models.Timestamp) (int64, error) {
	seq, err := t.store.queue.EnqueueTx(ctx, t.tx, action, movieRef, payload, at)
	if err != nil {
		return 0, err
	}
	t.Touch(models.EntityQueue, fmt.Sprint(seq))
	return seq, nil
}

// RewriteMovie repoints queue entries from one movie key to another.
func (t *Tx) RewriteMovie(ctx context.Context, from, to models.MovieID) (int, error) {
	n, err := t.store.queue.RewriteMovieTx(ctx, t.tx, from, to)
	if err == nil && n > 0 {
		t.Touch(models.EntityQueue, to.Value)
	}
	return n, err
}
