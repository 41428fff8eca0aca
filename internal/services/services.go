package services

import (
	"context"

	"github.com/desertthunder/reelsync/internal/models"
)

// Remote is the sync server as seen by the processor.
type Remote interface {
	// Ping returns an error wrapping [shared.ErrOffline] when the server cannot be reached.
	Ping(ctx context.Context) error

	// Push sends one queued action. Errors classify as [shared.ErrTransient] or [shared.ErrPermanent].
	Push(ctx context.Context, e *models.QueueEntry) (*PushResult, error)

	// FetchDelta returns the records changed after since.
	FetchDelta(ctx context.Context, since models.Timestamp) (*models.Delta, error)
}

// PushResult is the server's answer to an accepted or conflicting action.
type PushResult struct {
	LastModified models.Timestamp
	// Conflict is set when the server kept a newer version; ServerState carries it.
	Conflict    bool
	ServerState *models.MovieRecord
	Message     string
}

// Enricher resolves the canonical identifier of a title.
type Enricher interface {
	Resolve(ctx context.Context, title string, year int) (models.MovieID, error)
}

var (
	_ Remote   = (*SyncService)(nil)
	_ Enricher = (*MetadataService)(nil)
)
