package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
)

// SyncService implements [Remote] against the server's /health and /sync endpoints.
type SyncService struct {
	api *APIService
}

// NewSyncService creates a SyncService on top of api.
func NewSyncService(api *APIService) *SyncService {
	return &SyncService{api: api}
}

// Ping checks that the server is reachable.
func (s *SyncService) Ping(ctx context.Context) error {
	resp, err := s.api.Get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrOffline, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: health check returned %d", shared.ErrOffline, resp.StatusCode)
	}
	return nil
}

// Push sends one queued action.
//
// A reply with conflict=true and a server state is not an error: the caller applies the state. Any
// other failure is a [RequestError].
func (s *SyncService) Push(ctx context.Context, e *models.QueueEntry) (*PushResult, error) {
	data, err := payloadToWire(e.Payload)
	if err != nil {
		return nil, err
	}
	body := SyncAction{Action: e.Action, Data: data, Timestamp: int64(e.EnqueuedAt)}

	var reply SyncResponse
	if err := s.api.postJSON(ctx, "/sync", body, &reply); err != nil {
		return nil, err
	}

	result := &PushResult{}
	if reply.LastModified != nil {
		result.LastModified = models.FromSeconds(*reply.LastModified)
	}
	if reply.Conflict && reply.ServerState != nil {
		rec, err := reply.ServerState.Record()
		if err != nil {
			return nil, fmt.Errorf("%w: bad server state: %v", shared.ErrAPIRequest, err)
		}
		result.Conflict = true
		result.ServerState = rec
		result.Message = reply.Error
		return result, nil
	}
	if !reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = "server rejected the action"
		}
		return nil, &RequestError{Method: http.MethodPost, Path: "/sync", StatusCode: http.StatusOK, Message: msg, Rejected: true}
	}
	return result, nil
}

// FetchDelta pulls everything the server changed after since.
func (s *SyncService) FetchDelta(ctx context.Context, since models.Timestamp) (*models.Delta, error) {
	query := url.Values{"since": {strconv.FormatFloat(since.Seconds(), 'f', 3, 64)}}

	var wire WireDelta
	if err := s.api.getJSON(ctx, "/sync", query, &wire); err != nil {
		return nil, err
	}
	return wire.Delta(), nil
}
