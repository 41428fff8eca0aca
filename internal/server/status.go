package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/tasks"
)

const keepAliveInterval = 15 * time.Second

// Syncer is the part of [tasks.Processor] the status endpoints use.
type Syncer interface {
	Status(ctx context.Context) (models.SyncStatus, error)
	ForceSync(ctx context.Context) (*tasks.RunResult, error)
	Subscribe(ctx context.Context) (<-chan models.SyncStatus, error)
}

// QueueLister lists mutation queue entries, optionally filtered by state.
type QueueLister interface {
	List(ctx context.Context, state models.EntryState) ([]*models.QueueEntry, error)
}

// StatusHandler serves the sync status to local UI clients.
type StatusHandler struct {
	syncer Syncer
	queue  QueueLister
	logger *log.Logger
	mux    *http.ServeMux
}

// NewStatusHandler creates a [StatusHandler].
func NewStatusHandler(syncer Syncer, queue QueueLister, logger *log.Logger) *StatusHandler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	h := &StatusHandler{syncer: syncer, queue: queue, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /status", h.status)
	h.mux.HandleFunc("GET /queue", h.list)
	h.mux.HandleFunc("POST /sync", h.sync)
	h.mux.HandleFunc("GET /events", h.events)
	return h
}

// Routes returns the patterns served by the handler.
func (h *StatusHandler) Routes() []string {
	return []string{"GET /status", "GET /queue", "POST /sync", "GET /events"}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// StatusView is the JSON form of [models.SyncStatus].
type StatusView struct {
	State        models.SyncState `json:"state"`
	IsProcessing bool             `json:"is_processing"`
	PendingCount int              `json:"pending_count"`
	FailedCount  int              `json:"failed_count"`
	LastSync     int64            `json:"last_sync"`
	LastError    string           `json:"last_error,omitempty"`
	Failures     []FailureView    `json:"failures,omitempty"`
	At           int64            `json:"at"`
}

// FailureView is the JSON form of [models.Failure].
type FailureView struct {
	Seq     int64             `json:"seq"`
	Action  models.ActionKind `json:"action"`
	Message string            `json:"message"`
}

// EntryView is the JSON form of [models.QueueEntry].
type EntryView struct {
	Seq           int64             `json:"seq"`
	Action        models.ActionKind `json:"action"`
	MovieRef      string            `json:"movie_ref,omitempty"`
	State         models.EntryState `json:"state"`
	RetryCount    int               `json:"retry_count"`
	EnqueuedAt    int64             `json:"enqueued_at"`
	NextAttemptAt int64             `json:"next_attempt_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
}

// RunView is the JSON reply of POST /sync.
type RunView struct {
	Summary   string     `json:"summary"`
	Offline   bool       `json:"offline"`
	Pushed    int        `json:"pushed"`
	Rejected  int        `json:"rejected"`
	Conflicts int        `json:"conflicts"`
	Halted    bool       `json:"halted"`
	Remapped  int        `json:"remapped"`
	Merged    int        `json:"merged"`
	Status    StatusView `json:"status"`
}

// NewStatusView converts a status for the wire.
func NewStatusView(s models.SyncStatus) StatusView {
	v := StatusView{
		State:        s.State,
		IsProcessing: s.IsProcessing,
		PendingCount: s.PendingCount,
		FailedCount:  s.FailedCount,
		LastSync:     int64(s.LastSync),
		LastError:    s.LastError,
		At:           int64(s.At),
	}
	for _, f := range s.Failures {
		v.Failures = append(v.Failures, FailureView{Seq: f.Seq, Action: f.Action, Message: f.Message})
	}
	return v
}

// NewEntryView converts a queue entry for the wire.
func NewEntryView(e *models.QueueEntry) EntryView {
	return EntryView{
		Seq:           e.Seq,
		Action:        e.Action,
		MovieRef:      e.MovieRef,
		State:         e.State,
		RetryCount:    e.RetryCount,
		EnqueuedAt:    int64(e.EnqueuedAt),
		NextAttemptAt: int64(e.NextAttemptAt),
		LastError:     e.LastError,
		Payload:       json.RawMessage(e.Payload),
	}
}

func (h *StatusHandler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncer.Status(r.Context())
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, NewStatusView(status))
}

func (h *StatusHandler) list(w http.ResponseWriter, r *http.Request) {
	state, err := models.ParseEntryState(r.URL.Query().Get("state"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, err)
		return
	}

	entries, err := h.queue.List(r.Context(), state)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, NewEntryView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *StatusHandler) sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.ForceSync(r.Context())
	if err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusServiceUnavailable
		}
		h.fail(w, code, err)
		return
	}

	writeJSON(w, http.StatusOK, NewRunView(result))
}

// NewRunView converts a processor run result for the wire.
func NewRunView(result *tasks.RunResult) RunView {
	view := RunView{
		Summary:   result.Summary(),
		Offline:   result.Offline,
		Pushed:    result.Pushed,
		Rejected:  result.Rejected,
		Conflicts: result.Conflicts,
		Halted:    result.Halted,
		Remapped:  len(result.Remapped),
		Status:    NewStatusView(result.Status),
	}
	if result.Merge != nil {
		view.Merged = result.Merge.Applied
	}
	return view
}

// events streams every status change as a server-sent event, starting with the current status.
func (h *StatusHandler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, http.StatusInternalServerError, fmt.Errorf("%w: streaming unsupported", shared.ErrServiceUnavailable))
		return
	}

	ctx := r.Context()
	updates, err := h.syncer.Subscribe(ctx)
	if err != nil {
		h.fail(w, http.StatusServiceUnavailable, err)
		return
	}
	current, err := h.syncer.Status(ctx)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, current); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, status); err != nil {
				h.logger.Debug("event stream closed", "error", err)
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, status models.SyncStatus) error {
	data, err := json.Marshal(NewStatusView(status))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	return err
}

func (h *StatusHandler) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "status", code, "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// NewRouter builds the status server's handler. CORS wraps the whole router so preflight requests
// are answered before method routing.
func NewRouter(syncer Syncer, queue QueueLister, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := NewBasicRouter()
	r.Use(Recover(logger), Logging(logger))
	r.HandleFunc(http.MethodGet, "/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handler(NewStatusHandler(syncer, queue, logger))
	return CORS()(r)
}
