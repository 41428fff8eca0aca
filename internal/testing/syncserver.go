package testing

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	gojson "github.com/goccy/go-json"
)

// ReceivedAction is one POST /sync body seen by a [SyncServer].
type ReceivedAction struct {
	Action    string
	Data      map[string]any
	Timestamp int64
}

// SyncServer is an in-process stand-in for the remote sync API. It accepts every action unless
// told otherwise and serves a configurable delta.
type SyncServer struct {
	*httptest.Server

	mu       sync.Mutex
	down     bool
	received []ReceivedAction
	reject   map[string]string
	status   map[string]int
	delta    any
	since    []string
}

// NewSyncServer starts a SyncServer that is closed when the test ends.
func NewSyncServer(t *testing.T) *SyncServer {
	t.Helper()
	s := &SyncServer{
		reject: map[string]string{},
		status: map[string]int{},
		delta:  map[string]any{"movies": []any{}, "people": []any{}, "lists": []any{}, "deleted_movie_ids": []any{}, "timestamp": 0},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /sync", s.push)
	mux.HandleFunc("GET /sync", s.pull)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetDown makes every endpoint answer 503.
func (s *SyncServer) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Reject answers action with success=false and msg.
func (s *SyncServer) Reject(action, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[action] = msg
}

// FailWith answers action with the HTTP status code.
func (s *SyncServer) FailWith(action string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[action] = code
}

// SetDelta replaces the GET /sync reply. v is encoded as JSON.
func (s *SyncServer) SetDelta(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delta = v
}

// Received returns the accepted actions in arrival order.
func (s *SyncServer) Received() []ReceivedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceivedAction(nil), s.received...)
}

// Since returns the since parameters of every delta request.
func (s *SyncServer) Since() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.since...)
}

func (s *SyncServer) isDown(w http.ResponseWriter) bool {
	s.mu.Lock()
	down := s.down
	s.mu.Unlock()
	if down {
		http.Error(w, `{"detail":"maintenance"}`, http.StatusServiceUnavailable)
	}
	return down
}

func (s *SyncServer) health(w http.ResponseWriter, r *http.Request) {
	if s.isDown(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *SyncServer) push(w http.ResponseWriter, r *http.Request) {
	if s.isDown(w) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var in struct {
		Action    string          `json:"action"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := gojson.Unmarshal(body, &in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code, ok := s.status[in.Action]; ok {
		writeJSON(w, code, map[string]string{"detail": http.StatusText(code)})
		return
	}
	if msg, ok := s.reject[in.Action]; ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": msg})
		return
	}

	var data map[string]any
	gojson.Unmarshal(in.Data, &data)
	s.received = append(s.received, ReceivedAction{Action: in.Action, Data: data, Timestamp: in.Timestamp})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "last_modified": float64(in.Timestamp) / 1000})
}

func (s *SyncServer) pull(w http.ResponseWriter, r *http.Request) {
	if s.isDown(w) {
		return
	}
	s.mu.Lock()
	s.since = append(s.since, r.URL.Query().Get("since"))
	delta := s.delta
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, delta)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	gojson.NewEncoder(w).Encode(v)
}
