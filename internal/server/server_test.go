package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/reelsync/internal/models"
	"github.com/desertthunder/reelsync/internal/notify"
	"github.com/desertthunder/reelsync/internal/shared"
	"github.com/desertthunder/reelsync/internal/tasks"
	tu "github.com/desertthunder/reelsync/internal/testing"
)

type fakeSyncer struct {
	mu      sync.Mutex
	status  models.SyncStatus
	result  *tasks.RunResult
	err     error
	forced  int
	updates *notify.Hub[models.SyncStatus]
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{
		status:  models.SyncStatus{State: models.StatePending, PendingCount: 2, LastSync: 1_700_000_000_000},
		updates: notify.NewHub[models.SyncStatus](notify.DefaultBuffer),
	}
}

func (f *fakeSyncer) Status(context.Context) (models.SyncStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeSyncer) ForceSync(context.Context) (*tasks.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced++
	return f.result, f.err
}

func (f *fakeSyncer) Subscribe(ctx context.Context) (<-chan models.SyncStatus, error) {
	return f.updates.Subscribe(ctx, nil)
}

func TestBasicRouter(t *testing.T) {
	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("first"), mark("second"))
		r.HandleFunc(http.MethodGet, "/ping", func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "handler")
		})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		if got := strings.Join(order, ","); got != "first,second,handler" {
			t.Errorf("expected first,second,handler, got %s", got)
		}
	})

	t.Run("Wrong Method", func(t *testing.T) {
		r := NewBasicRouter()
		r.HandleFunc("get", "/ping", func(w http.ResponseWriter, _ *http.Request) {})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Recover", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(Recover(shared.NewLogger(io.Discard)))
		r.HandleFunc(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestStatusHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("Status", func(t *testing.T) {
		router := NewRouter(newFakeSyncer(), nil, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var view StatusView
		if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if view.State != models.StatePending || view.PendingCount != 2 || view.LastSync != 1_700_000_000_000 {
			t.Errorf("unexpected status %+v", view)
		}
	})

	t.Run("CORS Preflight", func(t *testing.T) {
		router := NewRouter(newFakeSyncer(), nil, nil)
		req := httptest.NewRequest(http.MethodOptions, "/status", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
			t.Errorf("expected origin to be allowed, got %q", got)
		}
	})

	t.Run("Queue", func(t *testing.T) {
		s, _, _ := tu.NewStore(t)
		if err := s.AddRecommendation(ctx, models.CanonicalID("tt001"), "Alice", models.Upvote); err != nil {
			t.Fatalf("failed to add recommendation: %v", err)
		}
		router := NewRouter(newFakeSyncer(), s.Queue(), nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue?state=pending", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var entries []EntryView
		if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(entries))
		}
		if entries[0].Action != models.ActionAddRecommendation || entries[0].MovieRef != "tt001" {
			t.Errorf("unexpected entry %+v", entries[0])
		}
		if !strings.Contains(string(entries[0].Payload), `"person":"Alice"`) {
			t.Errorf("expected payload to carry the person, got %s", entries[0].Payload)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue?state=bogus", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for an unknown state, got %d", rec.Code)
		}
	})

	t.Run("Force Sync", func(t *testing.T) {
		syncer := newFakeSyncer()
		syncer.result = &tasks.RunResult{Pushed: 3, Status: models.SyncStatus{State: models.StateSynced}}
		router := NewRouter(syncer, nil, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var view RunView
		if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if view.Pushed != 3 || view.Status.State != models.StateSynced {
			t.Errorf("unexpected run %+v", view)
		}
		if syncer.forced != 1 {
			t.Errorf("expected one forced run, got %d", syncer.forced)
		}
	})

	t.Run("Force Sync Failure", func(t *testing.T) {
		syncer := newFakeSyncer()
		syncer.err = errors.New("failed to fetch delta: boom")
		router := NewRouter(syncer, nil, nil)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "boom") {
			t.Errorf("expected error body, got %s", rec.Body.String())
		}
	})

	t.Run("Events", func(t *testing.T) {
		syncer := newFakeSyncer()
		srv := httptest.NewServer(NewRouter(syncer, nil, nil))
		defer srv.Close()

		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, srv.URL+"/events", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("failed to open stream: %v", err)
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("expected event stream, got %q", ct)
		}

		events := make(chan StatusView, 4)
		go func() {
			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				data, ok := strings.CutPrefix(scanner.Text(), "data: ")
				if !ok {
					continue
				}
				var view StatusView
				if json.Unmarshal([]byte(data), &view) == nil {
					events <- view
				}
			}
			close(events)
		}()

		first := <-events
		if first.State != models.StatePending {
			t.Errorf("expected the current status first, got %+v", first)
		}

		for syncer.updates.Len() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		syncer.updates.Publish(models.SyncStatus{State: models.StateSynced, IsProcessing: false})

		select {
		case next := <-events:
			if next.State != models.StateSynced {
				t.Errorf("expected synced, got %+v", next)
			}
		case <-reqCtx.Done():
			t.Fatal("timed out waiting for an event")
		}
	})
}

func TestServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := New(shared.ServerConfig{Host: "127.0.0.1", Port: 0}, NewRouter(newFakeSyncer(), nil, nil), nil)
	if s.Addr() != "127.0.0.1:0" {
		t.Errorf("unexpected addr %s", s.Addr())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("failed to reach server: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
