package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	gojson "github.com/goccy/go-json"
)

// Change feed message types.
const (
	FeedConnected     = "connected"
	FeedMovieUpdated  = "movieUpdated"
	FeedPeopleUpdated = "peopleUpdated"
)

// FeedEvent is one message pushed by the server over /ws/sync.
type FeedEvent struct {
	Type      string  `json:"type"`
	IMDBID    string  `json:"imdb_id,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// ChangeFeed keeps a WebSocket open to the server and reports change notifications.
type ChangeFeed struct {
	url        string
	token      string
	client     *http.Client
	logger     *log.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewChangeFeed creates a feed for feedURL. A nil logger discards output.
func NewChangeFeed(feedURL, token string, logger *log.Logger) *ChangeFeed {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ChangeFeed{
		url:        feedURL,
		token:      token,
		client:     &http.Client{},
		logger:     logger.With("component", "feed"),
		minBackoff: time.Second,
		maxBackoff: time.Minute,
	}
}

// FeedURL returns feedURL when set, otherwise derives ws(s)://host/ws/sync from the API base URL.
func FeedURL(baseURL, feedURL string) (string, error) {
	if feedURL != "" {
		return feedURL, nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/sync"
	u.RawQuery = ""
	return u.String(), nil
}

// Run connects and reconnects with jittered backoff until ctx is done, calling onEvent for every
// message. It returns ctx.Err().
func (f *ChangeFeed) Run(ctx context.Context, onEvent func(FeedEvent)) error {
	backoff := f.minBackoff
	for {
		connected, err := f.listen(ctx, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.minBackoff
		}
		f.logger.Warn("change feed disconnected", "error", err, "retry_in", backoff)

		wait := backoff/2 + rand.N(backoff/2+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

// listen holds one connection open. connected reports whether the handshake succeeded.
func (f *ChangeFeed) listen(ctx context.Context, onEvent func(FeedEvent)) (connected bool, err error) {
	target, err := url.Parse(f.url)
	if err != nil {
		return false, fmt.Errorf("failed to parse feed url: %w", err)
	}
	if f.token != "" {
		q := target.Query()
		q.Set("token", f.token)
		target.RawQuery = q.Encode()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.Dial(dialCtx, target.String(), &websocket.DialOptions{HTTPClient: f.client})
	cancel()
	if err != nil {
		return false, fmt.Errorf("failed to dial change feed: %w", err)
	}
	defer conn.CloseNow()

	f.logger.Debug("change feed connected", "url", f.url)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return true, errors.New("server closed the feed")
			}
			return true, err
		}
		var evt FeedEvent
		if err := gojson.Unmarshal(data, &evt); err != nil {
			f.logger.Debug("ignoring malformed feed message", "error", err)
			continue
		}
		onEvent(evt)
	}
}
