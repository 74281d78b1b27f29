package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/botkit/internal/api"
	"github.com/ashureev/botkit/internal/events"
)

// Subscription streams status events from the server until Close is called.
type Subscription struct {
	conn   *websocket.Conn
	ch     chan events.Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Subscribe opens the status event stream for the models guarded by password.
// A non-empty modelID limits it to that model.
func (c *Client) Subscribe(ctx context.Context, modelID, password string) (*Subscription, error) {
	return c.SubscribeSince(ctx, modelID, password, -1)
}

// SubscribeSince is Subscribe preceded by a replay of the retained events newer than afterID.
// A negative afterID skips the replay.
func (c *Client) SubscribeSince(ctx context.Context, modelID, password string, afterID int64) (*Subscription, error) {
	u, err := url.Parse(c.baseURL + "/events/ws")
	if err != nil {
		return nil, fmt.Errorf("parse events url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	if modelID != "" {
		q.Set("modelId", modelID)
	}
	if afterID >= 0 {
		q.Set("lastEventId", strconv.FormatInt(afterID, 10))
	}
	u.RawQuery = q.Encode()

	// The dial must not inherit the client timeout, which would cut the stream.
	opts := &websocket.DialOptions{
		HTTPClient: &http.Client{Transport: c.http.Transport},
		HTTPHeader: http.Header{},
	}
	if c.token != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+c.token)
	}
	if password != "" {
		opts.HTTPHeader.Set(api.PasswordHeader, password)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", strings.SplitN(u.String(), "?", 2)[0], err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		conn:   conn,
		ch:     make(chan events.Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.readLoop(readCtx)
	return sub, nil
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	for {
		var ev events.Event
		if err := wsjson.Read(ctx, s.conn, &ev); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// C returns the event channel. It is closed when the stream ends.
func (s *Subscription) C() <-chan events.Event { return s.ch }

// Err returns the error that ended the stream, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close releases the connection and waits for the reader to exit. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.conn.Close(websocket.StatusNormalClosure, "")
		s.cancel()
		<-s.done
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
