package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSSignaler is a peer's registration at the rendezvous hub.
type WSSignaler struct {
	id   string
	conn *websocket.Conn
	log  *slog.Logger

	writeMu  sync.Mutex
	incoming chan Envelope
	done     chan struct{}
	once     sync.Once
}

// SignalURL turns a rendezvous base address (http, https, ws or wss) into the
// websocket URL registering id.
func SignalURL(base, id string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "ws://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid rendezvous address %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid rendezvous scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + PathSignal
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial registers id at the hub behind base.
func Dial(ctx context.Context, base, id string, logger *slog.Logger) (*WSSignaler, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	if logger == nil {
		logger = slog.Default()
	}
	target, err := SignalURL(base, id)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrIDTaken, id)
		}
		return nil, fmt.Errorf("failed to reach rendezvous %s: %w", base, err)
	}
	s := &WSSignaler{
		id:       id,
		conn:     conn,
		log:      logger.With("component", "signaler", "peer", id),
		incoming: make(chan Envelope, clientQueue),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *WSSignaler) LocalID() string { return s.id }

// Incoming is closed when the hub connection ends.
func (s *WSSignaler) Incoming() <-chan Envelope { return s.incoming }

func (s *WSSignaler) Done() <-chan struct{} { return s.done }

func (s *WSSignaler) Send(env Envelope) error {
	select {
	case <-s.done:
		return ErrSignalerClosed
	default:
	}
	env.From = s.id

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s to %s: %w", env.Type, env.To, err)
	}
	return nil
}

func (s *WSSignaler) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *WSSignaler) readLoop() {
	defer close(s.incoming)
	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			select {
			case <-s.done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					s.log.Warn("Rendezvous connection lost", "error", err)
				}
				s.once.Do(func() { close(s.done); s.conn.Close() })
			}
			return
		}
		select {
		case s.incoming <- env:
		case <-s.done:
			return
		}
	}
}
