package api

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// PathSignal is where peers open their websocket, with ?id=<peer id>.
	PathSignal = "/ws"
	PathHealth = "/healthz"

	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	clientQueue = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Envelope
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub relays envelopes between registered peers. It keeps no state beyond
// the set of currently connected ids.
type Hub struct {
	log *slog.Logger

	mu    sync.Mutex
	peers map[string]*client
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:   logger.With("component", "rendezvous"),
		peers: make(map[string]*client),
	}
}

// Handler serves the signaling endpoint and a health check.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PathSignal, h)
	mux.HandleFunc(PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Peers lists the registered ids, sorted.
func (h *Hub) Peers() []string {
	h.mu.Lock()
	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, ErrMissingID.Error(), http.StatusBadRequest)
		return
	}
	c := &client{id: id, send: make(chan Envelope, clientQueue), done: make(chan struct{})}
	if !h.register(c) {
		http.Error(w, ErrIDTaken.Error(), http.StatusConflict)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "peer", id, "error", err)
		h.unregister(c)
		return
	}
	c.conn = conn
	h.log.Info("Peer registered", "peer", id, "remote", r.RemoteAddr)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, taken := h.peers[c.id]; taken {
		return false
	}
	h.peers[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if cur, ok := h.peers[c.id]; ok && cur == c {
		delete(h.peers, c.id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) lookup(id string) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.peers[id]
	return c, ok
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		h.log.Info("Peer left", "peer", c.id)
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("WebSocket read error", "peer", c.id, "error", err)
			}
			return
		}
		env.From = c.id
		h.route(c, env)
	}
}

func (h *Hub) route(from *client, env Envelope) {
	target, ok := h.lookup(env.To)
	if !ok {
		h.log.Debug("Signal for unknown peer", "from", from.id, "to", env.To, "type", env.Type)
		h.enqueue(from, Envelope{Type: SignalUnavailable, From: env.To, To: from.id, ConnID: env.ConnID})
		return
	}
	h.enqueue(target, env)
}

func (h *Hub) enqueue(c *client, env Envelope) {
	select {
	case c.send <- env:
	case <-c.done:
	default:
		h.log.Warn("Dropping signal for slow peer", "peer", c.id, "type", env.Type)
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				h.log.Warn("WebSocket write error", "peer", c.id, "error", err)
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
