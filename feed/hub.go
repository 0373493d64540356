package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"vigila/cache"
	"vigila/session"
)

// Notice types.
const (
	NoticeInvalidate   = "invalidate"
	NoticeRemove       = "remove"
	NoticeSessionEnded = "session-ended"
)

const writeWait = 5 * time.Second

// Notice tells a view that its cached data changed.
type Notice struct {
	Type   string    `json:"type"`
	Domain string    `json:"domain,omitempty"`
	ID     string    `json:"id,omitempty"`
	At     time.Time `json:"at"`
}

// Hub keeps the websocket subscribers of every session.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	detach   func()

	mu          sync.Mutex
	subscribers map[string][]*websocket.Conn
}

// NewHub returns a hub that tells and disconnects the subscribers of every
// session lifecycle ends.
func NewHub(lifecycle cache.Lifecycle, checkOrigin func(*http.Request) bool, logger zerolog.Logger) *Hub {
	h := &Hub{
		upgrader:    websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:      logger.With().Str("pkg", "feed").Logger(),
		subscribers: make(map[string][]*websocket.Conn),
	}
	if lifecycle != nil {
		h.detach = lifecycle.OnEnd(h.end)
	}
	return h
}

// Serve upgrades a guarded request and keeps the connection until the
// client leaves or its session ends.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s := session.FromContext(r.Context())
	if s == nil {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.subscribers[s.ID] = append(h.subscribers[s.ID], conn)
	h.mu.Unlock()

	for {
		// keeps the connection alive until the client disconnects
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unsubscribe(s.ID, conn)
	conn.Close()
}

// Notify sends n to every subscriber of sessionID.
func (h *Hub) Notify(sessionID string, n Notice) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	val, err := json.Marshal(n)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode notice")
		return
	}
	h.broadcast(sessionID, val)
}

// Subscribers returns the number of connections of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[sessionID])
}

// Stop closes every connection and detaches from the lifecycle.
func (h *Hub) Stop() {
	if h.detach != nil {
		h.detach()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.subscribers {
		for _, conn := range conns {
			closeConn(conn, websocket.CloseGoingAway, "server shutting down")
		}
		delete(h.subscribers, id)
	}
}

func (h *Hub) end(sessionID string) {
	h.Notify(sessionID, Notice{Type: NoticeSessionEnded})

	h.mu.Lock()
	conns := h.subscribers[sessionID]
	delete(h.subscribers, sessionID)
	h.mu.Unlock()

	for _, conn := range conns {
		closeConn(conn, websocket.CloseNormalClosure, "session ended")
	}
}

func (h *Hub) broadcast(key string, val []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[key]
	newList := conns[:0]

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, val); err == nil {
			newList = append(newList, conn)
		} else {
			conn.Close()
		}
	}

	if len(newList) == 0 {
		delete(h.subscribers, key)
		return
	}
	h.subscribers[key] = newList
}

func (h *Hub) unsubscribe(key string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[key]
	newList := make([]*websocket.Conn, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			newList = append(newList, c)
		}
	}
	if len(newList) == 0 {
		delete(h.subscribers, key)
		return
	}
	h.subscribers[key] = newList
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}
