package notify

import (
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// LiveMessage is a frame pushed to connected portal sessions.
type LiveMessage struct {
	Type         string        `json:"type"` // "ready", "notification", "pong"
	Notification *Notification `json:"notification,omitempty"`
}

type liveConn struct {
	conn     *websocket.Conn
	audience Audience
	mu       sync.Mutex
}

func (c *liveConn) send(msg LiveMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.conn, msg)
}

// Hub fans freshly stored notifications out to open portal sessions.
type Hub struct {
	logger *logging.Logger

	mu    sync.RWMutex
	conns map[*liveConn]struct{}
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{logger: logger, conns: make(map[*liveConn]struct{})}
}

// Publish pushes n to every session whose audience sees it.
func (h *Hub) Publish(n Notification) {
	if h == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*liveConn, 0, len(h.conns))
	for c := range h.conns {
		if c.audience.Sees(n) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		n := n
		if err := c.send(LiveMessage{Type: "notification", Notification: &n}); err != nil {
			h.logger.Debug("notify: live push failed", "error", err, "user_id", c.audience.UserID)
		}
	}
}

// Connections reports the number of open sessions.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleWebSocket upgrades an authenticated request and keeps it open until
// the client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, AudienceFor(principal))
	}).ServeHTTP(w, r)
}

func (h *Hub) serve(conn *websocket.Conn, audience Audience) {
	lc := &liveConn{conn: conn, audience: audience}
	h.mu.Lock()
	h.conns[lc] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, lc)
		h.mu.Unlock()
	}()

	if err := lc.send(LiveMessage{Type: "ready"}); err != nil {
		return
	}
	for {
		var in struct {
			Type string `json:"type"`
		}
		if err := websocket.JSON.Receive(conn, &in); err != nil {
			h.logger.Debug("notify: live session closed", "user_id", audience.UserID, "error", err)
			return
		}
		if in.Type == "ping" {
			_ = lc.send(LiveMessage{Type: "pong"})
		}
	}
}

// AudienceFor maps a principal onto the notifications it may read. Owners
// and admins also see owner broadcasts.
func AudienceFor(p identity.Principal) Audience {
	return Audience{UserID: p.UserID, Owners: p.Role.Manager()}
}
