package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/metrics"
)

const (
	writeWait       = 5 * time.Second
	defaultMaxQueue = 200
)

// peer is one authenticated socket. A user may hold several.
type peer struct {
	user string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages active connections keyed by user id, the per-user offline
// queue, and who asked about whose presence.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*peer]struct{}
	queue    map[string][][]byte
	watchers map[string]map[string]struct{}
	maxQueue int
	logger   *zap.Logger
}

func NewHub(maxQueue int, logger *zap.Logger) *Hub {
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:    make(map[string]map[*peer]struct{}),
		queue:    make(map[string][][]byte),
		watchers: make(map[string]map[string]struct{}),
		maxQueue: maxQueue,
		logger:   logger,
	}
}

// Register adds a connection and reports whether it is the user's first.
func (h *Hub) Register(p *peer) (first bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.conns[p.user]
	if set == nil {
		set = make(map[*peer]struct{})
		h.conns[p.user] = set
		first = true
	}
	set[p] = struct{}{}
	metrics.RelayOnlineUsers.Set(float64(len(h.conns)))
	return first
}

// Unregister removes a connection and reports whether the user is now offline.
func (h *Hub) Unregister(p *peer) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.conns[p.user]; ok {
		if _, present := set[p]; !present {
			return false
		}
		delete(set, p)
		if len(set) == 0 {
			delete(h.conns, p.user)
			last = true
		}
	}
	metrics.RelayOnlineUsers.Set(float64(len(h.conns)))
	return last
}

func (h *Hub) Online(user string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[user]) > 0
}

func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Deliver writes a frame to every connection of user. When the user has
// none the frame is queued for the next fetch-offline request.
func (h *Hub) Deliver(user string, frame []byte) (delivered bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set := h.conns[user]; len(set) > 0 {
		for p := range set {
			h.writeTo(p, frame)
		}
		return true
	}
	q := append(h.queue[user], frame)
	if len(q) > h.maxQueue {
		h.logger.Warn("offline_queue_trimmed", zap.String("user", user), zap.Int("dropped", len(q)-h.maxQueue))
		q = q[len(q)-h.maxQueue:]
	}
	h.queue[user] = q
	return false
}

// Send writes directly to one connection, without queueing.
func (h *Hub) Send(p *peer, frame []byte) { h.writeTo(p, frame) }

// Flush delivers and clears the user's offline queue.
func (h *Hub) Flush(user string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.queue[user]
	set := h.conns[user]
	if len(q) == 0 || len(set) == 0 {
		return 0
	}
	delete(h.queue, user)
	for _, frame := range q {
		for p := range set {
			h.writeTo(p, frame)
		}
	}
	return len(q)
}

// Queued reports how many frames wait for user.
func (h *Hub) Queued(user string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.queue[user])
}

// Watch records that watcher wants presence changes of target.
func (h *Hub) Watch(watcher, target string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.watchers[target]
	if set == nil {
		set = make(map[string]struct{})
		h.watchers[target] = set
	}
	set[watcher] = struct{}{}
}

func (h *Hub) Watchers(target string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.watchers[target]))
	for w := range h.watchers[target] {
		out = append(out, w)
	}
	return out
}

func (h *Hub) writeTo(p *peer, frame []byte) {
	if err := p.write(frame); err != nil {
		h.logger.Debug("relay_write_failed", zap.String("user", p.user), zap.Error(err))
		// the read loop notices and unregisters
		p.conn.Close()
	}
}
