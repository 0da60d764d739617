package router

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/playerhub/gateway/internal/events"
)

// streamHub pushes state-cache snapshots to connected diagnostic clients.
// Each connection gets a read loop that drops it once the client goes
// away; pingInterval is stored but no pings are sent.
type streamHub struct {
	mu           sync.RWMutex
	conns        map[*websocket.Conn]struct{}
	pingInterval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newStreamHub() *streamHub {
	return &streamHub{
		conns:        make(map[*websocket.Conn]struct{}),
		pingInterval: 30 * time.Second,
		stop:         make(chan struct{}),
	}
}

func (h *streamHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	go h.readUntilClosed(conn)
}

func (h *streamHub) readUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *streamHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *streamHub) broadcast(payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(payload); err != nil {
			log.Printf("debug stream: write failed, dropping client: %v", err)
			go h.remove(conn)
		}
	}
}

// run periodically snapshots the event manager's state cache and
// broadcasts it, until stopped.
func (h *streamHub) run(stateCache *events.StateCache) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if stateCache != nil {
				h.broadcast(map[string]any{"type": "state_snapshot", "devices": stateCache.List()})
			}
		case <-h.stop:
			return
		}
	}
}

func (h *streamHub) close() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
