// Package debug streams request logs and gate decisions to live dashboard
// clients over a websocket.
package debug

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/yourorg/synapse/internal/gate"
	"github.com/yourorg/synapse/internal/metrics"
)

// client is the part of *websocket.Conn the hub writes to.
type client interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans dashboard messages out to connected clients. A disabled hub
// drops everything.
type Hub struct {
	enabled    bool
	clients    map[client]struct{}
	count      atomic.Int32
	broadcast  chan []byte
	register   chan client
	unregister chan client
	done       chan struct{}
	closeOnce  sync.Once
	started    time.Time
}

func NewHub(enabled bool) *Hub {
	h := &Hub{
		enabled:    enabled,
		clients:    make(map[client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan client),
		unregister: make(chan client),
		done:       make(chan struct{}),
		started:    time.Now(),
	}
	if enabled {
		go h.run()
		log.Println("🐛 Debug dashboard enabled")
	}
	return h
}

func (h *Hub) Enabled() bool { return h != nil && h.enabled }

// Clients is the number of connected dashboards.
func (h *Hub) Clients() int {
	if h == nil {
		return 0
	}
	return int(h.count.Load())
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int32(len(h.clients)))
			log.Printf("🔌 Dashboard connected, clients: %d", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
			}
			h.count.Store(int32(len(h.clients)))
			log.Printf("🔌 Dashboard disconnected, clients: %d", len(h.clients))

		case message := <-h.broadcast:
			for c := range h.clients {
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					log.Printf("[DEBUG] dropping dashboard client: %v", err)
					c.Close()
					delete(h.clients, c)
				}
			}
			h.count.Store(int32(len(h.clients)))

		case <-h.done:
			for c := range h.clients {
				c.Close()
				delete(h.clients, c)
			}
			h.count.Store(0)
			return
		}
	}
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	if !h.Enabled() {
		return
	}
	h.closeOnce.Do(func() { close(h.done) })
}

// Handle serves one websocket connection until the client goes away.
func (h *Hub) Handle(conn *websocket.Conn) {
	h.serve(conn, func() error {
		_, _, err := conn.ReadMessage()
		return err
	})
}

func (h *Hub) serve(c client, read func() error) {
	if !h.Enabled() {
		c.Close()
		return
	}
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
		return
	}
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	for read() == nil {
	}
}

// LogMessage is a request log line.
type LogMessage struct {
	Type     string         `json:"type"`
	Source   string         `json:"source"`
	Level    string         `json:"level"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (h *Hub) SendLog(source, level, message string, metadata map[string]any) {
	h.send(LogMessage{
		Type:     "log",
		Source:   source,
		Level:    level,
		Message:  message,
		Metadata: metadata,
	})
}

// GateMessage carries one gate decision.
type GateMessage struct {
	Type  string     `json:"type"`
	Event gate.Event `json:"event"`
}

// SendGateEvent matches gate.Notifier.
func (h *Hub) SendGateEvent(ev gate.Event) {
	h.send(GateMessage{Type: "gate", Event: ev})
}

// MetricsMessage is a snapshot of the gate counters.
type MetricsMessage struct {
	Type     string            `json:"type"`
	UptimeS  int64             `json:"uptime_s"`
	Counters map[string]uint64 `json:"counters"`
}

func (h *Hub) SendMetrics(s metrics.Snapshot) {
	if h.Clients() == 0 {
		return
	}
	h.send(MetricsMessage{
		Type:     "metrics",
		UptimeS:  int64(time.Since(h.started).Seconds()),
		Counters: s.Named(),
	})
}

func (h *Hub) send(msg any) {
	if !h.Enabled() || h.Clients() == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[DEBUG] encode dashboard message: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// StreamMetrics pushes a metrics snapshot every interval until stop closes.
func (h *Hub) StreamMetrics(m *metrics.Metrics, interval time.Duration, stop <-chan struct{}) {
	if !h.Enabled() || m == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.SendMetrics(m.Snapshot())
		case <-stop:
			return
		case <-h.done:
			return
		}
	}
}
