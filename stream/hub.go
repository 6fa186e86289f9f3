// Package stream publishes render frames to WebSocket viewers. A viewer
// receives a JSON hello with the bounds and instance mesh, then binary
// frames holding every particle instance. Viewers may send binary
// parameter frames back, which are applied like the TCP settings link.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/particles"
)

const writeWait = 2 * time.Second

// Hello is the first message a viewer receives.
type Hello struct {
	Type      string         `json:"type"`
	Bounds    params.Bounds  `json:"bounds"`
	Mesh      particles.Mesh `json:"mesh"`
	Particles int            `json:"particles"`
}

// BoundsUpdate is sent when the bounding box changes at runtime.
type BoundsUpdate struct {
	Type   string        `json:"type"`
	Bounds params.Bounds `json:"bounds"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // viewers are served from anywhere on the local machine
	},
}

// Hub fans render frames out to connected viewers. Slow viewers skip
// frames: each one only ever has the latest frame pending.
type Hub struct {
	store     *params.Store
	mesh      particles.Mesh
	particles int
	interval  time.Duration

	mu          sync.RWMutex
	clients     map[*client]struct{}
	bounds      params.Bounds
	lastPublish time.Time
}

// NewHub creates a hub. Parameter frames received from viewers are written
// into store; a nil store ignores them. Frames published less than
// interval apart are dropped.
func NewHub(store *params.Store, mesh particles.Mesh, count int, bounds params.Bounds, interval time.Duration) *Hub {
	return &Hub{
		store:     store,
		mesh:      mesh,
		particles: count,
		interval:  interval,
		clients:   make(map[*client]struct{}),
		bounds:    bounds,
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish hands frame to every viewer without blocking. It reports whether
// the frame was sent; frames are skipped when nobody is connected or the
// previous one went out less than the hub interval ago.
func (h *Hub) Publish(frame uint64, bounds params.Bounds, instances []particles.Instance) bool {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return false
	}
	now := time.Now()
	if h.interval > 0 && now.Sub(h.lastPublish) < h.interval {
		h.mu.Unlock()
		return false
	}
	h.lastPublish = now

	var boundsMsg []byte
	if bounds != h.bounds {
		h.bounds = bounds
		boundsMsg, _ = json.Marshal(BoundsUpdate{Type: "bounds", Bounds: bounds})
	}
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	data := EncodeFrame(nil, frame, instances)
	for _, c := range targets {
		c.offer(data, boundsMsg)
	}
	return true
}

// ServeHTTP upgrades the request and serves one viewer until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	h.mu.RLock()
	hello := Hello{Type: "hello", Bounds: h.bounds, Mesh: h.mesh, Particles: h.particles}
	h.mu.RUnlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		slog.Error("websocket hello", "error", err)
		return
	}

	c := newClient(conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("viewer connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		c.stop()
		slog.Info("viewer disconnected", "remote", r.RemoteAddr)
	}()

	conn.SetReadLimit(4 * params.EncodedSize)
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("websocket read", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		h.applyParameters(data, r.RemoteAddr)
	}
}

func (h *Hub) applyParameters(data []byte, remote string) {
	if h.store == nil {
		return
	}
	p, err := params.Decode(data)
	if err == nil {
		err = h.store.Write(p)
	}
	if err != nil {
		slog.Error("decode parameters", "remote", remote, "error", err)
	}
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

type client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	frame  []byte // latest unsent frame
	bounds []byte // latest unsent bounds update

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (c *client) offer(frame, bounds []byte) {
	c.mu.Lock()
	c.frame = frame
	if bounds != nil {
		c.bounds = bounds
	}
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		c.mu.Lock()
		frame, bounds := c.frame, c.bounds
		c.frame, c.bounds = nil, nil
		c.mu.Unlock()

		if bounds != nil && !c.write(websocket.TextMessage, bounds) {
			return
		}
		if frame != nil && !c.write(websocket.BinaryMessage, frame) {
			return
		}
	}
}

func (c *client) write(typ int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(typ, data); err != nil {
		slog.Error("websocket write", "error", err)
		c.conn.Close()
		return false
	}
	return true
}
