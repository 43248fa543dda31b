package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/device-server/internal/device"
	"github.com/nerrad567/device-server/internal/infrastructure/config"
	"github.com/nerrad567/device-server/internal/infrastructure/logging"
)

// Live feed frame types.
const (
	FrameReady   = "ready"   // server: connection registered, carries the filter
	FrameReading = "reading" // server: one ingested reading
	FrameFilter  = "filter"  // client: replace the device filter
	FramePing    = "ping"    // client: keepalive
	FramePong    = "pong"    // server: reply to ping
	FrameError   = "error"   // server: rejected client frame

	// feedQueueSize is how many frames a slow client may fall behind
	// before readings are dropped for it.
	feedQueueSize = 256
)

// Frame is one JSON message on the live readings feed.
//
// Devices is the device filter: empty means every device.
type Frame struct {
	Type    string          `json:"type"`
	Devices []int           `json:"devices,omitempty"`
	Reading *device.Reading `json:"reading,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Hub fans ingested readings out to WebSocket clients.
//
// Each client sees the readings of the devices in its filter, or of every
// device when the filter is empty. A reading is encoded once per publish.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool
}

// feedClient is one connected WebSocket.
type feedClient struct {
	hub     *Hub
	conn    *websocket.Conn
	out     chan []byte
	subject string // token subject; empty when auth is disabled

	mu      sync.RWMutex
	devices map[int]struct{}
}

// NewHub creates a hub. Run must be called to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "live-feed"),
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*feedClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.out)
	}
}

// PublishReading sends r to every client whose filter includes its device.
func (h *Hub) PublishReading(r device.Reading) {
	data, err := json.Marshal(Frame{Type: FrameReading, Reading: &r})
	if err != nil {
		h.logger.Error("encoding reading frame", "device_id", r.DeviceID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for c := range h.clients {
		if c.wants(r.DeviceID) && c.enqueue(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("reading published", "device_id", r.DeviceID, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *feedClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("feed client connected", "clients", len(h.clients), "subject", c.subject)
	return true
}

// unregister removes c and closes its queue. Only the caller that removes
// c from the map closes the queue.
func (h *Hub) unregister(c *feedClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.out)
		h.logger.Debug("feed client disconnected", "clients", n)
	}
}

// upgrader returns a WebSocket upgrader that applies the CORS origin list.
func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

// handleWebSocket upgrades GET /api/ws to the live readings feed.
//
// Repeated ?device= parameters set the initial filter. Authentication,
// when enabled, has already happened in authMiddleware.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	devices, err := parseDeviceFilter(r.URL.Query()["device"])
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		hub:     s.hub,
		conn:    conn,
		out:     make(chan []byte, feedQueueSize),
		subject: subject(r),
	}
	c.setFilter(devices)

	if !s.hub.register(c) {
		conn.Close() //nolint:errcheck // hub already shut down
		return
	}
	c.reply(Frame{Type: FrameReady, Devices: devices})

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// parseDeviceFilter converts ?device= values to device IDs.
func parseDeviceFilter(values []string) ([]int, error) {
	ids := make([]int, 0, len(values))
	for _, v := range values {
		id, err := strconv.Atoi(v)
		if err != nil || device.ValidateDeviceID(id) != nil {
			return nil, fmt.Errorf("invalid device filter %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *feedClient) setFilter(devices []int) {
	set := make(map[int]struct{}, len(devices))
	for _, id := range devices {
		set[id] = struct{}{}
	}
	c.mu.Lock()
	c.devices = set
	c.mu.Unlock()
}

func (c *feedClient) wants(deviceID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.devices) == 0 {
		return true
	}
	_, ok := c.devices[deviceID]
	return ok
}

// enqueue queues data without blocking. Callers hold the hub read lock,
// so the queue cannot be closed underneath them.
func (c *feedClient) enqueue(data []byte) bool {
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

// reply queues a control frame for c. Frames for a client that has
// already been disconnected are dropped.
func (c *feedClient) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; ok {
		c.enqueue(data)
	}
}

// readLoop handles client frames until the connection fails, then
// unregisters the client.
func (c *feedClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close() //nolint:errcheck // already failing
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed client read error", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces as a read error

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.reply(Frame{Type: FrameError, Message: "invalid JSON frame"})
			continue
		}
		switch f.Type {
		case FramePing:
			c.reply(Frame{Type: FramePong})
		case FrameFilter:
			if err := validDevices(f.Devices); err != nil {
				c.reply(Frame{Type: FrameError, Message: err.Error()})
				continue
			}
			c.setFilter(f.Devices)
			c.reply(Frame{Type: FrameReady, Devices: f.Devices})
		default:
			c.reply(Frame{Type: FrameError, Message: "unknown frame type: " + f.Type})
		}
	}
}

func validDevices(ids []int) error {
	for _, id := range ids {
		if err := device.ValidateDeviceID(id); err != nil {
			return err
		}
	}
	return nil
}

// writeLoop drains the client's queue and keeps the connection alive with
// pings. It exits when the queue is closed or a write fails.
func (c *feedClient) writeLoop(cfg config.WebSocketConfig) {
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // writer side done
	}()

	for {
		select {
		case data, ok := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // best effort
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
