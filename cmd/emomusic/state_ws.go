package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaishakh3/emomusic/internal/device"
	"github.com/vaishakh3/emomusic/internal/domain"
	"github.com/vaishakh3/emomusic/internal/mood"
)

// ============================================================================
// /ws/state: session state stream and control channel
// ============================================================================
//
// Every client gets a "state_init" frame holding a StateSnapshot, then one
// frame per reducer broadcast (playback_changed, mood_changed, queue_changed,
// error_changed, detection_changed, volume_changed). Clients may send the
// same {type, data} control envelopes accepted over IPC; each is answered
// with a "control_result" frame on that client only.
//
// Frames are JSON text: {type, ts, data}. Snapshots are requested through the
// event loop, so the hub never touches DaemonState. A client whose send queue
// fills up is dropped.
//
// ============================================================================

type wsPlaybackChangedData struct {
	Playback   PlaybackState `json:"playback"`
	Device     device.Handle `json:"device,omitempty"`
	DeviceName string        `json:"device_name,omitempty"`
	Track      *domain.Track `json:"track,omitempty"`
	Fetching   bool          `json:"fetching"`
}

type wsMoodChangedData struct {
	Mood   mood.Label `json:"mood"`
	Origin MoodOrigin `json:"origin"`
}

type wsErrorChangedData struct {
	Error *CurrentError `json:"error"` // null when cleared
}

type wsVolumeChangedData struct {
	Percent int `json:"volume_percent"`
}

// wsControlResult answers an inbound control frame.
type wsControlResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// wsOutboundEvent is a broadcast mapped to its wire type and payload.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "use now"
}

// envelope is the frame layout shared by every outbound message.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, data any, at time.Time) ([]byte, error) {
	if at.IsZero() {
		at = time.Now()
	}
	ts := at.UTC()
	return json.Marshal(envelope{Type: typ, Ts: &ts, Data: data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Encoded frames waiting for fanout.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size (default 128).
	BroadcastBuf int
}

// NewHub returns an idle hub; Run drives it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run owns client registration and fanout. Clients are closed when ctx ends.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

// fanout delivers msg to every client and evicts the ones whose queue is full.
func (h *Hub) fanout(msg []byte) {
	var slow []*Client

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.removeClient(c, "slow_client")
	}
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.closeSend()
	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

// BroadcastBytes queues an encoded frame for every client, dropping it when
// the hub is backlogged.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte
	once sync.Once

	// events receives control events parsed from inbound frames; nil disables control.
	events chan<- Event

	remoteAddr string
	logger     *slog.Logger
}

// NewClient binds conn to hub. events may be nil to refuse control frames.
func NewClient(hub *Hub, conn *websocket.Conn, events chan<- Event, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		events:     events,
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) closeSend() {
	c.once.Do(func() { close(c.send) })
}

// enqueue queues msg for this client only; false means the client is too slow.
func (c *Client) enqueue(msg []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false // send on a closed client
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	// maxInboundFrame bounds inbound control frames.
	maxInboundFrame = 4096
)

// wsVolumeCoalesceWindow bounds how often volume_changed frames go out.
const wsVolumeCoalesceWindow = 50 * time.Millisecond

// closeStatus unpacks a websocket close frame carried by err.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump drains send onto the socket and keeps the peer alive with pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Evicted by the hub.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump reads inbound frames until the connection fails, then unregisters
// the client. Text frames are control envelopes.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxInboundFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
		if typ == websocket.TextMessage {
			c.handleControl(ctx, msg)
		}
	}
}

// handleControl applies one inbound control frame and answers on this client only.
func (c *Client) handleControl(ctx context.Context, msg []byte) {
	reply := func(res wsControlResult) {
		if b, err := marshalEnvelope("control_result", res, time.Time{}); err == nil {
			c.enqueue(b)
		}
	}

	if c.events == nil {
		reply(wsControlResult{Status: "error", Error: "control is disabled"})
		return
	}

	ev, err := UnmarshalEvent(msg)
	if err != nil {
		reply(wsControlResult{Status: "error", Error: "parse event: " + err.Error()})
		return
	}

	if _, ok := ev.(GetState); ok {
		snap, err := requestSnapshot(ctx, c.events, snapshotWait)
		if err != nil {
			reply(wsControlResult{Status: "error", Error: err.Error()})
			return
		}
		if b, err := marshalEnvelope("state_snapshot", snap, snap.UpdatedAt); err == nil {
			c.enqueue(b)
		}
		return
	}

	select {
	case c.events <- ev:
		reply(wsControlResult{Status: "ok"})
	default:
		reply(wsControlResult{Status: "error", Error: "event queue full"})
	}
}

// ============================================================================
// HTTP Handler
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot and for inbound control frames.
	events chan<- Event

	// base bounds the client pumps; it is canceled on daemon shutdown.
	base context.Context
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer wires the hub to the daemon's event channel. ctx bounds the client pumps.
func NewServer(ctx context.Context, logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
		base:   ctx,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register mounts the state stream at path.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades the request, starts the pumps and queues state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, s.events, r.RemoteAddr, s.logger)

	// Register first so broadcasts issued during the snapshot round-trip reach it.
	s.hub.register <- client

	// The pumps must outlive the handler: net/http cancels r.Context() when it returns.
	go client.writePump(s.base)
	go client.readPump(s.base)

	if s.events == nil {
		return
	}

	snap, err := requestSnapshot(r.Context(), s.events, snapshotWait)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	initMsg, err := marshalEnvelope("state_init", snap, time.Time{})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	if !client.enqueue(initMsg) {
		s.hub.unregister <- client
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster encodes reducer broadcasts into frames for the hub.
//
// volume_changed is rate-limited: the latest pending value is flushed at most
// once per wsVolumeCoalesceWindow. Any other event flushes it first, so order
// is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pendingVol *wsOutboundEvent
	var flushC <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev.Type, ev.Data, ev.At)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushVol := func() {
		if pendingVol != nil {
			send(*pendingVol)
			pendingVol = nil
		}
		flushC = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushVol()
			return

		case <-flushC:
			flushVol()

		case b, ok := <-src:
			if !ok {
				flushVol()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == "volume_changed" {
				pendingVol = &ev
				if flushC == nil {
					flushC = time.After(wsVolumeCoalesceWindow)
				}
				continue
			}

			flushVol()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastPlaybackChanged:
		return wsOutboundEvent{
			Type: "playback_changed",
			Data: wsPlaybackChangedData{
				Playback:   ev.Playback,
				Device:     ev.Device,
				DeviceName: ev.DeviceName,
				Track:      ev.Track,
				Fetching:   ev.Fetching,
			},
			At: ev.At,
		}, true

	case BroadcastMoodChanged:
		return wsOutboundEvent{Type: "mood_changed", Data: wsMoodChangedData{Mood: ev.Mood, Origin: ev.Origin}, At: ev.At}, true

	case BroadcastQueueChanged:
		return wsOutboundEvent{Type: "queue_changed", Data: ev.Queue, At: ev.At}, true

	case BroadcastErrorChanged:
		return wsOutboundEvent{Type: "error_changed", Data: wsErrorChangedData{Error: ev.Error}, At: ev.At}, true

	case BroadcastDetectionChanged:
		return wsOutboundEvent{Type: "detection_changed", Data: ev.Detection, At: ev.At}, true

	case BroadcastVolumeChanged:
		return wsOutboundEvent{Type: "volume_changed", Data: wsVolumeChangedData{Percent: ev.Percent}, At: ev.At}, true

	default:
		return wsOutboundEvent{}, false
	}
}

// broadcastName is the wire type of a broadcast, for logging.
func broadcastName(b StateBroadcast) string {
	if ev, ok := convertBroadcast(b); ok {
		return ev.Type
	}
	return "unknown"
}
