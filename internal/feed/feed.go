// Package feed pushes sky frames to websocket clients and accepts clock
// control messages from them.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/internal/logging"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 16
)

// ErrNonFiniteFrame is returned by Broadcast for frames JSON cannot carry.
var ErrNonFiniteFrame = errors.New("frame has non-finite values")

// Controller is the clock a client may seek or step.
type Controller interface {
	Now() calendar.DateTime
	SetTime(calendar.DateTime)
}

// ClientGauge is told the number of connected clients after every change.
type ClientGauge interface {
	SetFeedClients(n int)
}

// Message is every payload the hub writes.
type Message struct {
	Type      string      `json:"type"` // frame | ack | error
	Frame     *core.Frame `json:"frame,omitempty"`
	TimeValue float64     `json:"time_value,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ControlMessage is a client request: {"seek": 120} jumps to a time value,
// {"step": 2, "unit": "day"} moves the clock relative to now.
type ControlMessage struct {
	Seek *float64 `json:"seek,omitempty"`
	Step *float64 `json:"step,omitempty"`
	Unit string   `json:"unit,omitempty"`
}

type Option func(*Hub)

func WithController(c Controller) Option { return func(h *Hub) { h.ctrl = c } }

func WithClientGauge(g ClientGauge) Option { return func(h *Hub) { h.gauge = g } }

func WithLogger(log logging.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithRateLimit bounds control messages per connection.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(h *Hub) {
		h.limit = r
		h.burst = burst
	}
}

// Hub is an http.Handler serving the live sky over websockets.
type Hub struct {
	upgrader websocket.Upgrader
	ctrl     Controller
	gauge    ClientGauge
	log      logging.Logger
	limit    rate.Limit
	burst    int

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     logging.Noop(),
		limit:   rate.Limit(5),
		burst:   10,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(h.limit, h.burst),
	}
	h.register(c)
	go h.writePump(c)

	h.log.Info(context.Background(), "feed client connected", logging.String("remote", r.RemoteAddr))
	h.readPump(c)
	h.unregister(c)
	h.log.Info(context.Background(), "feed client disconnected", logging.String("remote", r.RemoteAddr))
}

// Broadcast queues frame for every client. Clients whose buffer is full
// miss the frame rather than stall the tick.
func (h *Hub) Broadcast(frame core.Frame) error {
	if !frame.Finite() {
		return ErrNonFiniteFrame
	}
	payload, err := json.Marshal(Message{Type: "frame", Frame: &frame})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Debug(context.Background(), "dropping frame for slow feed client")
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.SetFeedClients(n)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.SetFeedClients(n)
	}
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.reply(c, h.handleControl(c, data))
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) handleControl(c *client, data []byte) Message {
	if !c.limiter.Allow() {
		return Message{Type: "error", Error: "rate limited"}
	}
	if h.ctrl == nil {
		return Message{Type: "error", Error: "clock control is disabled"}
	}

	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{Type: "error", Error: "malformed control message"}
	}

	switch {
	case msg.Seek != nil:
		if math.IsNaN(*msg.Seek) || math.IsInf(*msg.Seek, 0) {
			return Message{Type: "error", Error: "seek must be finite"}
		}
		h.ctrl.SetTime(calendar.FromHours(*msg.Seek))
	case msg.Step != nil:
		unit, err := calendar.ParseUnit(msg.Unit)
		if err != nil {
			return Message{Type: "error", Error: err.Error()}
		}
		h.ctrl.SetTime(h.ctrl.Now().Add(*msg.Step, unit))
	default:
		return Message{Type: "error", Error: "expected seek or step"}
	}
	return Message{Type: "ack", TimeValue: h.ctrl.Now().Value()}
}

func (h *Hub) reply(c *client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
