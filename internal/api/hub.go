package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tradecore/internal/logger"
	"tradecore/internal/model"
)

const (
	clientSendBuffer = 256
	defaultReplayCap = 500
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
)

// Envelope is one event pushed to stream clients.
type Envelope struct {
	Seq     int64           `json:"seq"`
	Channel string          `json:"channel"` // "candle:<symbol>" or "fill:<symbol>"
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
	TS      time.Time       `json:"ts"`
	Initial bool            `json:"initial,omitempty"`
}

// Hub fans candle and fill events out to websocket clients. It implements
// model.Sink. Slow clients drop events rather than block the strategy path.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
	latest  map[string]Envelope
	seq     int64
	replay  *ReplayBuffer
	log     *zap.Logger
	now     func() time.Time
}

// NewHub creates a hub retaining replayCap recent events for reconnecting
// clients.
func NewHub(replayCap int, log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		latest:  make(map[string]Envelope),
		replay:  NewReplayBuffer(replayCap),
		log:     logger.OrNop(log),
		now:     time.Now,
	}
}

type candleEvent struct {
	Interval int64        `json:"interval"` // seconds
	Candle   model.Candle `json:"candle"`
}

// CandleClosed implements model.Sink.
func (h *Hub) CandleClosed(symbol string, interval time.Duration, c model.Candle) {
	data, err := json.Marshal(candleEvent{Interval: int64(interval / time.Second), Candle: c})
	if err != nil {
		return
	}
	h.publish("candle", symbol, data)
}

// Filled implements model.Sink.
func (h *Hub) Filled(f model.Fill) {
	h.publish("fill", f.Symbol, f.JSON())
}

func (h *Hub) publish(kind, symbol string, data []byte) {
	sym := model.NormalizeSymbol(symbol)

	h.mu.Lock()
	h.seq++
	env := Envelope{
		Seq:     h.seq,
		Channel: kind + ":" + sym,
		Symbol:  sym,
		Data:    data,
		TS:      h.now(),
	}
	h.latest[env.Channel] = env
	msg, _ := json.Marshal(env)
	h.replay.Push(env.Seq, msg)

	for c := range h.clients {
		if !c.wants(sym) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Client too slow; it can resync with ?since=<seq>.
		}
	}
	h.mu.Unlock()
}

// Seq returns the sequence number of the last published event.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// attach registers a connection and queues its initial state: replayed
// events after since when since > 0, otherwise the latest event per channel.
func (h *Hub) attach(conn *websocket.Conn, symbols map[string]bool, since int64) *client {
	c := &client{
		conn:    conn,
		send:    make(chan []byte, clientSendBuffer),
		hub:     h,
		symbols: symbols,
	}

	h.mu.Lock()
	if since > 0 {
		for _, e := range h.replay.Range(since+1, h.seq) {
			c.queue(e.Data)
		}
	} else {
		for _, env := range h.latest {
			if !c.wants(env.Symbol) {
				continue
			}
			env.Initial = true
			msg, _ := json.Marshal(env)
			c.queue(msg)
		}
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", zap.Int("clients", count))
	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("ws client disconnected", zap.Int("clients", count))
}

// client represents a single WebSocket peer.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	symbols map[string]bool // nil = all symbols
}

func (c *client) wants(symbol string) bool {
	return c.symbols == nil || c.symbols[symbol]
}

func (c *client) queue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients do not send commands.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
