// Package ws streams ledger, document and bridge events to websocket and
// server-sent-event clients. Topics are "<domain>:<EventName>", with
// "<domain>:*" and "*" as wildcards.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rebasefi/stbt-ledger/internal/events"
	"github.com/rebasefi/stbt-ledger/internal/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	idleTimeout  = 2 * time.Minute
	sendBuffer   = 256
	maxReadBytes = 512
)

type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type SubscriptionRequest struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// subscriber is one websocket or SSE connection.
type subscriber struct {
	send chan []byte

	mu         sync.Mutex
	topics     map[string]bool
	lastActive time.Time
}

func newSubscriber(topics []string) *subscriber {
	s := &subscriber{
		send:       make(chan []byte, sendBuffer),
		topics:     make(map[string]bool),
		lastActive: time.Now(),
	}
	s.subscribe(topics)
	return s
}

func (s *subscriber) subscribe(topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			s.topics[t] = true
		}
	}
}

func (s *subscriber) unsubscribe(topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		delete(s.topics, strings.TrimSpace(t))
	}
}

func (s *subscriber) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *subscriber) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive.Before(cutoff)
}

func (s *subscriber) isSubscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topics["*"] || s.topics[topic] {
		return true
	}
	if domain, _, ok := strings.Cut(topic, ":"); ok && s.topics[domain+":*"] {
		return true
	}
	return false
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*subscriber]struct{}

	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
}

// NewHub accepts websocket upgrades from allowedOrigins and from requests
// without an Origin header.
func NewHub(allowedOrigins []string, logger *zap.SugaredLogger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		logger:  logger,
		metrics: m,
	}
}

// Sink returns an events.Sink publishing under domain.
func (h *Hub) Sink(domain string) events.Sink {
	return events.SinkFunc(func(evts ...events.Event) {
		for _, e := range evts {
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Warnw("Event not broadcast", "event", e.EventName(), "error", err)
				continue
			}
			topic := domain + ":" + e.EventName()
			msg, err := json.Marshal(Message{
				Type:      "event",
				Topic:     topic,
				Data:      data,
				Timestamp: time.Now().Unix(),
			})
			if err != nil {
				continue
			}
			h.broadcast(topic, msg)
		}
	})
}

func (h *Hub) broadcast(topic string, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.isSubscribed(topic) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// slow consumer
			h.dropLocked(c)
		}
	}
}

func (h *Hub) add(ctx context.Context, c *subscriber) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.IncrementConnections(ctx)
}

func (h *Hub) remove(ctx context.Context, c *subscriber) {
	h.mu.Lock()
	removed := h.dropLocked(c)
	h.mu.Unlock()
	if removed {
		h.metrics.DecrementConnections(ctx)
	}
}

func (h *Hub) dropLocked(c *subscriber) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run evicts idle subscribers until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			h.logger.Infow("Event hub shutting down")
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idleTimeout)
			h.mu.Lock()
			for c := range h.clients {
				if c.idleSince(cutoff) {
					h.dropLocked(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func topicsFromQuery(r *http.Request) []string {
	raw := r.URL.Query().Get("topics")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// HandleWebSocket upgrades the connection. Initial topics may be passed as
// ?topics=main:*,side:Transfer; later ones via subscribe messages.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	c := newSubscriber(topicsFromQuery(r))
	h.add(r.Context(), c)

	go h.writePump(conn, c)
	go h.readPump(conn, c)
}

func (h *Hub) readPump(conn *websocket.Conn, c *subscriber) {
	defer func() {
		h.remove(context.Background(), c)
		conn.Close()
	}()

	conn.SetReadLimit(maxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		c.touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warnw("WebSocket error", "error", err)
			}
			return
		}
		c.touch()

		var req SubscriptionRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.logger.Warnw("Invalid subscription message", "error", err)
			continue
		}
		switch req.Type {
		case "subscribe":
			c.subscribe(req.Topics)
		case "unsubscribe":
			c.unsubscribe(req.Topics)
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
