package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrHubStopped = errors.New("websocket hub stopped")

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sendBuffer   = 64
)

// Hub tracks listeners and their subscriptions and fans events out to them
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]*Listener

	upgrader websocket.Upgrader
	done     chan struct{}
	stopOnce sync.Once
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithAllowedOrigins restricts upgrades to the given Origin values. "*" or an
// empty list accepts any origin.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *Hub) {
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			if o == "*" {
				return
			}
			allowed[o] = struct{}{}
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// NewHub creates an empty hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		listeners: make(map[string]*Listener),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Upgrade switches the request to the WebSocket protocol
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

// Serve registers conn as a listener, sends HELLO and handles its requests
// until the connection closes. It always closes conn.
func (h *Hub) Serve(conn *websocket.Conn) error {
	select {
	case <-h.done:
		conn.Close()
		return ErrHubStopped
	default:
	}

	l := &Listener{
		ID:            uuid.NewString(),
		Conn:          conn,
		subscriptions: make(map[string]struct{}),
		send:          make(chan Message, sendBuffer),
		lastPong:      time.Now(),
	}

	h.mu.Lock()
	h.listeners[l.ID] = l
	h.mu.Unlock()
	slog.Info("websocket listener connected", "id", l.ID)

	writerDone := make(chan struct{})
	go h.writeLoop(l, writerDone)

	h.enqueue(l, Message{Op: OpHello, D: Hello{ID: l.ID}})
	h.readLoop(l)

	h.remove(l)
	<-writerDone
	slog.Info("websocket listener closed", "id", l.ID)
	return nil
}

func (h *Hub) readLoop(l *Listener) {
	l.Conn.SetReadDeadline(time.Now().Add(pongWait))
	l.Conn.SetPongHandler(func(string) error {
		h.mu.Lock()
		l.lastPong = time.Now()
		h.mu.Unlock()
		return l.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req request
		if err := l.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "id", l.ID, "error", err)
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.enqueue(l, notify(NotificationError, "", "Invalid message"))
				continue
			}
			return
		}
		h.handle(l, req)
	}
}

func (h *Hub) handle(l *Listener, req request) {
	op, _ := req.Op.(string)
	sub := req.D.Subscription

	switch op {
	case OpSubscribe, OpUnsubscribe:
		if sub == "" {
			h.enqueue(l, notify(NotificationError, "", "Invalid subscription"))
			return
		}

		kind := NotificationSubscriptionAdded
		h.mu.Lock()
		if op == OpSubscribe {
			l.subscriptions[sub] = struct{}{}
		} else {
			delete(l.subscriptions, sub)
			kind = NotificationSubscriptionRemoved
		}
		h.mu.Unlock()

		h.enqueue(l, notify(kind, sub, ""))

	default:
		slog.Debug("unknown websocket op", "id", l.ID, "op", req.Op)
		h.enqueue(l, notify(NotificationUnknownOp, "", fmt.Sprintf("Unknown op %v", req.Op)))
	}
}

func (h *Hub) writeLoop(l *Listener, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-l.send:
			l.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				l.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				l.Conn.Close()
				return
			}
			if err := l.Conn.WriteJSON(msg); err != nil {
				slog.Debug("websocket write failed", "id", l.ID, "error", err)
				l.Conn.Close()
				return
			}

		case <-ticker.C:
			l.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.Conn.Close()
				return
			}
		}
	}
}

// enqueue drops the frame and disconnects the listener when its buffer is full
func (h *Hub) enqueue(l *Listener, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, live := h.listeners[l.ID]; !live {
		return
	}

	select {
	case l.send <- msg:
	default:
		slog.Warn("websocket listener too slow, disconnecting", "id", l.ID)
		l.Conn.Close()
	}
}

func (h *Hub) remove(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[l.ID]; ok {
		delete(h.listeners, l.ID)
		close(l.send)
	}
}

// Dispatch sends an EVENT to every listener subscribed to subscription and
// returns how many were reached.
func (h *Hub) Dispatch(subscription string, data any) int {
	msg := Message{Op: OpEvent, D: Event{
		Subscription: subscription,
		Data:         data,
		Timestamp:    time.Now().UTC(),
	}}

	h.mu.RLock()
	targets := make([]*Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		if _, ok := l.subscriptions[subscription]; ok {
			targets = append(targets, l)
		}
	}
	h.mu.RUnlock()

	for _, l := range targets {
		h.enqueue(l, msg)
	}
	return len(targets)
}

// Count returns the number of connected listeners
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Stats returns listener and subscription counts
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := HubStats{
		Listeners:     len(h.listeners),
		Subscriptions: make(map[string]int),
	}
	for _, l := range h.listeners {
		for sub := range l.subscriptions {
			stats.Subscriptions[sub]++
		}
	}
	return stats
}

// Stop disconnects every listener and rejects new ones
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(h.listeners))
		for _, l := range h.listeners {
			conns = append(conns, l.Conn)
		}
		h.mu.RUnlock()

		for _, c := range conns {
			c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			c.Close()
		}
		slog.Info("websocket hub stopped", "listeners", len(conns))
	})
}

func notify(kind, subscription, message string) Message {
	return Message{Op: OpNotification, D: Notification{
		Type:         kind,
		Subscription: subscription,
		Message:      message,
	}}
}
