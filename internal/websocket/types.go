package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Op codes sent by the server
const (
	OpHello        = 0
	OpEvent        = 1
	OpNotification = 2
)

// Op codes sent by listeners
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

// Notification types
const (
	NotificationSubscriptionAdded   = "subscription_added"
	NotificationSubscriptionRemoved = "subscription_removed"
	NotificationError               = "error"
	NotificationUnknownOp           = "unknown_op"
)

// Well known subscriptions
const (
	SubscriptionEventSub = "eventsub"
	SubscriptionQuotes   = "quotes"
)

// Message is a server to listener frame
type Message struct {
	Op int `json:"op"`
	D  any `json:"d"`
}

// Hello is the payload of the first frame on every connection
type Hello struct {
	ID string `json:"id"`
}

// Notification acknowledges or rejects a listener request
type Notification struct {
	Type         string `json:"type"`
	Subscription string `json:"subscription,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Event wraps data dispatched to a subscription
type Event struct {
	Subscription string    `json:"subscription"`
	Data         any       `json:"data"`
	Timestamp    time.Time `json:"timestamp"`
}

// request is a listener to server frame. Op is a string for listener ops.
type request struct {
	Op any `json:"op"`
	D  struct {
		Subscription string `json:"subscription"`
	} `json:"d"`
}

// Listener is one connected WebSocket client
type Listener struct {
	ID   string
	Conn *websocket.Conn

	subscriptions map[string]struct{}
	send          chan Message
	lastPong      time.Time
}

// HubStats describes connected listeners
type HubStats struct {
	Listeners     int            `json:"listeners"`
	Subscriptions map[string]int `json:"subscriptions"`
}
