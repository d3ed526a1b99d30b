package stream

import "github.com/wote-dev/simplr-web-sub000/internal/domain"

const (
	// client - server
	MsgSubscribe = "subscribe"

	// server - client
	MsgSubscribed = "subscribed"
	MsgInsert     = "insert"
	MsgUpdate     = "update"
	MsgDelete     = "delete"
	MsgError      = "error"
)

// message is the wire frame in both directions.
type message struct {
	Type    string       `json:"type"`
	Ref     string       `json:"ref,omitempty"`
	UserID  int64        `json:"user_id,omitempty"`
	Task    *domain.Task `json:"task,omitempty"`
	ID      int64        `json:"id,omitempty"`
	Message string       `json:"message,omitempty"`
}

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one change-stream delivery, dispatched to the store's
// reconciliation entry point.
type Event struct {
	Type EventType
	Task *domain.Task // set for insert/update
	ID   int64        // always set; the affected task id
}
