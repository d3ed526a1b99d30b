// Package stream maintains the single live subscription to the server-pushed
// task change feed and owns all reconnect/backoff behavior.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wote-dev/simplr-web-sub000/internal/logger"
	"github.com/wote-dev/simplr-web-sub000/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 5
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError // terminal; real-time sync unavailable
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// Subscriber owns the change-stream connection exclusively. A new
// subscription always tears down the old one first; Close cancels any
// pending reconnect timer synchronously.
type Subscriber struct {
	url   string
	token string
	sink  func(Event)

	dialer      *websocket.Dialer
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	mu        sync.Mutex
	state     State
	attempts  int
	conn      *websocket.Conn
	reconnect *time.Timer
	gen       int
	active    bool
	userID    int64
}

func NewSubscriber(url, token string, sink func(Event)) *Subscriber {
	return &Subscriber{
		url:         url,
		token:       token,
		sink:        sink,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		maxAttempts: defaultMaxAttempts,
	}
}

func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports the terminal "real-time sync unavailable" condition.
func (s *Subscriber) Degraded() bool {
	return s.State() == StateError
}

// Subscribe starts (or restarts) the subscription for userID.
func (s *Subscriber) Subscribe(userID int64) {
	s.mu.Lock()
	s.teardownLocked()
	s.userID = userID
	s.active = true
	s.attempts = 0
	s.state = StateConnecting
	gen := s.gen
	s.mu.Unlock()

	go s.connect(gen)
}

// Close tears the subscription down and cancels any pending reconnect.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.teardownLocked()
	s.state = StateDisconnected
}

// caller holds s.mu
func (s *Subscriber) teardownLocked() {
	s.gen++
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *Subscriber) connect(gen int) {
	s.mu.Lock()
	if s.gen != gen || !s.active {
		s.mu.Unlock()
		return
	}
	url := s.url + "?token=" + s.token
	userID := s.userID
	s.mu.Unlock()

	conn, _, err := s.dialer.Dial(url, nil)
	if err != nil {
		s.onFailure(gen, err)
		return
	}

	s.mu.Lock()
	if s.gen != gen || !s.active {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	ref := uuid.NewString()
	join := message{Type: MsgSubscribe, Ref: ref, UserID: userID}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(join); err != nil {
		s.onFailure(gen, err)
		return
	}

	conn.SetReadLimit(64 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.pingLoop(gen, conn)
	s.readPump(gen, conn, ref)
}

func (s *Subscriber) readPump(gen int, conn *websocket.Conn, ref string) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.onFailure(gen, err)
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			// one bad frame must not kill the subscription
			logger.Warn("stream: malformed message", "error", err)
			metrics.StreamEvents.WithLabelValues("unknown", "malformed").Inc()
			continue
		}

		switch msg.Type {
		case MsgSubscribed:
			if msg.Ref == ref {
				s.onConnected(gen)
			}
		case MsgInsert, MsgUpdate, MsgDelete:
			ev, ok := toEvent(msg)
			if !ok {
				logger.Warn("stream: malformed event", "type", msg.Type)
				metrics.StreamEvents.WithLabelValues(msg.Type, "malformed").Inc()
				continue
			}
			s.sink(ev)
		case MsgError:
			logger.Warn("stream: server error", "message", msg.Message)
		default:
			logger.Debug("stream: ignoring message", "type", msg.Type)
		}
	}
}

func toEvent(msg message) (Event, bool) {
	switch msg.Type {
	case MsgInsert, MsgUpdate:
		if msg.Task == nil {
			return Event{}, false
		}
		return Event{Type: EventType(msg.Type), Task: msg.Task, ID: msg.Task.ID}, true
	case MsgDelete:
		id := msg.ID
		if id == 0 && msg.Task != nil {
			id = msg.Task.ID
		}
		if id == 0 {
			return Event{}, false
		}
		return Event{Type: EventDelete, ID: id}, true
	}
	return Event{}, false
}

func (s *Subscriber) pingLoop(gen int, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		stale := s.gen != gen
		s.mu.Unlock()
		if stale {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}

// onConnected is only entered on the explicit server ack.
func (s *Subscriber) onConnected(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || !s.active {
		return
	}
	s.state = StateConnected
	s.attempts = 0
	logger.Info("stream: subscribed", "user_id", s.userID)
}

func (s *Subscriber) onFailure(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || !s.active {
		return
	}

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.reconnect = nil
	s.gen++

	s.attempts++
	if s.attempts >= s.maxAttempts {
		s.state = StateError
		logger.Error("stream: real-time sync unavailable", "attempts", s.attempts, "error", err)
		return
	}

	delay := s.baseDelay << (s.attempts - 1)
	if delay > s.maxDelay {
		delay = s.maxDelay
	}
	s.state = StateConnecting
	metrics.StreamReconnects.Inc()
	logger.Warn("stream: connection lost, reconnecting", "attempt", s.attempts, "delay", delay, "error", err)

	gen = s.gen
	s.reconnect = time.AfterFunc(delay, func() {
		s.connect(gen)
	})
}
