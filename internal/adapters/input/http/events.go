package http

import (
	"lighting-bridge/internal/domain/model"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	EventActionInitiated = "action_initiated"
	EventActionCompleted = "action_completed"

	writeWait  = 5 * time.Second
	sendBuffer = 16
)

type Event struct {
	Type   string      `json:"type"`
	Action string      `json:"action"`
	On     bool        `json:"on"`
	Level  model.Level `json:"level"`
	Time   time.Time   `json:"time"`
}

type lightState interface {
	IsTurnedOn() bool
	GetLevel() model.Level
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type eventClient struct {
	conn *websocket.Conn
	send chan Event
}

// EventHub streams lighting action events to websocket clients.
type EventHub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		logger:  logger,
		clients: make(map[*eventClient]struct{}),
	}
}

// Callbacks returns action hooks that publish the light state around each
// committed action.
func (h *EventHub) Callbacks(state lightState) (onInitiated, onCompleted model.ActionCallback) {
	publish := func(kind string) model.ActionCallback {
		return func(a model.Action) {
			h.Publish(Event{
				Type:   kind,
				Action: a.String(),
				On:     state.IsTurnedOn(),
				Level:  state.GetLevel(),
				Time:   time.Now(),
			})
		}
	}
	return publish(EventActionInitiated), publish(EventActionCompleted)
}

// Publish never blocks; slow clients miss events.
func (h *EventHub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn("Event client too slow, dropping event", zap.String("type", ev.Type))
		}
	}
}

func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &eventClient{conn: conn, send: make(chan Event, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Event client connected", zap.String("remote", r.RemoteAddr))
	go h.write(c)
	h.read(c)
}

// read discards client messages and detects disconnects.
func (h *EventHub) read(c *eventClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) write(c *eventClient) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.logger.Debug("Event client write failed", zap.Error(err))
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *EventHub) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
