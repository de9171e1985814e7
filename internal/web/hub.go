package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
)

const (
	writeWait  = 2 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     allowedOrigin,
}

// Message is one frame on the /api/ws stream.
type Message struct {
	Type   string         `json:"type"`
	State  *session.State `json:"state,omitempty"`
	Notice *notify.Notice `json:"notice,omitempty"`
}

// client owns the only writer of its connection. Broadcast never writes to
// the socket; it queues on send and a client whose queue is full is dropped.
type client struct {
	ws   *websocket.Conn
	send chan []byte
}

func (c *client) writeLoop() {
	defer c.ws.Close()
	for b := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Debug().Err(err).Msg("Websocket write failed")
			return
		}
	}
}

// Hub fans state changes and notices out to websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

// Add registers ws and queues first() as its opening message. first is
// called under the hub lock, after registration, so no broadcast can slip
// between the snapshot and the client joining.
func (h *Hub) Add(ws *websocket.Conn, first func() Message) error {
	c := &client{ws: ws, send: make(chan []byte, sendBuffer)}
	if err := h.add(c, first); err != nil {
		return err
	}
	go c.writeLoop()
	return nil
}

func (h *Hub) add(c *client, first func() Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ws] = c
	b, err := json.Marshal(first())
	if err != nil {
		delete(h.clients, c.ws)
		return err
	}
	c.send <- b
	return nil
}

// Remove unregisters ws and closes it.
func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[ws]; ok {
		delete(h.clients, ws)
		close(c.send)
	}
	h.mu.Unlock()
	_ = ws.Close()
}

// Broadcast queues m for every client without blocking. Clients that cannot
// keep up are dropped.
func (h *Hub) Broadcast(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		log.Warn().Err(err).Str("type", m.Type).Msg("Failed to encode websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws, c := range h.clients {
		select {
		case c.send <- b:
		default:
			log.Warn().Msg("Dropping slow websocket client")
			delete(h.clients, ws)
			close(c.send)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notifier returns a notifier that logs each notice, records it (which
// assigns its sequence number) and broadcasts the recorded copy.
func Notifier(rec *notify.Recorder, hub *Hub) notify.Notifier {
	return notify.Multi{
		notify.Log{},
		notify.Func(func(n notify.Notice) {
			rec.Notify(n)
			if last, ok := rec.Last(); ok {
				hub.Broadcast(Message{Type: "notice", Notice: &last})
			}
		}),
	}
}

// GET /api/ws
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	err = s.hub.Add(ws, func() Message {
		st := s.sess.Snapshot()
		return Message{Type: "state", State: &st}
	})
	if err != nil {
		_ = ws.Close()
		return
	}
	log.Debug().Int("clients", s.hub.Count()).Msg("Websocket client connected")

	// Incoming messages are ignored; reading detects the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Remove(ws)
	log.Debug().Int("clients", s.hub.Count()).Msg("Websocket client disconnected")
}
