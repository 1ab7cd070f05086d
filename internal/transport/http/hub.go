package http

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client is one websocket connection with a dedicated writer goroutine, so
// no two goroutines ever write to the conn concurrently.
type client struct {
	id   string
	conn *websocket.Conn
	send chan outboundMessage
	once sync.Once

	sessionID     string
	participantID string
	operator      bool
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{id: id, conn: conn, send: make(chan outboundMessage, 16)}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

// enqueue never blocks the broadcaster: a slow client drops its oldest
// pending message instead of stalling the session.
func (c *client) enqueue(msg outboundMessage) {
	select {
	case c.send <- msg:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub is the broadcast fan-out: to everyone in a session, to the operator
// view only, or to a single participant. It implements app.Broadcaster.
type Hub struct {
	mu           sync.RWMutex
	sessions     map[string]map[*client]struct{}
	operators    map[string]*client
	participants map[string]*client
}

func NewHub() *Hub {
	return &Hub{
		sessions:     make(map[string]map[*client]struct{}),
		operators:    make(map[string]*client),
		participants: make(map[string]*client),
	}
}

func (h *Hub) bindParticipant(sessionID, participantID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.sessionID = sessionID
	c.participantID = participantID
	h.addToSession(sessionID, c)
	h.participants[participantID] = c
}

func (h *Hub) bindOperator(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// A newly attached operator view replaces the previous one.
	if prev, ok := h.operators[sessionID]; ok && prev != c {
		h.dropLocked(prev)
	}
	c.sessionID = sessionID
	c.operator = true
	h.addToSession(sessionID, c)
	h.operators[sessionID] = c
}

func (h *Hub) addToSession(sessionID string, c *client) {
	members, ok := h.sessions[sessionID]
	if !ok {
		members = make(map[*client]struct{})
		h.sessions[sessionID] = members
	}
	members[c] = struct{}{}
}

// remove detaches a client. Mappings already taken over by a newer
// connection (reconnect, operator replacement) are left in place.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if members, ok := h.sessions[c.sessionID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.sessions, c.sessionID)
		}
	}
	if c.participantID != "" && h.participants[c.participantID] == c {
		delete(h.participants, c.participantID)
	}
	if c.operator && h.operators[c.sessionID] == c {
		delete(h.operators, c.sessionID)
	}
}

func (h *Hub) ToSession(sessionID, event string, payload any) {
	msg := outboundMessage{Type: event, Payload: payload}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.sessions[sessionID] {
		c.enqueue(msg)
	}
}

func (h *Hub) ToOperator(sessionID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.operators[sessionID]; ok {
		c.enqueue(outboundMessage{Type: event, Payload: payload})
	}
}

func (h *Hub) ToParticipant(participantID, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.participants[participantID]; ok {
		c.enqueue(outboundMessage{Type: event, Payload: payload})
	}
}
