package services

import (
	"encoding/json"
	"log"
	"sync"

	"fluxquiz/errs"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub owns all websocket connections and routes room-scoped broadcasts.
// Rooms are keyed by quiz id: a client is in a session's room once it has
// joined that session's lobby.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	arena      *ArenaService
}

type Client struct {
	hub    *Hub
	id     string
	socket *websocket.Conn
	send   chan []byte
	quizID uint // room binding, guarded by hub.mutex
}

// Message is the wire envelope in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type joinLobbyPayload struct {
	QuizID   uint   `json:"quiz_id"`
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

type leaveLobbyPayload struct {
	QuizID uint `json:"quiz_id"`
	UserID uint `json:"user_id"`
}

type kickPlayerPayload struct {
	QuizID       uint `json:"quiz_id"`
	MasterID     uint `json:"master_id"`
	TargetUserID uint `json:"target_user_id"`
}

type startQuizPayload struct {
	QuizID uint `json:"quiz_id"`
	UserID uint `json:"user_id"`
}

type submitAnswerPayload struct {
	QuizID        uint   `json:"quiz_id"`
	UserID        uint   `json:"user_id"`
	QuestionIndex *int   `json:"question_index"`
	Answer        string `json:"answer"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// BindArena wires the arena service in after construction; the arena
// broadcasts through the hub and the hub dispatches inbound events to
// the arena.
func (h *Hub) BindArena(arena *ArenaService) {
	h.arena = arena
}

// bindRoom puts a client in a session's room. BroadcastToSession reads
// the binding under the same mutex.
func (h *Hub) bindRoom(c *Client, quizID uint) {
	h.mutex.Lock()
	c.quizID = quizID
	h.mutex.Unlock()
}

// unbindRoom takes a client out of a room if it is still bound to it.
func (h *Hub) unbindRoom(c *Client, quizID uint) {
	h.mutex.Lock()
	if c.quizID == quizID {
		c.quizID = 0
	}
	h.mutex.Unlock()
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("[Hub] client %s connected - total clients: %d", client.id, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()

			if ok {
				log.Printf("[Hub] client %s disconnected - total clients: %d", client.id, total)
				// Presence cleanup happens outside the hub lock: the
				// arena broadcasts rosters back through the hub.
				if h.arena != nil {
					h.arena.DisconnectClient(client)
				}
			}
		}
	}
}

// BroadcastToSession sends an event to every client in a session's room.
// Clients with a full send buffer are dropped; their read pump notices
// the closed connection and unregisters them.
func (h *Hub) BroadcastToSession(quizID uint, event string, payload any) {
	data, err := json.Marshal(outMessage{Type: event, Payload: payload})
	if err != nil {
		log.Printf("[Hub] error marshaling %s broadcast: %v", event, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.quizID != quizID {
			continue
		}
		select {
		case client.send <- data:
		default:
			log.Printf("[Hub] client %s send buffer full, dropping", client.id)
			client.socket.Close()
		}
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		socket: conn,
		send:   make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (c *Client) ConnID() string {
	return c.id
}

// Send marshals one event to this client. Non-blocking: a slow client
// loses the message rather than stalling the caller. The membership
// check keeps a late private send off an already-closed send channel.
func (c *Client) Send(event string, payload any) {
	data, err := json.Marshal(outMessage{Type: event, Payload: payload})
	if err != nil {
		log.Printf("[Hub] error marshaling %s for client %s: %v", event, c.id, err)
		return
	}

	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[Hub] client %s send buffer full, dropping %s", c.id, event)
	}
}

func (c *Client) sendError(err error) {
	c.Send(EventError, gin.H{"message": errs.Convert(err).Message})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.socket.Close()
	}()

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] websocket read error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[Hub] error unmarshaling message from client %s: %v", c.id, err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer c.socket.Close()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	arena := c.hub.arena
	if arena == nil {
		return
	}

	switch msg.Type {
	case "ping":
		c.Send("pong", "pong")

	case "join_lobby":
		var req joinLobbyPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(errs.InvalidRequest("malformed join payload"))
			return
		}
		// Bind to the room first so the roster broadcast from Join
		// reaches the joiner too.
		c.hub.bindRoom(c, req.QuizID)
		result, err := arena.Join(req.QuizID, req.UserID, req.Username, c)
		if err != nil {
			c.hub.unbindRoom(c, req.QuizID)
			c.sendError(err)
			return
		}

		message := "You joined the lobby"
		if result.IsRejoin {
			message = "You rejoined the quiz"
		}
		c.Send(EventJoined, gin.H{
			"message":       message,
			"quiz_id":       req.QuizID,
			"is_rejoin":     result.IsRejoin,
			"quiz_started":  result.Phase == PhaseRunning,
			"current_score": result.CurrentScore,
		})

	case "leave_lobby":
		var req leaveLobbyPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(errs.InvalidRequest("malformed leave payload"))
			return
		}
		arena.Leave(req.QuizID, req.UserID)
		c.hub.unbindRoom(c, req.QuizID)

	case "kick_player":
		var req kickPlayerPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(errs.InvalidRequest("malformed kick payload"))
			return
		}
		if err := arena.Kick(req.QuizID, req.MasterID, req.TargetUserID); err != nil {
			c.sendError(err)
		}

	case "start_quiz":
		var req startQuizPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(errs.InvalidRequest("malformed start payload"))
			return
		}
		if err := arena.Start(req.QuizID, req.UserID); err != nil {
			c.sendError(err)
		}

	case "submit_answer":
		var req submitAnswerPayload
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			c.sendError(errs.InvalidRequest("malformed answer payload"))
			return
		}
		if req.QuestionIndex == nil {
			c.sendError(errs.InvalidRequest("missing question index"))
			return
		}
		result, err := arena.Submit(req.QuizID, req.UserID, *req.QuestionIndex, req.Answer)
		if err != nil {
			c.sendError(err)
			return
		}
		c.Send(EventScoreUpdate, gin.H{
			"user_id":       req.UserID,
			"score":         result.NewScore,
			"correct":       result.IsCorrect,
			"points_earned": result.PointsEarned,
		})

	default:
		log.Printf("[Hub] unknown message type %q from client %s", msg.Type, c.id)
	}
}
