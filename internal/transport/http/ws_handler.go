package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
)

// WSHandler upgrades HTTP requests to websockets and wires the tagged
// command set into the game service. Payload shapes are validated here,
// before anything reaches the state machine.
type WSHandler struct {
	service  *app.GameService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, hub *Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	JoinCode    string `json:"joinCode"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

type answerPayload struct {
	QuestionID  string `json:"questionId"`
	ChosenIndex int    `json:"chosenIndex"`
	ChosenText  string `json:"chosenText,omitempty"`
}

type operatorPayload struct {
	SessionID string                `json:"sessionId"`
	QuizID    string                `json:"quizId,omitempty"`
	Token     string                `json:"token"`
	Settings  *app.SettingsOverride `json:"gameSettings,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServePlay handles the participant side: a join (or reconnect) first, then
// answers and jokers until the connection drops.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := newClient(uuid.NewString(), conn)
	go c.writeLoop()
	defer c.close()

	var joined *app.JoinResult
	defer func() {
		if joined != nil {
			h.service.Disconnect(r.Context(), joined.SessionID, joined.ParticipantID, c.id)
		}
		h.hub.remove(c)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case "join":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid join payload"}})
				continue
			}
			result, err := h.service.Join(r.Context(), payload.JoinCode, payload.DisplayName, payload.Avatar, c.id)
			if err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: joinErrorMessage(err)}})
				continue
			}
			joined = &result
			h.hub.bindParticipant(result.SessionID, result.ParticipantID, c)
			c.enqueue(outboundMessage{Type: app.EvtJoined, Payload: result})
			for _, ev := range result.Replay {
				c.enqueue(outboundMessage{Type: ev.Name, Payload: ev.Payload})
			}

		case "submit-answer":
			if joined == nil {
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			err := h.service.SubmitAnswer(r.Context(), joined.SessionID, joined.ParticipantID,
				payload.QuestionID, payload.ChosenIndex, payload.ChosenText)
			if err != nil && !errors.Is(err, domain.ErrStaleRequest) {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		case "use-skip":
			if joined == nil {
				continue
			}
			// Re-use after exhaustion and out-of-phase calls are silent no-ops.
			if err := h.service.UseSkip(r.Context(), joined.SessionID, joined.ParticipantID); err != nil &&
				!errors.Is(err, domain.ErrInvalidState) {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		case "use-eliminate":
			if joined == nil {
				continue
			}
			indices, err := h.service.UseEliminate(r.Context(), joined.SessionID, joined.ParticipantID)
			if err != nil {
				if !errors.Is(err, domain.ErrInvalidState) {
					c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
				}
				continue
			}
			c.enqueue(outboundMessage{Type: app.EvtEliminateResult, Payload: app.EliminateResult{EliminatedIndices: indices}})

		default:
			c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}

// ServeOperator handles the operator view: session creation and attachment,
// then the game control commands.
func (h *WSHandler) ServeOperator(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := newClient(uuid.NewString(), conn)
	go c.writeLoop()
	defer c.close()
	defer h.hub.remove(c)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		var payload operatorPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid payload"}})
			continue
		}

		switch inbound.Type {
		case "create-session":
			header, err := h.service.CreateSession(r.Context(), payload.QuizID, payload.Token)
			if err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			c.enqueue(outboundMessage{Type: app.EvtSessionCreated, Payload: header})

		case "join-session":
			snapshot, err := h.service.OperatorJoin(r.Context(), payload.SessionID, payload.Token)
			if err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			h.hub.bindOperator(payload.SessionID, c)
			c.enqueue(outboundMessage{Type: app.EvtSessionSnapshot, Payload: snapshot})

		case "start-game":
			if err := h.service.Start(r.Context(), payload.SessionID, payload.Token, payload.Settings); err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		case "advance":
			if err := h.service.Advance(r.Context(), payload.SessionID, payload.Token); err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		case "end-game":
			if err := h.service.ForceEnd(r.Context(), payload.SessionID, payload.Token); err != nil {
				c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}

		default:
			c.enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "invalid PIN"
	case errors.Is(err, domain.ErrNameTaken):
		return "display name already taken"
	case errors.Is(err, domain.ErrGameInProgress):
		return "game already in progress"
	case errors.Is(err, domain.ErrSessionFull):
		return "session is full"
	default:
		return err.Error()
	}
}
