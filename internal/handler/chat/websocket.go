package chat

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mwarrick/payguard/backend/internal/service/assess"
	chatservice "github.com/mwarrick/payguard/backend/internal/service/chat"
)

// WebSocketHandler drives the same conversation engine over a persistent
// connection, for widgets that prefer push replies over request polling.
type WebSocketHandler struct {
	engine   *chatservice.Engine
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket chat handler.
func NewWebSocketHandler(engine *chatservice.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket endpoint.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/ws", h.handleWebSocket)
}

type inboundFrame struct {
	Type      string `json:"type"` // "start" or "answer"
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type outgoingFrame struct {
	Type           string `json:"type"` // "question", "verdict" or "error"
	SessionID      string `json:"sessionId,omitempty"`
	Message        string `json:"message,omitempty"`
	Completed      bool   `json:"completed,omitempty"`
	RiskAssessment string `json:"riskAssessment,omitempty"`
	Code           string `json:"code,omitempty"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read failed: %v", err)
			}
			return
		}

		var out outgoingFrame
		switch frame.Type {
		case "start":
			result, err := h.engine.Start(ctx, frame.SessionID)
			if err != nil {
				out = outgoingFrame{Type: "error", Code: "INTERNAL", Message: "failed to start conversation"}
				break
			}
			out = outgoingFrame{Type: "question", SessionID: result.SessionID, Message: result.Message}
		case "answer":
			if frame.SessionID == "" || frame.Message == "" {
				out = outgoingFrame{Type: "error", Code: "VALIDATION_ERROR", Message: "sessionId and message are required"}
				break
			}
			out = h.dispatchAnswer(ctx, frame)
		default:
			out = outgoingFrame{Type: "error", Code: "VALIDATION_ERROR", Message: "unknown frame type"}
		}

		if err := conn.WriteJSON(out); err != nil {
			log.Printf("[ws] write failed: %v", err)
			return
		}
	}
}

func (h *WebSocketHandler) dispatchAnswer(ctx context.Context, frame inboundFrame) outgoingFrame {
	reply, err := h.engine.Respond(ctx, frame.SessionID, frame.Message)
	if err != nil {
		return engineErrorFrame(frame.SessionID, reply, err)
	}

	out := outgoingFrame{
		Type:      "question",
		SessionID: frame.SessionID,
		Message:   reply.Message,
	}
	if reply.Completed {
		out.Type = "verdict"
		out.Completed = true
		out.RiskAssessment = reply.RiskAssessment
	}
	return out
}

func engineErrorFrame(sessionID string, reply chatservice.Reply, err error) outgoingFrame {
	out := outgoingFrame{Type: "error", SessionID: sessionID}
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		out.Code = "SESSION_NOT_FOUND"
		out.Message = "Session not found. Please start again."
	case errors.Is(err, chatservice.ErrSessionBusy):
		out.Code = "BUSY"
		out.Message = "Your previous message is still being processed."
	case errors.Is(err, chatservice.ErrInvalidState):
		out.Code = "INVALID_STATE"
		out.Message = reply.Message
		if reply.RiskAssessment != "" {
			out.Completed = true
			out.RiskAssessment = reply.RiskAssessment
		}
	case errors.Is(err, assess.ErrAssessmentFailed):
		out.Code = "ASSESSMENT_FAILED"
		out.Message = reply.Message
	default:
		out.Code = "INTERNAL"
		out.Message = "Sorry, something went wrong. Please try again."
	}
	return out
}
