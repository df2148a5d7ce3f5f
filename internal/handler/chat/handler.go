package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mwarrick/payguard/backend/internal/service/assess"
	chatservice "github.com/mwarrick/payguard/backend/internal/service/chat"
	"github.com/mwarrick/payguard/backend/pkg/utils"
)

// Handler exposes the conversation engine over REST.
type Handler struct {
	engine *chatservice.Engine
}

// New creates the chat handler.
func New(engine *chatservice.Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes mounts the chat endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/start", h.handleStart)
	r.Post("/chat/respond", h.handleRespond)
	r.Get("/chat/status/{sessionID}", h.handleStatus)
}

type startRequest struct {
	SessionID string `json:"session_id"`
}

type respondRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var payload startRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON")
		return
	}

	result, err := h.engine.Start(r.Context(), payload.SessionID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "INTERNAL", "failed to start conversation")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": result.SessionID,
		"message":    result.Message,
	})
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	var payload respondRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON")
		return
	}
	if payload.SessionID == "" || payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "session_id and message are required")
		return
	}

	reply, err := h.engine.Respond(r.Context(), payload.SessionID, payload.Message)
	if err != nil {
		h.respondEngineError(w, reply, err)
		return
	}

	body := map[string]any{
		"success":   true,
		"message":   reply.Message,
		"completed": reply.Completed,
	}
	if reply.RiskAssessment != "" {
		body["risk_assessment"] = reply.RiskAssessment
	}
	utils.RespondJSON(w, http.StatusOK, body)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	status, err := h.engine.Status(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatservice.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "INTERNAL", "failed to read session status")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":                true,
		"session_id":             status.SessionID,
		"state":                  status.State,
		"current_question_index": status.CurrentIndex,
		"answers_count":          status.AnswersCount,
		"completed":              status.Completed,
	})
}

// respondEngineError maps engine errors onto stable codes the widget can
// branch on.
func (h *Handler) respondEngineError(w http.ResponseWriter, reply chatservice.Reply, err error) {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found. Please refresh and start again.")
	case errors.Is(err, chatservice.ErrSessionBusy):
		utils.RespondError(w, http.StatusConflict, "BUSY", "Your previous message is still being processed. Please wait a moment.")
	case errors.Is(err, chatservice.ErrInvalidState):
		body := map[string]any{
			"success": false,
			"code":    "INVALID_STATE",
			"message": reply.Message,
		}
		if reply.RiskAssessment != "" {
			// The verdict is the only artifact a completed session returns.
			body["completed"] = true
			body["risk_assessment"] = reply.RiskAssessment
		}
		utils.RespondJSON(w, http.StatusConflict, body)
	case errors.Is(err, assess.ErrAssessmentFailed):
		utils.RespondError(w, http.StatusBadGateway, "ASSESSMENT_FAILED", reply.Message)
	case errors.Is(err, chatservice.ErrConflict):
		utils.RespondError(w, http.StatusConflict, "CONFLICT", "The session changed while processing. Please try again.")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "INTERNAL", "Sorry, something went wrong. Please try again.")
	}
}
