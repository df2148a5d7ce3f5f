package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chatHandler "github.com/mwarrick/payguard/backend/internal/handler/chat"
	middlewarePkg "github.com/mwarrick/payguard/backend/internal/middleware"
	chatService "github.com/mwarrick/payguard/backend/internal/service/chat"
	"github.com/mwarrick/payguard/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the conversation engine.
func NewRouter(engine *chatService.Engine) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	restHandler := chatHandler.New(engine)
	wsHandler := chatHandler.NewWebSocketHandler(engine)

	r.Route("/api", func(api chi.Router) {
		restHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	// Liveness probe. Must not depend on the LLM provider.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "payment-safety-assistant",
		})
	})

	return r
}
