package http

import (
	"net/http"

	"github.com/SteamVC/SteamVC_Talk/internal/auth"
	"github.com/SteamVC/SteamVC_Talk/internal/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter はHTTPとWebSocketのルーティングを組み立てます
// gatherer が nil の場合は /metrics を公開しません
func NewRouter(h *handlers.MessageHandler, wsHandler *handlers.WebSocketHandler, v auth.Verifier, gatherer prometheus.Gatherer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/api/v1/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(v))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/conversations", h.Conversations)
			r.Get("/messages/{username}", h.History)
			r.Post("/messages/{username}/read", h.MarkRead)
		})

		// WebSocketエンドポイント
		r.Route("/ws", func(r chi.Router) {
			r.Get("/chat/{username}", wsHandler.Chat)
			r.Get("/notifications", wsHandler.Notifications)
			r.Get("/voice/{username}", wsHandler.Voice)
		})
	})

	return r
}
