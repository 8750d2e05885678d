package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/config"
	"github.com/changyunjeff/campus-mp/internal/security"
	"github.com/changyunjeff/campus-mp/internal/ws"
)

// NewRouter constructs the relay's HTTP router: the /ws endpoint plus the
// small REST surface the client talks to.
func NewRouter(cfg *config.RelayConfig, relay *ws.Relay, tokenSvc *security.TokenService, dir *Directory, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "healthy",
			"online_users": relay.Hub().OnlineCount(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket endpoint; long-lived, so outside the request timeout
	r.Get("/ws", ws.MakeHandler(relay, tokenSvc, cfg.CORSOrigins, logger))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api", func(r chi.Router) {
			if cfg.Development() {
				r.Post("/auth/token", handleIssueToken(tokenSvc, dir, cfg.TokenTTLMinutes))
			}

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(tokenSvc))

				r.Get("/auth/me", handleMe(dir))
				r.Route("/users", func(r chi.Router) {
					r.Put("/me/profile", handlePutProfile(dir))
					r.Post("/me/blocks", handleBlock(relay.Policy(), logger))
					r.Get("/{userID}/profile", handleGetProfile(dir))
				})
			})
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
