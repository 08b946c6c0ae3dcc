package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aero-pet/companion/internal/handler/chat"
	"github.com/aero-pet/companion/internal/handler/mood"
	"github.com/aero-pet/companion/internal/handler/persona"
	"github.com/aero-pet/companion/internal/handler/thought"
	personaModel "github.com/aero-pet/companion/internal/model/persona"
	aiService "github.com/aero-pet/companion/internal/service/ai"
	moodService "github.com/aero-pet/companion/internal/service/mood"
	thoughtService "github.com/aero-pet/companion/internal/service/thought"
	"github.com/aero-pet/companion/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(personas personaModel.Store, aiSvc *aiService.Service, moodSvc *moodService.Service, thoughtSvc *thoughtService.Service, allowedOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Session-Id"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		persona.New(personas).RegisterRoutes(api)

		if aiSvc != nil {
			chat.New(aiSvc).RegisterRoutes(api)
		} else {
			api.Post("/chat", unavailable("chat relay unavailable"))
		}

		if moodSvc != nil {
			mood.New(moodSvc).RegisterRoutes(api)
		} else {
			api.Post("/mood", unavailable("mood classifier unavailable"))
		}

		if thoughtSvc != nil {
			thought.New(thoughtSvc).RegisterRoutes(api)
		} else {
			api.Post("/think", unavailable("thought generator unavailable"))
		}
	})

	return r
}

func unavailable(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondError(w, http.StatusServiceUnavailable, message)
	}
}
