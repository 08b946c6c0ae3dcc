package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aero-pet/companion/internal/model/mood"
	"github.com/aero-pet/companion/internal/model/persona"
	"github.com/aero-pet/companion/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	personas persona.Store
}

// New 创建persona处理器
func New(personas persona.Store) *Handler {
	return &Handler{
		personas: personas,
	}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/persona", h.handleGetPersona)
}

// Profile 是客户端展示宠物所需的信息。
type Profile struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Greeting string       `json:"greeting"`
	Moods    []mood.Label `json:"moods"`
}

func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p := persona.Default(h.personas)
	utils.RespondJSON(w, http.StatusOK, Profile{
		ID:       p.ID,
		Name:     p.Name,
		Greeting: p.Greeting,
		Moods:    mood.Labels(),
	})
}
