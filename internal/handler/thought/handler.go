package thought

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/pkg/utils"
)

// Generator produces a spontaneous remark for a transcript.
type Generator interface {
	Generate(ctx context.Context, messages []chat.Message) (string, error)
}

// Handler serves the spontaneous-thought endpoint.
type Handler struct {
	generator Generator
}

// New creates the thought handler.
func New(generator Generator) *Handler {
	return &Handler{generator: generator}
}

// RegisterRoutes mounts POST /think.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/think", h.handleThink)
}

// Response is the thought endpoint body.
type Response struct {
	Thought string `json:"thought"`
}

const failureMessage = "Failed to generate thought."

func (h *Handler) handleThink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload chat.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.ErrorContext(ctx, "think request failed", slog.String("component", "thought"), slog.Any("error", err))
		utils.RespondError(w, http.StatusInternalServerError, failureMessage)
		return
	}

	thought, err := h.generator.Generate(ctx, payload.Messages)
	if err != nil {
		slog.ErrorContext(ctx, "think request failed", slog.String("component", "thought"), slog.Any("error", err))
		utils.RespondError(w, http.StatusInternalServerError, failureMessage)
		return
	}

	utils.RespondJSON(w, http.StatusOK, Response{Thought: thought})
}
