package mood

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aero-pet/companion/internal/model/chat"
	moodmodel "github.com/aero-pet/companion/internal/model/mood"
	"github.com/aero-pet/companion/pkg/utils"
)

// Classifier derives a mood from a transcript.
type Classifier interface {
	Classify(ctx context.Context, messages []chat.Message) moodmodel.Label
}

// Handler serves the mood endpoint.
type Handler struct {
	classifier Classifier
}

// New creates the mood handler.
func New(classifier Classifier) *Handler {
	return &Handler{classifier: classifier}
}

// RegisterRoutes mounts POST /mood.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/mood", h.handleMood)
}

// Response is the mood endpoint body.
type Response struct {
	Mood moodmodel.Label `json:"mood"`
}

func (h *Handler) handleMood(w http.ResponseWriter, r *http.Request) {
	var payload chat.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.ErrorContext(r.Context(), "mood request failed", slog.String("component", "mood"), slog.Any("error", err))
		utils.RespondError(w, http.StatusInternalServerError, "Failed to determine mood.")
		return
	}

	label := h.classifier.Classify(r.Context(), payload.Messages)
	utils.RespondJSON(w, http.StatusOK, Response{Mood: label})
}
