package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/provider"
	"github.com/aero-pet/companion/internal/service/ai"
	"github.com/aero-pet/companion/pkg/utils"
)

// Replier opens a reply stream for a transcript.
type Replier interface {
	StreamReply(ctx context.Context, messages []chat.Message) (*schema.StreamReader[*schema.Message], error)
}

// Handler relays chat completions to the client as Server-Sent Events.
type Handler struct {
	replier Replier
}

// New creates the chat handler.
func New(replier Replier) *Handler {
	return &Handler{replier: replier}
}

// RegisterRoutes mounts POST /chat.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// Fragment is the payload of every emitted event.
type Fragment struct {
	Text string `json:"text"`
}

const genericFailure = "An error occurred."

// ErrorResponse is returned when the stream could not be opened.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := slog.With(
		slog.String("component", "chat"),
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("session", r.Header.Get("X-Session-Id")),
	)

	var payload chat.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Warn("undecodable chat request", slog.Any("error", err))
		utils.RespondError(w, http.StatusInternalServerError, genericFailure)
		return
	}
	if len(payload.Messages) == 0 {
		utils.RespondJSON(w, http.StatusBadRequest, ErrorResponse{Error: ai.ErrNoMessages.Error(), Type: "invalid_request"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, err := h.replier.StreamReply(ctx, payload.Messages)
	if err != nil {
		logger.Error("failed to open chat stream", slog.Any("error", err))
		respondStreamError(w, err)
		return
	}
	defer stream.Close()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	fragments := 0
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			// The status is already sent. Dropping the connection keeps the
			// truncated body from reading as a complete reply.
			logger.Error("chat stream interrupted", slog.Any("error", recvErr), slog.Int("fragments", fragments))
			panic(http.ErrAbortHandler)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		if err := utils.SendSSEChunk(w, flusher, Fragment{Text: chunk.Content}); err != nil {
			logger.Warn("client went away during chat stream", slog.Any("error", err))
			return
		}
		fragments++
	}

	logger.Info("chat stream completed", slog.Int("messages", len(payload.Messages)), slog.Int("fragments", fragments))
}

func respondStreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, ai.ErrNoMessages) {
		utils.RespondJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Type: "invalid_request"})
		return
	}
	if upstream, ok := provider.AsUpstream(err); ok {
		utils.RespondJSON(w, upstream.Status, ErrorResponse{Error: upstream.Message, Type: upstream.Type})
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, genericFailure)
}
