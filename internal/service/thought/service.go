package thought

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/persona"
)

const (
	historyLimit = 6
	temperature  = 0.9
	maxTokens    = 60
)

// ErrUnavailable is returned when no chat model backs the generator.
var ErrUnavailable = errors.New("thought generator unavailable")

// Service produces short unprompted remarks in the persona's voice.
type Service struct {
	generator compose.Runnable[map[string]any, *schema.Message]
	persona   persona.Persona
	model     string
}

// NewService compiles the thought prompt chain. A nil chatModel yields a
// service that only answers the empty-transcript greeting.
func NewService(ctx context.Context, chatModel model.BaseChatModel, p persona.Persona, modelName string) (*Service, error) {
	svc := &Service{persona: p, model: modelName}
	if chatModel == nil {
		return svc, nil
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(schema.FString, schema.UserMessage(p.Thought.Prompt)))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile thought chain: %w", err)
	}
	svc.generator = runnable
	return svc, nil
}

// Generate returns one spontaneous remark for the transcript. An empty
// transcript gets the persona greeting without an upstream call.
func (s *Service) Generate(ctx context.Context, messages []chat.Message) (string, error) {
	if len(messages) == 0 {
		return s.persona.Greeting, nil
	}
	if s.generator == nil {
		return "", ErrUnavailable
	}

	conversation := chat.Render(chat.Tail(messages, historyLimit), s.persona.Thought.UserLabel, s.persona.Thought.AssistantLabel)
	msg, err := s.generator.Invoke(ctx, map[string]any{"conversation": conversation}, compose.WithChatModelOption(
		model.WithModel(s.model),
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
	))
	if err != nil {
		return "", fmt.Errorf("failed to generate thought: %w", err)
	}

	var thought string
	if msg != nil {
		thought = strings.TrimSpace(msg.Content)
	}
	if thought == "" {
		slog.WarnContext(ctx, "thought generator returned an empty thought", slog.String("component", "thought"))
		return s.persona.FallbackThought, nil
	}
	return thought, nil
}
