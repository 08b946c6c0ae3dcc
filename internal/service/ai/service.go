package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/aero-pet/companion/internal/config"
	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/persona"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 1024
)

// ErrNoMessages is returned when a chat relay call carries an empty transcript.
var ErrNoMessages = errors.New("messages must not be empty")

// Service relays conversations to the chat model as the companion persona.
type Service struct {
	chatModel model.BaseChatModel
	personas  persona.Store
	cfg       config.AIConfig
}

// NewService creates the chat model described by cfg and wraps it.
func NewService(ctx context.Context, personas persona.Store, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(chatModel, personas, cfg), nil
}

// NewServiceWithModel wraps an existing chat model.
func NewServiceWithModel(chatModel model.BaseChatModel, personas persona.Store, cfg config.AIConfig) *Service {
	return &Service{
		chatModel: chatModel,
		personas:  personas,
		cfg:       cfg,
	}
}

// GetChatModel returns the underlying chat model so the side relays can share it.
func (s *Service) GetChatModel() model.BaseChatModel {
	return s.chatModel
}

// StreamReply opens a token stream answering the transcript. Provider errors
// raised while opening the stream keep their *provider.UpstreamError in the chain.
func (s *Service) StreamReply(ctx context.Context, messages []chat.Message) (*schema.StreamReader[*schema.Message], error) {
	p := persona.Default(s.personas)

	input, err := BuildMessages(p.SystemPrompt, messages)
	if err != nil {
		return nil, err
	}

	stream, err := s.chatModel.Stream(ctx, input,
		model.WithModel(s.cfg.ChatModel),
		model.WithTemperature(chatTemperature),
		model.WithMaxTokens(chatMaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to stream chat reply: %w", err)
	}

	slog.DebugContext(ctx, "chat stream opened",
		slog.String("component", "ai"),
		slog.String("persona", p.ID),
		slog.Int("messages", len(messages)),
	)
	return stream, nil
}
