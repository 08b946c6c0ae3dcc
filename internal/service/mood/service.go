package mood

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	analysis "github.com/aero-pet/companion/internal/analysis/mood"
	"github.com/aero-pet/companion/internal/model/chat"
	moodmodel "github.com/aero-pet/companion/internal/model/mood"
	"github.com/aero-pet/companion/internal/model/persona"
)

const (
	historyLimit = 4
	temperature  = 0.3
	maxTokens    = 5
	topP         = 1
)

// Config 控制情绪分析服务的行为。
type Config struct {
	// Credentialed 为 false 表示未配置上游 API Key，此时直接返回 neutral，不调用模型。
	Credentialed bool
	Model        string
}

// Service 使用大模型判断宠物情绪，模型无可用结果时回退到关键词规则。
type Service struct {
	enabled    bool
	classifier compose.Runnable[map[string]any, *schema.Message]
	fallback   func(transcript string) moodmodel.Label
	persona    persona.Persona
	model      string
}

// NewService 创建情绪分析服务。chatModel 可重用现有的大模型实例。
func NewService(ctx context.Context, chatModel model.BaseChatModel, p persona.Persona, cfg Config) (*Service, error) {
	svc := &Service{
		enabled:  cfg.Credentialed && chatModel != nil,
		fallback: analysis.Infer,
		persona:  p,
		model:    cfg.Model,
	}
	if !svc.enabled {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.UserMessage(p.Mood.Prompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mood classifier chain: %w", err)
	}

	svc.classifier = runnable
	return svc, nil
}

// Enabled 返回情绪分析服务是否启用。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.classifier != nil
}

// Classify 根据最近几条消息得出情绪。不会返回错误：任何问题都降级为关键词规则或 neutral。
func (s *Service) Classify(ctx context.Context, messages []chat.Message) moodmodel.Label {
	if !s.Enabled() {
		return moodmodel.Neutral
	}

	transcript := chat.Render(chat.Tail(messages, historyLimit), s.persona.Mood.UserLabel, s.persona.Mood.AssistantLabel)
	input := map[string]any{
		"moods":        joinLabels(moodmodel.Labels()),
		"conversation": transcript,
	}

	msg, err := s.classifier.Invoke(ctx, input, compose.WithChatModelOption(
		model.WithModel(s.model),
		model.WithTemperature(temperature),
		model.WithMaxTokens(maxTokens),
		model.WithTopP(topP),
	))
	if err != nil {
		slog.WarnContext(ctx, "mood classifier failed, using keyword fallback",
			slog.String("component", "mood"), slog.Any("error", err))
		return s.fallback(transcript)
	}

	raw := ""
	if msg != nil {
		raw = msg.Content
	}
	if strings.TrimSpace(raw) == "" {
		slog.InfoContext(ctx, "mood classifier returned empty answer, using keyword fallback",
			slog.String("component", "mood"))
		return s.fallback(transcript)
	}

	label := moodmodel.Match(raw)
	slog.DebugContext(ctx, "mood classified",
		slog.String("component", "mood"),
		slog.String("raw", raw),
		slog.String("mood", string(label)),
	)
	return label
}

func joinLabels(labels []moodmodel.Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ", ")
}
