// Package groq adapts an OpenAI-compatible completion API (Groq by default)
// to eino's chat model interface.
package groq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"

	"github.com/aero-pet/companion/internal/provider"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

var _ model.BaseChatModel = (*ChatModel)(nil)

// Config configures ChatModel.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// ChatModel talks to the provider through go-openai.
type ChatModel struct {
	client *openai.Client
	model  string
}

// NewChatModel creates a chat model. An empty key is accepted; the provider
// rejects the calls instead.
func NewChatModel(cfg *Config) (*ChatModel, error) {
	if cfg == nil {
		return nil, errors.New("groq: config is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("groq: model is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = DefaultBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &ChatModel{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Generate runs a non-streaming completion.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	req, err := m.buildRequest(input, opts...)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return &schema.Message{Role: schema.Assistant}, nil
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: resp.Choices[0].Message.Content,
	}, nil
}

// Stream opens a streaming completion. Errors reported while opening the
// stream, such as auth or rate limits, are returned directly so callers can
// still answer with a status code.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.buildRequest(input, opts...)
	if err != nil {
		return nil, err
	}
	req.Stream = true

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, convertError(err)
	}

	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer stream.Close()
		defer sw.Close()

		for {
			resp, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				return
			}
			if recvErr != nil {
				sw.Send(nil, convertError(recvErr))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			chunk := &schema.Message{
				Role:    schema.Assistant,
				Content: resp.Choices[0].Delta.Content,
			}
			if closed := sw.Send(chunk, nil); closed {
				return
			}
		}
	}()

	return sr, nil
}

func (m *ChatModel) buildRequest(input []*schema.Message, opts ...model.Option) (openai.ChatCompletionRequest, error) {
	options := model.GetCommonOptions(&model.Options{Model: &m.model}, opts...)

	req := openai.ChatCompletionRequest{Model: m.model}
	if options.Model != nil && *options.Model != "" {
		req.Model = *options.Model
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = *options.TopP
	}
	if len(options.Stop) > 0 {
		req.Stop = options.Stop
	}

	req.Messages = make([]openai.ChatCompletionMessage, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		converted, err := toOpenAIMessage(msg)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		req.Messages = append(req.Messages, converted)
	}
	return req, nil
}

func toOpenAIMessage(msg *schema.Message) (openai.ChatCompletionMessage, error) {
	out := openai.ChatCompletionMessage{Role: string(msg.Role)}
	if len(msg.MultiContent) == 0 {
		out.Content = msg.Content
		return out, nil
	}

	out.MultiContent = make([]openai.ChatMessagePart, 0, len(msg.MultiContent))
	for _, part := range msg.MultiContent {
		switch part.Type {
		case schema.ChatMessagePartTypeText:
			out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case schema.ChatMessagePartTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: part.ImageURL.URL},
			})
		default:
			return openai.ChatCompletionMessage{}, fmt.Errorf("groq: unsupported message part %q", part.Type)
		}
	}
	return out, nil
}

func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return provider.NewUpstreamError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return provider.NewUpstreamError(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return err
}
