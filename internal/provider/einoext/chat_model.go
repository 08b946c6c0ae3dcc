// Package einoext wraps the eino-ext chat models so their SDK errors carry
// the provider's HTTP status like the groq adapter does.
package einoext

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	forkopenai "github.com/meguminnnnnnnnn/go-openai"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/aero-pet/companion/internal/provider"
)

var _ model.BaseChatModel = (*ChatModel)(nil)

// ChatModel maps the wrapped model's call errors onto provider.UpstreamError.
type ChatModel struct {
	inner   model.BaseChatModel
	convert func(error) error
}

// WrapOpenAI wraps an eino-ext openai chat model.
func WrapOpenAI(inner model.BaseChatModel) *ChatModel {
	return &ChatModel{inner: inner, convert: ConvertOpenAIError}
}

// WrapArk wraps an eino-ext ark chat model.
func WrapArk(inner model.BaseChatModel) *ChatModel {
	return &ChatModel{inner: inner, convert: ConvertArkError}
}

// Generate implements model.BaseChatModel.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	out, err := m.inner.Generate(ctx, input, opts...)
	if err != nil {
		return nil, m.convert(err)
	}
	return out, nil
}

// Stream implements model.BaseChatModel. Errors after the stream opened are
// passed through unchanged.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, err := m.inner.Stream(ctx, input, opts...)
	if err != nil {
		return nil, m.convert(err)
	}
	return sr, nil
}

// ConvertOpenAIError maps the go-openai fork used by eino-ext openai.
func ConvertOpenAIError(err error) error {
	var apiErr *forkopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return provider.NewUpstreamError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *forkopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return provider.NewUpstreamError(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return err
}

// ConvertArkError maps the volcengine ark runtime errors.
func ConvertArkError(err error) error {
	var apiErr *arkmodel.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return provider.NewUpstreamError(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *arkmodel.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return provider.NewUpstreamError(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return err
}
