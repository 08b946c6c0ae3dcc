// Package aitest provides a scripted chat model for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var _ model.BaseChatModel = (*ChatModel)(nil)

// ChatModel replays canned output and records every call.
type ChatModel struct {
	// Reply is returned by Generate.
	Reply string
	// Chunks are emitted in order by Stream.
	Chunks []string
	// Err fails the call before any output.
	Err error
	// StreamErr is delivered after Chunks.
	StreamErr error

	mu      sync.Mutex
	calls   int
	inputs  [][]*schema.Message
	options []*model.Options
}

func (m *ChatModel) record(input []*schema.Message, opts []model.Option) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.inputs = append(m.inputs, input)
	m.options = append(m.options, model.GetCommonOptions(&model.Options{}, opts...))
}

// Generate implements model.BaseChatModel.
func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.record(input, opts)
	if m.Err != nil {
		return nil, m.Err
	}
	return schema.AssistantMessage(m.Reply, nil), nil
}

// Stream implements model.BaseChatModel.
func (m *ChatModel) Stream(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input, opts)
	if m.Err != nil {
		return nil, m.Err
	}

	sr, sw := schema.Pipe[*schema.Message](len(m.Chunks) + 1)
	go func() {
		defer sw.Close()
		for _, chunk := range m.Chunks {
			if closed := sw.Send(schema.AssistantMessage(chunk, nil), nil); closed {
				return
			}
		}
		if m.StreamErr != nil {
			sw.Send(nil, m.StreamErr)
		}
	}()
	return sr, nil
}

// Calls reports how many times the model was invoked.
func (m *ChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastInput returns the messages of the most recent call.
func (m *ChatModel) LastInput() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inputs) == 0 {
		return nil
	}
	return m.inputs[len(m.inputs)-1]
}

// LastOptions returns the resolved common options of the most recent call.
func (m *ChatModel) LastOptions() *model.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.options) == 0 {
		return nil
	}
	return m.options[len(m.options)-1]
}
