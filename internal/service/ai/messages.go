package ai

import (
	"github.com/cloudwego/eino/schema"

	"github.com/aero-pet/companion/internal/model/chat"
)

// BuildMessages turns a client transcript into model input: the persona
// system prompt first, earlier turns as plain role/content, and the last turn
// as a user message carrying its image when one is attached.
func BuildMessages(systemPrompt string, messages []chat.Message) ([]*schema.Message, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	out := make([]*schema.Message, 0, len(messages)+1)
	out = append(out, schema.SystemMessage(systemPrompt))

	history := messages[:len(messages)-1]
	for _, msg := range history {
		out = append(out, &schema.Message{
			Role:    toSchemaRole(msg.Role),
			Content: msg.Content,
		})
	}

	latest := messages[len(messages)-1]
	if latest.ImageURL == "" {
		out = append(out, schema.UserMessage(latest.Content))
		return out, nil
	}

	out = append(out, &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: latest.Content},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: latest.ImageURL}},
		},
	})
	return out, nil
}

func toSchemaRole(role chat.Role) schema.RoleType {
	if role == chat.RoleAssistant {
		return schema.Assistant
	}
	return schema.User
}
