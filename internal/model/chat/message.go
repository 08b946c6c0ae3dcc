package chat

import "strings"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry. The client owns the transcript and sends it
// in full with every relay call.
type Message struct {
	Role        Role   `json:"role" yaml:"role"`
	Content     string `json:"content" yaml:"content"`
	ImageURL    string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	Spontaneous bool   `json:"isSpontaneous,omitempty" yaml:"isSpontaneous,omitempty"`
}

// Request is the body accepted by every relay endpoint.
type Request struct {
	Messages []Message `json:"messages" yaml:"messages"`
}

// Tail returns the last n messages, or all of them when fewer exist.
func Tail(messages []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// Render flattens messages into "Speaker: content" lines.
func Render(messages []Message, userLabel, assistantLabel string) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		label := assistantLabel
		if msg.Role == RoleUser {
			label = userLabel
		}
		lines = append(lines, label+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}
