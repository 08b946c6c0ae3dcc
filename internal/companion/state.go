package companion

import (
	"strings"

	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/mood"
)

// Phase tracks the user-initiated exchange.
type Phase int

const (
	PhaseIdle Phase = iota
	// PhaseSending: the user message is out, no fragment has arrived yet.
	PhaseSending
	// PhaseStreaming: fragments are accumulating in Pending.
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// Snapshot is an immutable view of a session. Transcript is never modified in
// place, so a snapshot can be kept after the session moves on.
type Snapshot struct {
	Transcript []chat.Message
	Pending    string
	Mood       mood.Label
	Phase      Phase
	Thinking   bool
}

// Busy reports whether a send or a spontaneous request is in flight.
func (s Snapshot) Busy() bool {
	return s.Phase != PhaseIdle || s.Thinking
}

type event interface{ isEvent() }

type (
	submitted        struct{ message chat.Message }
	fragmentReceived struct{ text string }
	replyCompleted   struct{}
	sendFailed       struct{ rollback []chat.Message }
	thinkStarted     struct{}
	thoughtArrived   struct{ text string }
	thinkFinished    struct{}
	moodChanged      struct{ label mood.Label }
)

func (submitted) isEvent()        {}
func (fragmentReceived) isEvent() {}
func (replyCompleted) isEvent()   {}
func (sendFailed) isEvent()       {}
func (thinkStarted) isEvent()     {}
func (thoughtArrived) isEvent()   {}
func (thinkFinished) isEvent()    {}
func (moodChanged) isEvent()      {}

// reduce returns the state after e. It never mutates s.
func reduce(s Snapshot, e event) Snapshot {
	switch e := e.(type) {
	case submitted:
		s.Transcript = appendMessage(s.Transcript, e.message)
		s.Pending = ""
		s.Phase = PhaseSending
	case fragmentReceived:
		if s.Phase == PhaseIdle {
			return s
		}
		s.Pending += e.text
		s.Phase = PhaseStreaming
	case replyCompleted:
		if strings.TrimSpace(s.Pending) != "" {
			s.Transcript = appendMessage(s.Transcript, chat.Message{Role: chat.RoleAssistant, Content: s.Pending})
		}
		s.Pending = ""
		s.Phase = PhaseIdle
	case sendFailed:
		s.Transcript = e.rollback
		s.Pending = ""
		s.Phase = PhaseIdle
	case thinkStarted:
		s.Thinking = true
	case thoughtArrived:
		s.Transcript = appendMessage(s.Transcript, chat.Message{
			Role:        chat.RoleAssistant,
			Content:     e.text,
			Spontaneous: true,
		})
		s.Thinking = false
	case thinkFinished:
		s.Thinking = false
	case moodChanged:
		s.Mood = e.label
	}
	return s
}

func appendMessage(transcript []chat.Message, msg chat.Message) []chat.Message {
	out := make([]chat.Message, len(transcript), len(transcript)+1)
	copy(out, transcript)
	return append(out, msg)
}
