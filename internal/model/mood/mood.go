package mood

import "strings"

// Label is one of the fixed moods the pet can display.
type Label string

const (
	Neutral    Label = "neutral"
	Happy      Label = "happy"
	Sad        Label = "sad"
	Excited    Label = "excited"
	Curious    Label = "curious"
	Mad        Label = "mad"
	Playful    Label = "playful"
	Thoughtful Label = "thoughtful"
)

// declared order matters: Match returns the first substring hit in this order.
var labels = []Label{Neutral, Happy, Sad, Excited, Curious, Mad, Playful, Thoughtful}

// Labels returns the mood set in declared order.
func Labels() []Label {
	return append([]Label(nil), labels...)
}

// Valid reports whether s names a known mood.
func Valid(s string) bool {
	for _, l := range labels {
		if string(l) == s {
			return true
		}
	}
	return false
}

// Match maps a raw classifier answer onto the label set. The answer is
// lowercased and stripped of every non a-z character, then matched exactly,
// then by substring in declared order. Anything else is Neutral.
//
// A response containing several labels ("sadhappy") resolves to whichever
// comes first in declared order, not in the text.
func Match(raw string) Label {
	cleaned := clean(raw)
	if cleaned == "" {
		return Neutral
	}
	if Valid(cleaned) {
		return Label(cleaned)
	}
	for _, l := range labels {
		if strings.Contains(cleaned, string(l)) {
			return l
		}
	}
	return Neutral
}

// Title returns the capitalised display name of a label.
func Title(l Label) string {
	s := string(l)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clean(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'z' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
