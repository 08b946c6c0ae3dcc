package mood

import (
	"strings"

	"github.com/aero-pet/companion/internal/model/mood"
)

// rule maps trigger substrings to the mood they imply.
type rule struct {
	label    mood.Label
	triggers []string
}

// Checked top to bottom; the first rule with any trigger present wins.
var rules = []rule{
	{label: mood.Happy, triggers: []string{"love", "happy", "great"}},
	{label: mood.Sad, triggers: []string{"sad", "sorry"}},
	{label: mood.Curious, triggers: []string{"?", "curious", "wonder"}},
	{label: mood.Excited, triggers: []string{"!", "excited"}},
}

// Infer guesses a mood from a rendered transcript using fixed keyword
// triggers. It is the fallback used when the classifier gives nothing usable.
func Infer(transcript string) mood.Label {
	text := strings.ToLower(transcript)
	for _, r := range rules {
		for _, trigger := range r.triggers {
			if strings.Contains(text, trigger) {
				return r.label
			}
		}
	}
	return mood.Neutral
}
