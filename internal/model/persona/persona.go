package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed aero.yaml
var defaultPersona []byte

// DefaultID identifies the built-in companion.
const DefaultID = "aero"

// Persona captures the character the relays speak as.
type Persona struct {
	ID              string       `yaml:"id" json:"id"`
	Name            string       `yaml:"name" json:"name"`
	Greeting        string       `yaml:"greeting" json:"greeting"`
	FallbackThought string       `yaml:"fallbackThought" json:"-"`
	SystemPrompt    string       `yaml:"system" json:"-"`
	Mood            PromptConfig `yaml:"mood" json:"-"`
	Thought         PromptConfig `yaml:"thought" json:"-"`
}

// PromptConfig is a single-shot prompt over a rendered transcript. Prompt is an
// FString template; {conversation} receives the transcript.
type PromptConfig struct {
	UserLabel      string `yaml:"userLabel"`
	AssistantLabel string `yaml:"assistantLabel"`
	Prompt         string `yaml:"prompt"`
}

// Seed returns the built-in persona set.
func Seed() []Persona {
	p, err := Parse(defaultPersona)
	if err != nil {
		panic(fmt.Sprintf("embedded persona is invalid: %v", err))
	}
	return []Persona{p}
}

// LoadFile reads a persona definition from a YAML file.
func LoadFile(path string) (Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML persona and fills speaker labels left empty.
func Parse(raw []byte) (Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Persona{}, fmt.Errorf("decode persona: %w", err)
	}

	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return Persona{}, fmt.Errorf("persona id is required")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return Persona{}, fmt.Errorf("persona %s: system prompt is required", p.ID)
	}
	if !strings.Contains(p.Mood.Prompt, "{conversation}") || !strings.Contains(p.Thought.Prompt, "{conversation}") {
		return Persona{}, fmt.Errorf("persona %s: mood and thought prompts need a {conversation} placeholder", p.ID)
	}
	if p.Name == "" {
		p.Name = p.ID
	}
	p.Mood.fillLabels(p.Name)
	p.Thought.fillLabels(p.Name)
	return p, nil
}

func (c *PromptConfig) fillLabels(name string) {
	if c.UserLabel == "" {
		c.UserLabel = "User"
	}
	if c.AssistantLabel == "" {
		c.AssistantLabel = name
	}
}
