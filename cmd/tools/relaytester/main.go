package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aero-pet/companion/internal/config"
	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/persona"
	"github.com/aero-pet/companion/internal/service/ai"
	moodservice "github.com/aero-pet/companion/internal/service/mood"
	"github.com/aero-pet/companion/internal/service/thought"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env loaded, using process environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	mode := flag.String("mode", "", "relay to exercise: chat, mood or think")
	transcriptPath := flag.String("transcript", "", "transcript file (.json, .yaml or .yml); empty means no messages")
	say := flag.String("say", "", "extra user message appended to the transcript")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	if *mode != "chat" && *mode != "mood" && *mode != "think" {
		flag.Usage()
		log.Fatal("pick a relay with -mode=chat, -mode=mood or -mode=think")
	}

	messages, err := loadTranscript(*transcriptPath)
	if err != nil {
		log.Fatalf("failed to read transcript: %v", err)
	}
	if strings.TrimSpace(*say) != "" {
		messages = append(messages, chat.Message{Role: chat.RoleUser, Content: *say})
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := persona.NewMemoryStore(persona.Seed())
	if cfg.Persona.File != "" {
		p, err := persona.LoadFile(cfg.Persona.File)
		if err != nil {
			log.Fatalf("failed to load persona file: %v", err)
		}
		store.Replace(p)
	}

	aiSvc, err := ai.NewService(ctx, store, cfg.AI)
	if err != nil {
		log.Fatalf("failed to create chat model: %v", err)
	}

	log.Printf("running %s: provider=%s messages=%d", *mode, cfg.AI.Provider, len(messages))

	switch *mode {
	case "chat":
		runChat(ctx, aiSvc, cfg, messages)
	case "mood":
		runMood(ctx, aiSvc, store, cfg, messages)
	case "think":
		runThink(ctx, aiSvc, store, cfg, messages)
	}
}

func runChat(ctx context.Context, svc *ai.Service, cfg *config.Config, messages []chat.Message) {
	if !cfg.AI.HasCredential() {
		log.Printf("[WARN] no API key configured for %s; the call will likely be rejected", cfg.AI.Provider)
	}
	stream, err := svc.StreamReply(ctx, messages)
	if err != nil {
		log.Fatalf("chat relay failed: %v", err)
	}
	defer stream.Close()

	start := time.Now()
	fragments := 0
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Println()
			log.Fatalf("stream interrupted after %d fragments: %v", fragments, err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		fragments++
		fmt.Print(chunk.Content)
	}
	fmt.Println()
	log.Printf("chat done: fragments=%d elapsed=%s", fragments, time.Since(start).Round(time.Millisecond))
}

func runMood(ctx context.Context, svc *ai.Service, store persona.Store, cfg *config.Config, messages []chat.Message) {
	moodSvc, err := moodservice.NewService(ctx, svc.GetChatModel(), persona.Default(store), moodservice.Config{
		Credentialed: cfg.AI.HasCredential(),
		Model:        cfg.AI.ClassifierModel,
	})
	if err != nil {
		log.Fatalf("failed to build mood classifier: %v", err)
	}
	log.Printf("mood: %s", moodSvc.Classify(ctx, messages))
}

func runThink(ctx context.Context, svc *ai.Service, store persona.Store, cfg *config.Config, messages []chat.Message) {
	thoughtSvc, err := thought.NewService(ctx, svc.GetChatModel(), persona.Default(store), cfg.AI.ClassifierModel)
	if err != nil {
		log.Fatalf("failed to build thought generator: %v", err)
	}
	text, err := thoughtSvc.Generate(ctx, messages)
	if err != nil {
		log.Fatalf("thought generation failed: %v", err)
	}
	log.Printf("thought: %s", text)
}

// loadTranscript accepts either a bare message list or a {messages: [...]}
// envelope, in JSON or YAML.
func loadTranscript(path string) ([]chat.Message, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	unmarshal := json.Unmarshal
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	}

	var envelope chat.Request
	if err := unmarshal(raw, &envelope); err == nil && len(envelope.Messages) > 0 {
		return envelope.Messages, nil
	}
	var list []chat.Message
	if err := unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return list, nil
}
