package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aero-pet/companion/internal/config"
	"github.com/aero-pet/companion/internal/model/persona"
	aiService "github.com/aero-pet/companion/internal/service/ai"
	"github.com/aero-pet/companion/internal/service/ai/aitest"
	moodService "github.com/aero-pet/companion/internal/service/mood"
	thoughtService "github.com/aero-pet/companion/internal/service/thought"
)

func setupRouter(t *testing.T, fake *aitest.ChatModel, credentialed bool) http.Handler {
	t.Helper()
	ctx := context.Background()
	store := persona.NewMemoryStore(persona.Seed())
	p := persona.Default(store)

	aiSvc := aiService.NewServiceWithModel(fake, store, config.AIConfig{ChatModel: "chat"})
	moodSvc, err := moodService.NewService(ctx, fake, p, moodService.Config{Credentialed: credentialed, Model: "small"})
	if err != nil {
		t.Fatalf("mood NewService err: %v", err)
	}
	thoughtSvc, err := thoughtService.NewService(ctx, fake, p, "small")
	if err != nil {
		t.Fatalf("thought NewService err: %v", err)
	}
	return NewRouter(store, aiSvc, moodSvc, thoughtSvc, "*")
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	return out
}

func TestMoodEndpoint(t *testing.T) {
	r := setupRouter(t, &aitest.ChatModel{Reply: "Playful."}, true)

	resp := post(r, "/api/mood", `{"messages":[{"role":"user","content":"tag, you're it"}]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := decode(t, resp)["mood"]; got != "playful" {
		t.Fatalf("expected playful, got %v", got)
	}
}

func TestMoodEndpointWithoutCredential(t *testing.T) {
	fake := &aitest.ChatModel{Reply: "happy"}
	r := setupRouter(t, fake, false)

	resp := post(r, "/api/mood", `{"messages":[{"role":"user","content":"I love it"}]}`)
	if got := decode(t, resp)["mood"]; got != "neutral" {
		t.Fatalf("expected neutral, got %v", got)
	}
	if fake.Calls() != 0 {
		t.Fatal("mood must not call upstream without a credential")
	}
}

func TestMoodEndpointMalformedBody(t *testing.T) {
	r := setupRouter(t, &aitest.ChatModel{}, true)

	resp := post(r, "/api/mood", `not json`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := decode(t, resp)["error"]; got != "Failed to determine mood." {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestThinkEndpointGreetingWithoutUpstream(t *testing.T) {
	fake := &aitest.ChatModel{Reply: "unused"}
	r := setupRouter(t, fake, true)

	resp := post(r, "/api/think", `{"messages":[]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := decode(t, resp)["thought"]; got != "Hey I'm Aero, how are you?" {
		t.Fatalf("unexpected thought %v", got)
	}
	if fake.Calls() != 0 {
		t.Fatal("greeting must not call upstream")
	}
}

func TestThinkEndpointFailure(t *testing.T) {
	r := setupRouter(t, &aitest.ChatModel{Err: context.DeadlineExceeded}, true)

	resp := post(r, "/api/think", `{"messages":[{"role":"user","content":"hi"}]}`)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := decode(t, resp)["error"]; got != "Failed to generate thought." {
		t.Fatalf("unexpected error %v", got)
	}
}

func TestChatEndpointStreams(t *testing.T) {
	r := setupRouter(t, &aitest.ChatModel{Chunks: []string{"a", "b"}}, true)

	resp := post(r, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	want := "data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\"}\n\n"
	if resp.Body.String() != want {
		t.Fatalf("unexpected stream %q", resp.Body.String())
	}
}

func TestPersonaAndHealth(t *testing.T) {
	r := setupRouter(t, &aitest.ChatModel{}, true)

	req := httptest.NewRequest(http.MethodGet, "/api/persona", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	body := decode(t, resp)
	if body["name"] != "Aero" {
		t.Fatalf("unexpected persona %v", body)
	}
	if moods, ok := body["moods"].([]any); !ok || len(moods) != 8 {
		t.Fatalf("expected 8 moods, got %v", body["moods"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("health returned %d", resp.Code)
	}
}

func TestUnavailableServices(t *testing.T) {
	r := NewRouter(persona.NewMemoryStore(persona.Seed()), nil, nil, nil, "*")

	for _, path := range []string{"/api/chat", "/api/mood", "/api/think"} {
		if resp := post(r, path, `{"messages":[]}`); resp.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, resp.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	r := setupRouter(t, &aitest.ChatModel{}, true)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected CORS headers, got %v", resp.Header())
	}
}
