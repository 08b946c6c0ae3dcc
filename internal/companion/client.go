// Package companion is the client side of the pet: it owns the transcript,
// talks to the three relay endpoints and decides when the pet speaks on its own.
package companion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/mood"
)

// SessionHeader carries the client session id for server-side log correlation.
const SessionHeader = "X-Session-Id"

const maxEventLine = 1 << 20

// StatusError is a non-2xx answer from a relay endpoint.
type StatusError struct {
	Status  int
	Message string
	Type    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("relay returned %d (%s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
}

// Client calls the relay endpoints over plain HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessionID  string
}

// NewClient returns a client for the server at baseURL. A nil httpClient
// means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, sessionID string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		sessionID:  sessionID,
	}
}

// Chat streams a reply for messages, calling onFragment for every piece in
// arrival order, and returns the concatenated reply.
func (c *Client) Chat(ctx context.Context, messages []chat.Message, onFragment func(string)) (string, error) {
	resp, err := c.post(ctx, "/api/chat", messages)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxEventLine)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var fragment struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &fragment); err != nil {
			slog.Debug("skipping malformed stream chunk", slog.String("component", "companion"), slog.String("line", line))
			continue
		}
		if fragment.Text == "" {
			continue
		}
		reply.WriteString(fragment.Text)
		if onFragment != nil {
			onFragment(fragment.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return reply.String(), fmt.Errorf("read chat stream: %w", err)
	}
	return reply.String(), nil
}

// Mood asks the classifier for the current mood.
func (c *Client) Mood(ctx context.Context, messages []chat.Message) (mood.Label, error) {
	var out struct {
		Mood mood.Label `json:"mood"`
	}
	if err := c.postJSON(ctx, "/api/mood", messages, &out); err != nil {
		return "", err
	}
	return out.Mood, nil
}

// Think asks for a spontaneous remark.
func (c *Client) Think(ctx context.Context, messages []chat.Message) (string, error) {
	var out struct {
		Thought string `json:"thought"`
	}
	if err := c.postJSON(ctx, "/api/think", messages, &out); err != nil {
		return "", err
	}
	return out.Thought, nil
}

func (c *Client) postJSON(ctx context.Context, path string, messages []chat.Message, out any) error {
	resp, err := c.post(ctx, path, messages)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, messages []chat.Message) (*http.Response, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	body, err := json.Marshal(chat.Request{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.Header.Set(SessionHeader, c.sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return resp, nil
}

func readStatusError(resp *http.Response) error {
	statusErr := &StatusError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return statusErr
	}
	var body struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		statusErr.Message = body.Error
		statusErr.Type = body.Type
	}
	return statusErr
}
