package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/aero-pet/companion/internal/companion"
	"github.com/aero-pet/companion/internal/config"
	"github.com/aero-pet/companion/internal/logging"
	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/mood"
)

const usage = `Talk to Aero. Commands:
  /image <url> [text]  attach an image URL or data URI
  /mood                show the current mood
  /quit                leave`

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("AERO_SERVER", "http://localhost:8080"), "relay server base URL")
	logLevel := flag.String("log-level", "warn", "log level for diagnostics on stderr")
	quiet := flag.Bool("no-idle", false, "disable spontaneous messages")
	flag.Parse()

	if _, err := logging.InitWriter(config.LogConfig{Level: *logLevel, Format: "text", File: os.Getenv("LOG_FILE")}, os.Stderr); err != nil {
		slog.Warn("log file unavailable", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	client := companion.NewClient(*server, &http.Client{}, sessionID)
	view := &terminalView{out: os.Stdout, mood: mood.Neutral}

	session := companion.NewSession(client, nil, companion.Options{
		OnChange: view.render,
		OnNotice: view.notice,
		Logger:   slog.Default().With(slog.String("session", sessionID)),
	})
	defer session.Close()

	fmt.Println(usage)
	if !*quiet {
		session.Start()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, session, view, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, session *companion.Session, view *terminalView, line string) bool {
	text, imageURL := line, ""
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/mood":
		view.printf("[Aero is feeling %s]\n", mood.Title(session.Snapshot().Mood))
		return false
	case strings.HasPrefix(line, "/image "):
		fields := strings.SplitN(strings.TrimSpace(strings.TrimPrefix(line, "/image ")), " ", 2)
		imageURL = fields[0]
		text = ""
		if len(fields) == 2 {
			text = fields[1]
		}
	}

	err := session.Send(ctx, text, imageURL)
	switch {
	case errors.Is(err, companion.ErrBusy):
		view.printf("[still waiting for the last reply]\n")
	case err != nil:
		slog.Debug("send failed", slog.Any("error", err))
	}
	return false
}

// terminalView prints the transcript incrementally from snapshots.
type terminalView struct {
	mu        sync.Mutex
	out       *os.File
	printed   int
	streamed  int
	streaming bool
	mood      mood.Label
}

func (v *terminalView) render(snap companion.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(snap.Pending) > v.streamed {
		if !v.streaming {
			fmt.Fprint(v.out, "Aero: ")
			v.streaming = true
		}
		fmt.Fprint(v.out, snap.Pending[v.streamed:])
		v.streamed = len(snap.Pending)
	}

	if len(snap.Transcript) < v.printed {
		// rolled back
		v.printed = len(snap.Transcript)
	}
	for _, msg := range snap.Transcript[v.printed:] {
		switch {
		case msg.Role == chat.RoleUser, v.streaming:
		case msg.Spontaneous:
			fmt.Fprintf(v.out, "Aero (unprompted): %s\n", msg.Content)
		default:
			fmt.Fprintf(v.out, "Aero: %s\n", msg.Content)
		}
	}
	v.printed = len(snap.Transcript)

	if snap.Phase == companion.PhaseIdle {
		if v.streaming {
			fmt.Fprintln(v.out)
			v.streaming = false
		}
		v.streamed = 0
	}

	if snap.Mood != v.mood {
		v.mood = snap.Mood
		fmt.Fprintf(v.out, "[Aero feels %s]\n", mood.Title(snap.Mood))
	}
}

func (v *terminalView) notice(msg string) {
	v.printf("\n[%s]\n", msg)
}

func (v *terminalView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
