package companion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/mood"
)

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// manualClock records scheduled callbacks and runs them only on demand.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) pending() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs t synchronously, even if it was stopped.
func (c *manualClock) fire(t *manualTimer) {
	c.mu.Lock()
	t.fired = true
	c.mu.Unlock()
	t.f()
}

func (c *manualClock) only(t *testing.T) *manualTimer {
	t.Helper()
	p := c.pending()
	if len(p) != 1 {
		t.Fatalf("expected exactly one pending timer, got %d", len(p))
	}
	return p[0]
}

type fakeTransport struct {
	mu        sync.Mutex
	chunks    []string
	chatErr   error
	chatGate  chan struct{}
	thought   string
	thinkErr  error
	thinkGate chan struct{}
	mood      mood.Label
	moodErr   error

	chatCalls  int
	thinkCalls int
	moodCalls  int
	thinkSeen  [][]chat.Message
	moodSeen   [][]chat.Message
}

func (f *fakeTransport) Chat(ctx context.Context, messages []chat.Message, onFragment func(string)) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	gate := f.chatGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.chatErr != nil {
		return "", f.chatErr
	}
	var reply string
	for _, c := range f.chunks {
		reply += c
		onFragment(c)
	}
	return reply, nil
}

func (f *fakeTransport) Mood(_ context.Context, messages []chat.Message) (mood.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moodCalls++
	f.moodSeen = append(f.moodSeen, messages)
	return f.mood, f.moodErr
}

func (f *fakeTransport) Think(_ context.Context, messages []chat.Message) (string, error) {
	f.mu.Lock()
	f.thinkCalls++
	f.thinkSeen = append(f.thinkSeen, messages)
	gate := f.thinkGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.thought, f.thinkErr
}

func (f *fakeTransport) counts() (chatCalls, thinkCalls, moodCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls, f.thinkCalls, f.moodCalls
}

func newTestSession(transport Transport, transcript []chat.Message, clock *manualClock, notices *[]string) *Session {
	return NewSession(transport, transcript, Options{
		AfterFunc: clock.AfterFunc,
		Rand:      func() float64 { return 0.5 },
		OnNotice: func(msg string) {
			if notices != nil {
				*notices = append(*notices, msg)
			}
		},
	})
}

func TestSendAppendsReplyAndRefreshesMood(t *testing.T) {
	transport := &fakeTransport{chunks: []string{"Hi ", "there!"}, mood: mood.Happy}
	var changes []Snapshot
	var mu sync.Mutex
	s := NewSession(transport, nil, Options{
		AfterFunc: (&manualClock{}).AfterFunc,
		OnChange: func(snap Snapshot) {
			mu.Lock()
			changes = append(changes, snap)
			mu.Unlock()
		},
	})

	if err := s.Send(context.Background(), "hello", ""); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	s.Close()

	snap := s.Snapshot()
	if len(snap.Transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap.Transcript))
	}
	if got := snap.Transcript[1]; got.Role != chat.RoleAssistant || got.Content != "Hi there!" || got.Spontaneous {
		t.Fatalf("unexpected reply %+v", got)
	}
	if snap.Phase != PhaseIdle || snap.Pending != "" {
		t.Fatalf("expected idle state, got %v pending %q", snap.Phase, snap.Pending)
	}
	if snap.Mood != mood.Happy {
		t.Fatalf("expected happy mood, got %q", snap.Mood)
	}
	if len(transport.moodSeen) != 1 || len(transport.moodSeen[0]) != 2 {
		t.Fatalf("mood should see the transcript right after the reply, got %v", transport.moodSeen)
	}

	mu.Lock()
	defer mu.Unlock()
	sawStreaming := false
	for _, c := range changes {
		if c.Phase == PhaseStreaming && c.Pending == "Hi " {
			sawStreaming = true
		}
	}
	if !sawStreaming {
		t.Fatalf("expected a streaming snapshot with the first fragment")
	}
}

func TestSendFailureRollsBack(t *testing.T) {
	initial := []chat.Message{
		{Role: chat.RoleUser, Content: "hey"},
		{Role: chat.RoleAssistant, Content: "hello!"},
	}
	transport := &fakeTransport{chatErr: errors.New("boom")}
	var notices []string
	s := newTestSession(transport, initial, &manualClock{}, &notices)
	defer s.Close()

	err := s.Send(context.Background(), "are you there?", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	snap := s.Snapshot()
	if len(snap.Transcript) != len(initial) {
		t.Fatalf("expected rollback to %d messages, got %d", len(initial), len(snap.Transcript))
	}
	for i := range initial {
		if snap.Transcript[i] != initial[i] {
			t.Fatalf("message %d changed: %+v", i, snap.Transcript[i])
		}
	}
	if len(notices) != 1 {
		t.Fatalf("expected one notice, got %v", notices)
	}
	if _, _, moodCalls := transport.counts(); moodCalls != 0 {
		t.Fatalf("mood should not refresh after failure")
	}
}

func TestSendBlankReplyAppendsNothing(t *testing.T) {
	transport := &fakeTransport{chunks: []string{"  "}}
	s := newTestSession(transport, nil, &manualClock{}, nil)

	if err := s.Send(context.Background(), "hello", ""); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	s.Close()

	if n := len(s.Snapshot().Transcript); n != 1 {
		t.Fatalf("expected only the user message, got %d", n)
	}
	if _, _, moodCalls := transport.counts(); moodCalls != 0 {
		t.Fatalf("mood should not refresh without a reply")
	}
}

func TestSendRejectsEmptyAndBusy(t *testing.T) {
	gate := make(chan struct{})
	transport := &fakeTransport{chunks: []string{"ok"}, chatGate: gate}
	s := newTestSession(transport, nil, &manualClock{}, nil)
	defer s.Close()

	if err := s.Send(context.Background(), "   ", ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "first", "") }()
	waitFor(t, func() bool { c, _, _ := transport.counts(); return c == 1 })

	if err := s.Send(context.Background(), "second", ""); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first Send err: %v", err)
	}
}

func TestSendAcceptsImageOnly(t *testing.T) {
	transport := &fakeTransport{chunks: []string{"nice picture"}}
	s := newTestSession(transport, nil, &manualClock{}, nil)
	defer s.Close()

	if err := s.Send(context.Background(), "", "data:image/png;base64,AAAA"); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if got := s.Snapshot().Transcript[0].ImageURL; got != "data:image/png;base64,AAAA" {
		t.Fatalf("image not kept: %q", got)
	}
}

func TestStartGreetsEmptyTranscript(t *testing.T) {
	clock := &manualClock{}
	transport := &fakeTransport{thought: "Hey I'm Aero, how are you?", mood: mood.Playful}
	s := newTestSession(transport, nil, clock, nil)
	s.Start()

	greet := clock.only(t)
	if greet.delay != DefaultGreetingDelay {
		t.Fatalf("expected greeting delay %v, got %v", DefaultGreetingDelay, greet.delay)
	}
	clock.fire(greet)

	snap := s.Snapshot()
	if len(snap.Transcript) != 1 || !snap.Transcript[0].Spontaneous || snap.Transcript[0].Role != chat.RoleAssistant {
		t.Fatalf("expected a spontaneous greeting, got %+v", snap.Transcript)
	}
	if len(transport.thinkSeen) != 1 || len(transport.thinkSeen[0]) != 0 {
		t.Fatalf("greeting should be requested with an empty transcript")
	}

	idle := clock.only(t)
	if idle.delay < DefaultMinIdle || idle.delay >= DefaultMaxIdle {
		t.Fatalf("idle delay %v out of range", idle.delay)
	}
	s.Close()
	if s.Snapshot().Mood != mood.Playful {
		t.Fatalf("mood should refresh after a spontaneous message")
	}
}

func TestStartWithHistoryArmsIdleTimer(t *testing.T) {
	clock := &manualClock{}
	s := newTestSession(&fakeTransport{}, hello, clock, nil)
	defer s.Close()
	s.Start()

	if d := clock.only(t).delay; d != DefaultMinIdle+(DefaultMaxIdle-DefaultMinIdle)/2 {
		t.Fatalf("unexpected idle delay %v", d)
	}
}

func TestIdleDelayBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.999999} {
		s := NewSession(&fakeTransport{}, nil, Options{Rand: func() float64 { return r }})
		d := s.idleDelay()
		if d < DefaultMinIdle || d >= DefaultMaxIdle {
			t.Fatalf("rand %v gave delay %v", r, d)
		}
		s.Close()
	}
}

func TestNoTimerWhileSending(t *testing.T) {
	clock := &manualClock{}
	gate := make(chan struct{})
	transport := &fakeTransport{chunks: []string{"sure"}, chatGate: gate, thought: "hmm"}
	s := newTestSession(transport, hello, clock, nil)
	defer s.Close()
	s.Start()
	stale := clock.only(t)

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "tell me a story", "") }()
	waitFor(t, func() bool { c, _, _ := transport.counts(); return c == 1 })

	if n := len(clock.pending()); n != 0 {
		t.Fatalf("expected no pending timer while sending, got %d", n)
	}
	// a callback that was already on its way must not start a thought
	clock.fire(stale)
	if _, thinkCalls, _ := transport.counts(); thinkCalls != 0 {
		t.Fatalf("spontaneous call issued while sending")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Send err: %v", err)
	}
	clock.only(t)
}

func TestThinkSkippedWhileThinking(t *testing.T) {
	clock := &manualClock{}
	gate := make(chan struct{})
	transport := &fakeTransport{thought: "I wonder about clouds.", thinkGate: gate}
	s := newTestSession(transport, hello, clock, nil)
	defer s.Close()
	s.Start()

	done := make(chan bool, 1)
	go func() { done <- s.Think() }()
	waitFor(t, func() bool { _, n, _ := transport.counts(); return n == 1 })

	if len(clock.pending()) != 0 {
		t.Fatalf("timer should be cancelled while thinking")
	}
	if s.Think() {
		t.Fatalf("second Think should be skipped")
	}
	close(gate)
	if !<-done {
		t.Fatalf("first Think should append")
	}
	if _, n, _ := transport.counts(); n != 1 {
		t.Fatalf("expected one think call, got %d", n)
	}
	clock.only(t)
}

func TestThoughtDiscardedWhenSendStarted(t *testing.T) {
	thinkGate := make(chan struct{})
	chatGate := make(chan struct{})
	transport := &fakeTransport{thought: "penny for your thoughts", thinkGate: thinkGate, chunks: []string{"ok"}, chatGate: chatGate}
	s := newTestSession(transport, hello, &manualClock{}, nil)
	defer s.Close()

	thinkDone := make(chan bool, 1)
	go func() { thinkDone <- s.Think() }()
	waitFor(t, func() bool { _, n, _ := transport.counts(); return n == 1 })

	sendDone := make(chan error, 1)
	go func() { sendDone <- s.Send(context.Background(), "wait", "") }()
	waitFor(t, func() bool { c, _, _ := transport.counts(); return c == 1 })

	close(thinkGate)
	if <-thinkDone {
		t.Fatalf("thought should be discarded during a send")
	}
	close(chatGate)
	if err := <-sendDone; err != nil {
		t.Fatalf("Send err: %v", err)
	}

	for _, m := range s.Snapshot().Transcript {
		if m.Spontaneous {
			t.Fatalf("unexpected spontaneous message %+v", m)
		}
	}
}

func TestFailedThoughtRearmsTimer(t *testing.T) {
	clock := &manualClock{}
	transport := &fakeTransport{thinkErr: errors.New("nope")}
	s := newTestSession(transport, hello, clock, nil)
	defer s.Close()
	s.Start()

	clock.fire(clock.only(t))
	if n := len(s.Snapshot().Transcript); n != 1 {
		t.Fatalf("failed thought must not change the transcript, got %d", n)
	}
	clock.only(t)
}

func TestMoodErrorsAreInvisible(t *testing.T) {
	transport := &fakeTransport{chunks: []string{"hi"}, moodErr: errors.New("down")}
	var notices []string
	s := newTestSession(transport, nil, &manualClock{}, &notices)
	if err := s.Send(context.Background(), "hello", ""); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	s.Close()

	if s.Snapshot().Mood != mood.Neutral {
		t.Fatalf("mood should stay neutral")
	}
	if len(notices) != 0 {
		t.Fatalf("mood failures must not notify, got %v", notices)
	}
}

func TestCloseStopsTimer(t *testing.T) {
	clock := &manualClock{}
	transport := &fakeTransport{thought: "hello?"}
	s := newTestSession(transport, hello, clock, nil)
	s.Start()
	timer := clock.only(t)
	s.Close()

	if len(clock.pending()) != 0 {
		t.Fatalf("timer should be stopped on close")
	}
	clock.fire(timer)
	if _, n, _ := transport.counts(); n != 0 {
		t.Fatalf("closed session must not think")
	}
	if err := s.Send(context.Background(), "hi", ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSendRollsBackAfterPartialReply(t *testing.T) {
	transport := &partialTransport{fragments: []string{"I was ", "say"}, err: errors.New("stream cut")}
	s := newTestSession(transport, hello, &manualClock{}, nil)
	defer s.Close()

	if err := s.Send(context.Background(), "go on", ""); err == nil {
		t.Fatal("expected error")
	}
	snap := s.Snapshot()
	if len(snap.Transcript) != 1 || snap.Transcript[0] != hello[0] || snap.Pending != "" {
		t.Fatalf("partial reply must not survive: %+v", snap)
	}
}

// partialTransport delivers fragments and then fails.
type partialTransport struct {
	fakeTransport
	fragments []string
	err       error
}

func (p *partialTransport) Chat(_ context.Context, _ []chat.Message, onFragment func(string)) (string, error) {
	var reply string
	for _, f := range p.fragments {
		reply += f
		onFragment(f)
	}
	return reply, p.err
}
