package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aero-pet/companion/internal/model/chat"
	"github.com/aero-pet/companion/internal/model/mood"
)

const (
	DefaultMinIdle       = 15 * time.Second
	DefaultMaxIdle       = 30 * time.Second
	DefaultGreetingDelay = 2 * time.Second

	failureNotice = "Sorry, I couldn't get a reply. Please try again."
)

var (
	ErrEmptyMessage = errors.New("message has neither text nor image")
	ErrBusy         = errors.New("a message is already being sent")
	ErrClosed       = errors.New("session closed")
)

// Transport is what a Session needs from the relay. *Client implements it.
type Transport interface {
	Chat(ctx context.Context, messages []chat.Message, onFragment func(string)) (string, error)
	Mood(ctx context.Context, messages []chat.Message) (mood.Label, error)
	Think(ctx context.Context, messages []chat.Message) (string, error)
}

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// Options tunes a Session. Zero values take the defaults.
type Options struct {
	MinIdle       time.Duration
	MaxIdle       time.Duration
	GreetingDelay time.Duration

	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64

	// OnChange receives every state change. Calls are serialized.
	OnChange func(Snapshot)
	// OnNotice receives user-facing failure notices.
	OnNotice func(string)

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MinIdle <= 0 {
		o.MinIdle = DefaultMinIdle
	}
	if o.MaxIdle <= o.MinIdle {
		o.MaxIdle = o.MinIdle + (DefaultMaxIdle - DefaultMinIdle)
	}
	if o.GreetingDelay <= 0 {
		o.GreetingDelay = DefaultGreetingDelay
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Session holds one conversation with the pet. All methods are safe for
// concurrent use.
type Session struct {
	transport Transport
	opts      Options
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    Snapshot
	timer    Timer
	timerGen uint64
	moodSeq  uint64
	started  bool
	closed   bool

	notifyMu sync.Mutex
}

// NewSession creates a session seeded with transcript. The idle timer is not
// armed until Start.
func NewSession(transport Transport, transcript []chat.Message, opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	seed := make([]chat.Message, len(transcript))
	copy(seed, transcript)
	return &Session{
		transport: transport,
		opts:      opts,
		logger:    opts.Logger.With(slog.String("component", "companion")),
		ctx:       ctx,
		cancel:    cancel,
		state:     Snapshot{Transcript: seed, Mood: mood.Neutral},
	}
}

// Start arms the first timer: the greeting delay for an empty transcript, an
// idle delay otherwise.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	if len(s.state.Transcript) == 0 {
		s.armLocked(s.opts.GreetingDelay)
		return
	}
	s.rearmLocked()
}

// Close stops the timer, cancels background requests and waits for them.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send posts a user message and streams the reply into the transcript. On
// failure the transcript is restored to what it was before the call.
func (s *Session) Send(ctx context.Context, text, imageURL string) error {
	if strings.TrimSpace(text) == "" && imageURL == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Phase != PhaseIdle {
		s.mu.Unlock()
		return ErrBusy
	}
	before := s.state.Transcript
	s.applyLocked(submitted{message: chat.Message{Role: chat.RoleUser, Content: text, ImageURL: imageURL}})
	outgoing := s.state.Transcript
	s.mu.Unlock()
	s.publish()

	_, err := s.transport.Chat(ctx, outgoing, func(fragment string) {
		s.dispatch(fragmentReceived{text: fragment})
	})
	if err != nil {
		s.dispatch(sendFailed{rollback: before})
		s.notice(failureNotice)
		s.logger.Warn("chat request failed", slog.Any("error", err))
		return fmt.Errorf("send message: %w", err)
	}

	s.mu.Lock()
	prevLen := len(s.state.Transcript)
	s.applyLocked(replyCompleted{})
	appended := len(s.state.Transcript) > prevLen
	after := s.state.Transcript
	s.mu.Unlock()
	s.publish()

	if appended {
		s.refreshMood(after)
	}
	return nil
}

// Think asks for a spontaneous remark now, unless the session is busy.
// It reports whether a thought was appended.
func (s *Session) Think() bool {
	s.mu.Lock()
	if s.closed || s.state.Busy() {
		s.mu.Unlock()
		return false
	}
	s.applyLocked(thinkStarted{})
	transcript := s.state.Transcript
	s.mu.Unlock()
	s.publish()

	thought, err := s.transport.Think(s.ctx, transcript)
	thought = strings.TrimSpace(thought)
	if err != nil || thought == "" {
		if err != nil {
			s.logger.Debug("spontaneous thought failed", slog.Any("error", err))
		}
		s.dispatch(thinkFinished{})
		return false
	}

	s.mu.Lock()
	if s.closed || s.state.Phase != PhaseIdle {
		// a user exchange started meanwhile; the thought would land mid-exchange
		s.applyLocked(thinkFinished{})
		s.mu.Unlock()
		s.publish()
		return false
	}
	s.applyLocked(thoughtArrived{text: thought})
	after := s.state.Transcript
	s.mu.Unlock()
	s.publish()

	s.refreshMood(after)
	return true
}

func (s *Session) refreshMood(transcript []chat.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.moodSeq++
	seq := s.moodSeq
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		label, err := s.transport.Mood(s.ctx, transcript)
		if err != nil {
			s.logger.Debug("mood refresh failed", slog.Any("error", err))
			return
		}
		if !mood.Valid(string(label)) {
			s.logger.Debug("ignoring unknown mood", slog.String("mood", string(label)))
			return
		}

		s.mu.Lock()
		if seq != s.moodSeq || s.closed {
			s.mu.Unlock()
			return
		}
		s.applyLocked(moodChanged{label: label})
		s.mu.Unlock()
		s.publish()
	}()
}

func (s *Session) dispatch(e event) {
	s.mu.Lock()
	s.applyLocked(e)
	s.mu.Unlock()
	s.publish()
}

// applyLocked runs the reducer and re-arms the idle timer when the transcript
// or the busy flags changed.
func (s *Session) applyLocked(e event) {
	prev := s.state
	s.state = reduce(prev, e)
	if len(prev.Transcript) != len(s.state.Transcript) || prev.Busy() != s.state.Busy() {
		s.rearmLocked()
	}
}

func (s *Session) rearmLocked() {
	if !s.started || s.closed || s.state.Busy() {
		s.stopTimerLocked()
		return
	}
	s.armLocked(s.idleDelay())
}

func (s *Session) armLocked(d time.Duration) {
	s.stopTimerLocked()
	s.timerGen++
	gen := s.timerGen
	s.timer = s.opts.AfterFunc(d, func() { s.fire(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.timerGen || s.closed {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	// Think toggles the busy flag, and that re-arms the timer either way.
	s.Think()
}

// idleDelay is uniform in [MinIdle, MaxIdle).
func (s *Session) idleDelay() time.Duration {
	span := float64(s.opts.MaxIdle - s.opts.MinIdle)
	return s.opts.MinIdle + time.Duration(s.opts.Rand()*span)
}

func (s *Session) publish() {
	if s.opts.OnChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.opts.OnChange(s.Snapshot())
}

func (s *Session) notice(msg string) {
	if s.opts.OnNotice != nil {
		s.opts.OnNotice(msg)
	}
}
