package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/pkg/logger"
)

// ErrEmptyMessage is returned by Submit for blank input; nothing is sent.
var ErrEmptyMessage = errors.New("chatclient: message is empty")

// ReplyUnreachable is appended locally when the gateway cannot be reached.
const ReplyUnreachable = "Unable to reach the assistant. Please check your connection."

// State is the phase of the session's current turn.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting_reply"
	StateStreaming     State = "streaming"
)

// Gateway is the part of Client a Session needs.
type Gateway interface {
	Chat(ctx context.Context, message string) (string, error)
	ChatStream(ctx context.Context, message string, onChunk func(chunk string)) error
}

// Observer is told about every transcript or state change. It receives a
// copy of the transcript and is never called concurrently with itself.
type Observer func(messages []model.ChatMessage, state State)

// Session is one guest's conversation. Submissions run one at a time in
// arrival order; a submission's user message is appended when its turn
// starts, so the transcript alternates user and assistant messages.
type Session struct {
	gateway  Gateway
	stream   bool
	store    Store
	observer Observer
	now      func() time.Time
	logger   *logger.Logger

	// turn holds a token while a submission is in flight.
	turn chan struct{}

	mu       sync.Mutex
	messages []model.ChatMessage
	state    State
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStreaming selects streaming replies.
func WithStreaming(stream bool) SessionOption {
	return func(s *Session) {
		s.stream = stream
	}
}

// WithStore persists the transcript so a restarted session resumes it.
func WithStore(store Store) SessionOption {
	return func(s *Session) {
		s.store = store
	}
}

// WithObserver registers the change observer.
func WithObserver(fn Observer) SessionOption {
	return func(s *Session) {
		s.observer = fn
	}
}

// WithLogger sets the logger for persistence failures.
func WithLogger(log *logger.Logger) SessionOption {
	return func(s *Session) {
		s.logger = log
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession creates an idle session, restoring the stored transcript if any.
func NewSession(gw Gateway, opts ...SessionOption) (*Session, error) {
	s := &Session{
		gateway: gw,
		now:     time.Now,
		logger:  logger.Nop(),
		turn:    make(chan struct{}, 1),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store != nil {
		messages, err := s.store.Load()
		if err != nil {
			return nil, err
		}
		s.messages = messages
	}
	return s, nil
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Submit sends text and appends the exchange to the transcript. Blank text
// returns ErrEmptyMessage. If ctx ends while an earlier submission is still
// running, ctx's error is returned and nothing is appended. Once the turn
// starts, every failure is absorbed into the transcript as an assistant
// message and Submit returns nil.
func (s *Session) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.update(func() {
		s.appendLocked(model.SenderUser, text)
		s.state = StateAwaitingReply
	})
	s.persist()

	if s.stream {
		s.streamReply(ctx, text)
	} else {
		s.bufferedReply(ctx, text)
	}

	s.update(func() {
		s.state = StateIdle
	})
	s.persist()
	return nil
}

func (s *Session) bufferedReply(ctx context.Context, text string) {
	reply, err := s.gateway.Chat(ctx, text)
	if err != nil {
		reply = ReplyUnreachable
	}
	s.update(func() {
		s.appendLocked(model.SenderAssistant, reply)
	})
}

func (s *Session) streamReply(ctx context.Context, text string) {
	started := false
	err := s.gateway.ChatStream(ctx, text, func(chunk string) {
		s.update(func() {
			if !started {
				started = true
				s.state = StateStreaming
				s.appendLocked(model.SenderAssistant, "")
			}
			s.messages[len(s.messages)-1].Text += chunk
		})
	})
	if err == nil {
		return
	}

	failure := ReplyUnreachable
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		failure = serverErr.Reply
	}

	s.update(func() {
		if !started {
			s.appendLocked(model.SenderAssistant, failure)
			return
		}
		// Keep the partial reply and add the failure to the same message.
		last := &s.messages[len(s.messages)-1]
		if last.Text != "" {
			last.Text += "\n"
		}
		last.Text += failure
	})
}

// Clear empties the transcript and its store. It waits for an in-flight
// submission to finish.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.update(func() {
		s.messages = nil
	})
	if s.store != nil {
		return s.store.Clear()
	}
	return nil
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.turn
}

// update applies fn under the lock and then notifies the observer. Callers
// hold the turn, which serializes observer calls.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	messages, state := s.snapshot(), s.state
	s.mu.Unlock()

	if s.observer != nil {
		s.observer(messages, state)
	}
}

// appendLocked adds a message stamped no earlier than the previous one.
func (s *Session) appendLocked(sender model.Sender, text string) {
	ts := s.now()
	if n := len(s.messages); n > 0 && s.messages[n-1].Timestamp != nil && ts.Before(*s.messages[n-1].Timestamp) {
		ts = *s.messages[n-1].Timestamp
	}
	s.messages = append(s.messages, model.ChatMessage{
		Sender:    sender,
		Text:      text,
		Timestamp: &ts,
	})
}

func (s *Session) snapshot() []model.ChatMessage {
	out := make([]model.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// persist saves the transcript; failures only cost reload resilience.
func (s *Session) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.Messages()); err != nil {
		s.logger.Warn("failed to persist transcript", zap.Error(err))
	}
}
