package chatclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuqr/tablechat/internal/handler"
	"github.com/menuqr/tablechat/internal/llm"
	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/internal/service"
	"github.com/menuqr/tablechat/pkg/logger"
)

// echoLLM answers "R:<message>", streamed as fragments split on spaces.
type echoLLM struct{}

func (echoLLM) Name() string { return "echo" }

func (echoLLM) reply(req *llm.CompletionRequest) string {
	return "R:" + req.Messages[len(req.Messages)-1].Content
}

func (e echoLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: e.reply(req), Model: req.Model}, nil
}

func (e echoLLM) CompleteStream(_ context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	text := e.reply(req)
	parts := strings.SplitAfter(text, " ")
	for i, p := range parts {
		if err := cb(p, i); err != nil {
			return nil, err
		}
	}
	return &llm.CompletionResponse{Content: text, Model: req.Model}, nil
}

// newGateway serves the real API. A nil client leaves it unconfigured.
func newGateway(t *testing.T, client llm.Client) (*httptest.Server, *int32) {
	t.Helper()
	log := logger.Nop()

	transcripts := service.NewTranscriptService(nil, 1, log)
	t.Cleanup(transcripts.Close)
	identity := service.NewIdentityService(time.Hour, false)
	chat := service.NewChatService(client, service.ChatOptions{Model: "test"}, transcripts, log)

	router := handler.NewRouter(handler.Routes{
		Identity:           handler.NewIdentityHandler(identity, log),
		Chat:               handler.NewChatHandler(chat, identity, service.ModeBuffered, log),
		Table:              handler.NewTableHandler(),
		Transcripts:        handler.NewTranscriptHandler(transcripts, log),
		Health:             handler.NewHealthHandler(chat.Configured(), nil),
		Logger:             log,
		JWTSecret:          "secret",
		CORSAllowedOrigins: []string{"*"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
	})

	var uidCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/uid" {
			atomic.AddInt32(&uidCalls, 1)
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &uidCalls
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := New(baseURL, opts...)
	require.NoError(t, err)
	return c
}

func texts(messages []model.ChatMessage) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = string(m.Sender) + ":" + m.Text
	}
	return out
}

func TestEnsureIdentityFetchesOnce(t *testing.T) {
	srv, uidCalls := newGateway(t, echoLLM{})
	cache := NewIdentityCache(filepath.Join(t.TempDir(), "state", "uid"))
	ctx := context.Background()

	first := newTestClient(t, srv.URL)
	uid, err := first.EnsureIdentity(ctx, cache)
	require.NoError(t, err)
	require.NotEmpty(t, uid)
	assert.EqualValues(t, 1, atomic.LoadInt32(uidCalls))

	// The jar replays the cookie, so the gateway keeps the identity.
	again, err := first.UID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uid, again)

	second := newTestClient(t, srv.URL)
	cached, err := second.EnsureIdentity(ctx, cache)
	require.NoError(t, err)
	assert.Equal(t, uid, cached)
	assert.EqualValues(t, 2, atomic.LoadInt32(uidCalls))

	fromGateway, err := second.UID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uid, fromGateway)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("not a url")
	assert.Error(t, err)
}

func TestSessionBufferedTranscript(t *testing.T) {
	srv, _ := newGateway(t, echoLLM{})
	s, err := NewSession(newTestClient(t, srv.URL))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, "M1"))
	require.NoError(t, s.Submit(ctx, "M2"))

	assert.Equal(t, []string{"user:M1", "assistant:R:M1", "user:M2", "assistant:R:M2"}, texts(s.Messages()))
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionStreamingAppendsToOneMessage(t *testing.T) {
	srv, _ := newGateway(t, echoLLM{})

	var mu sync.Mutex
	var states []State
	var partials []string
	s, err := NewSession(newTestClient(t, srv.URL, WithTable("h1", "t2")),
		WithStreaming(true),
		WithObserver(func(messages []model.ChatMessage, state State) {
			mu.Lock()
			defer mu.Unlock()
			states = append(states, state)
			if state == StateStreaming {
				partials = append(partials, messages[len(messages)-1].Text)
			}
		}),
	)
	require.NoError(t, err)

	require.NoError(t, s.Submit(context.Background(), "two words\nand a line"))

	assert.Equal(t, []string{"user:two words\nand a line", "assistant:R:two words\nand a line"}, texts(s.Messages()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StateAwaitingReply, states[0])
	assert.Equal(t, StateIdle, states[len(states)-1])
	assert.Equal(t, []string{"R:two ", "R:two words\nand ", "R:two words\nand a ", "R:two words\nand a line"}, partials)
}

func TestSessionStreamingEqualsBuffered(t *testing.T) {
	srv, _ := newGateway(t, echoLLM{})
	ctx := context.Background()

	buffered, err := NewSession(newTestClient(t, srv.URL))
	require.NoError(t, err)
	streamed, err := NewSession(newTestClient(t, srv.URL), WithStreaming(true))
	require.NoError(t, err)

	msg := "Recommend a dessert\n please"
	require.NoError(t, buffered.Submit(ctx, msg))
	require.NoError(t, streamed.Submit(ctx, msg))

	assert.Equal(t, texts(buffered.Messages()), texts(streamed.Messages()))
}

func TestChatStreamOutlivesHeaderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Slow ", "and ", "steady."} {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
			flusher.Flush()
			time.Sleep(100 * time.Millisecond)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithResponseHeaderTimeout(50*time.Millisecond))
	require.NoError(t, err)
	assert.Zero(t, c.http.Timeout)

	var got []string
	err = c.ChatStream(context.Background(), "hello", func(chunk string) {
		got = append(got, chunk)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Slow ", "and ", "steady."}, got)
}

func TestChatHeaderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(srv.URL, WithResponseHeaderTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "hello")
	assert.Error(t, err)
}

func TestSessionRejectsBlank(t *testing.T) {
	srv, _ := newGateway(t, echoLLM{})
	s, err := NewSession(newTestClient(t, srv.URL))
	require.NoError(t, err)

	assert.ErrorIs(t, s.Submit(context.Background(), " \t\n"), ErrEmptyMessage)
	assert.Empty(t, s.Messages())
}

func TestSessionUnreachableGateway(t *testing.T) {
	srv, _ := newGateway(t, echoLLM{})
	url := srv.URL
	srv.Close()

	for _, stream := range []bool{false, true} {
		s, err := NewSession(newTestClient(t, url), WithStreaming(stream))
		require.NoError(t, err)

		require.NoError(t, s.Submit(context.Background(), "hello"))
		assert.Equal(t, []string{"user:hello", "assistant:" + ReplyUnreachable}, texts(s.Messages()))
		assert.Equal(t, StateIdle, s.State())
	}
}

func TestSessionShowsServerReportedFailure(t *testing.T) {
	srv, _ := newGateway(t, nil)

	for _, stream := range []bool{false, true} {
		s, err := NewSession(newTestClient(t, srv.URL), WithStreaming(stream))
		require.NoError(t, err)

		require.NoError(t, s.Submit(context.Background(), "hello"))
		assert.Equal(t, []string{"user:hello", "assistant:" + model.ReplyNotConfigured}, texts(s.Messages()))
	}
}

// blockingGateway answers "R:<message>" once release is closed.
type blockingGateway struct {
	release chan struct{}
	active  int32
	overlap int32
}

func (g *blockingGateway) Chat(ctx context.Context, message string) (string, error) {
	if atomic.AddInt32(&g.active, 1) > 1 {
		atomic.StoreInt32(&g.overlap, 1)
	}
	defer atomic.AddInt32(&g.active, -1)

	select {
	case <-g.release:
		return "R:" + message, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *blockingGateway) ChatStream(ctx context.Context, message string, onChunk func(string)) error {
	reply, err := g.Chat(ctx, message)
	if err != nil {
		return err
	}
	onChunk(reply)
	return nil
}

func TestSessionSerializesConcurrentSubmissions(t *testing.T) {
	gw := &blockingGateway{release: make(chan struct{})}
	s, err := NewSession(gw)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, msg := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			assert.NoError(t, s.Submit(context.Background(), msg))
		}(msg)
	}

	require.Eventually(t, func() bool { return s.State() == StateAwaitingReply }, time.Second, time.Millisecond)
	close(gw.release)
	wg.Wait()

	messages := s.Messages()
	require.Len(t, messages, 6)
	for i := 0; i < len(messages); i += 2 {
		assert.Equal(t, model.SenderUser, messages[i].Sender)
		assert.Equal(t, model.SenderAssistant, messages[i+1].Sender)
		assert.Equal(t, "R:"+messages[i].Text, messages[i+1].Text)
	}
	assert.Zero(t, atomic.LoadInt32(&gw.overlap), "gateway calls overlapped")
}

func TestSessionQueuedSubmissionHonorsContext(t *testing.T) {
	gw := &blockingGateway{release: make(chan struct{})}
	s, err := NewSession(gw)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Submit(context.Background(), "first"))
	}()
	require.Eventually(t, func() bool { return s.State() == StateAwaitingReply }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Submit(ctx, "second"), context.DeadlineExceeded)

	close(gw.release)
	<-done
	assert.Equal(t, []string{"user:first", "assistant:R:first"}, texts(s.Messages()))
}

func TestSessionTimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second), base.Add(-time.Hour)}
	var i int
	clock := func() time.Time {
		tick := ticks[i%len(ticks)]
		i++
		return tick
	}

	gw := &blockingGateway{release: make(chan struct{})}
	close(gw.release)
	s, err := NewSession(gw, WithClock(clock))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, "one"))
	require.NoError(t, s.Submit(ctx, "two"))

	messages := s.Messages()
	require.Len(t, messages, 4)
	for j := 1; j < len(messages); j++ {
		assert.False(t, messages[j].Timestamp.Before(*messages[j-1].Timestamp), "message %d", j)
	}
}

func TestSessionRestoresAndClearsStore(t *testing.T) {
	gw := &blockingGateway{release: make(chan struct{})}
	close(gw.release)
	store := NewFileStore(filepath.Join(t.TempDir(), "transcript.json"))
	ctx := context.Background()

	s, err := NewSession(gw, WithStore(store))
	require.NoError(t, err)
	require.NoError(t, s.Submit(ctx, "hi"))

	restored, err := NewSession(gw, WithStore(store))
	require.NoError(t, err)
	assert.Equal(t, []string{"user:hi", "assistant:R:hi"}, texts(restored.Messages()))

	require.NoError(t, restored.Clear(ctx))
	assert.Empty(t, restored.Messages())

	empty, err := NewSession(gw, WithStore(store))
	require.NoError(t, err)
	assert.Empty(t, empty.Messages())
}

func TestReadEvents(t *testing.T) {
	body := ": keepalive\n\n" +
		"data: one\n\n" +
		"data: two\ndata: lines\n\n" +
		"data:no space\n\n" +
		"event: error\ndata: boom\n\n" +
		"data: trailing"

	type frame struct{ event, data string }
	var got []frame
	err := readEvents(strings.NewReader(body), func(event, data string) error {
		got = append(got, frame{event, data})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []frame{
		{"", "one"},
		{"", "two\nlines"},
		{"", "no space"},
		{"error", "boom"},
		{"", "trailing"},
	}, got)
}

func TestReadEventsStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := readEvents(strings.NewReader("data: a\n\ndata: b\n\n"), func(string, string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
