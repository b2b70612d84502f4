package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/llm"
	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/pkg/logger"
	"github.com/menuqr/tablechat/pkg/metrics"
)

// Reply modes, used as metric and transcript labels.
const (
	ModeBuffered = "buffered"
	ModeStream   = "stream"
)

// Exchange is one guest utterance plus who sent it and from where.
type Exchange struct {
	UID     string
	HotelID string
	TableID string
	Message string
}

// Recorder receives completed exchanges for the transcript log.
type Recorder interface {
	Record(records ...model.TranscriptRecord)
}

// NopRecorder discards records.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(...model.TranscriptRecord) {}

// ChatOptions configures the provider call.
type ChatOptions struct {
	Model     string
	MaxTokens int
}

// ChatService relays a single guest utterance to the LLM provider.
type ChatService struct {
	client   llm.Client
	opts     ChatOptions
	recorder Recorder
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewChatService creates a chat service. A nil client means the provider
// credential is missing; every non-blank exchange then yields Unconfigured.
func NewChatService(client llm.Client, opts ChatOptions, recorder Recorder, log *logger.Logger) *ChatService {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &ChatService{
		client:   client,
		opts:     opts,
		recorder: recorder,
		logger:   log,
		tracer:   otel.Tracer("github.com/menuqr/tablechat/internal/service"),
	}
}

// Configured reports whether a provider is available.
func (s *ChatService) Configured() bool {
	return s.client != nil
}

// precheck handles the outcomes that never reach the provider.
func (s *ChatService) precheck(ex Exchange, mode string) Outcome {
	if strings.TrimSpace(ex.Message) == "" {
		metrics.RecordReply(mode, Prompt{}.Label())
		return Prompt{}
	}
	if s.client == nil {
		s.logger.Error("chat provider not configured",
			zap.Bool("api_key_present", false),
			zap.String("mode", mode),
		)
		metrics.RecordReply(mode, Unconfigured{}.Label())
		return Unconfigured{}
	}
	return nil
}

func (s *ChatService) request(ex Exchange) *llm.CompletionRequest {
	return &llm.CompletionRequest{
		Model:     s.opts.Model,
		System:    model.SystemPrompt,
		Messages:  []llm.ChatMessage{{Role: llm.RoleUser, Content: ex.Message}},
		MaxTokens: s.opts.MaxTokens,
	}
}

// Reply waits for the full completion.
func (s *ChatService) Reply(ctx context.Context, ex Exchange) Outcome {
	if o := s.precheck(ex, ModeBuffered); o != nil {
		return o
	}

	ctx, span := s.startSpan(ctx, ex, ModeBuffered)
	defer span.End()

	start := time.Now()
	resp, err := s.client.Complete(ctx, s.request(ex))
	if err != nil {
		return s.failed(ctx, span, ex, ModeBuffered, start, err)
	}

	metrics.RecordLLMCall(resp.Model, ModeBuffered, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return s.completed(span, ex, ModeBuffered, outcomeFor(resp.Content))
}

// Stream forwards fragments to onChunk in provider order. If the provider
// finishes without text, onChunk is not called and Empty is returned. An
// error from onChunk aborts the provider stream. Line breaks in fragments
// are normalized the same way Reply normalizes the full text.
func (s *ChatService) Stream(ctx context.Context, ex Exchange, onChunk func(chunk string) error) Outcome {
	if o := s.precheck(ex, ModeStream); o != nil {
		return o
	}

	ctx, span := s.startSpan(ctx, ex, ModeStream)
	defer span.End()

	start := time.Now()
	var nl newlineNormalizer
	resp, err := s.client.CompleteStream(ctx, s.request(ex), func(token string, _ int) error {
		if chunk := nl.next(token); chunk != "" {
			return onChunk(chunk)
		}
		return nil
	})
	if err != nil {
		return s.failed(ctx, span, ex, ModeStream, start, err)
	}

	metrics.RecordLLMCall(resp.Model, ModeStream, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return s.completed(span, ex, ModeStream, outcomeFor(resp.Content))
}

func (s *ChatService) startSpan(ctx context.Context, ex Exchange, mode string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "chat."+mode, trace.WithAttributes(
		attribute.String("chat.provider", s.client.Name()),
		attribute.String("chat.model", s.opts.Model),
		attribute.String("chat.hotel_id", ex.HotelID),
		attribute.Int("chat.message_length", len(ex.Message)),
	))
}

func (s *ChatService) failed(ctx context.Context, span trace.Span, ex Exchange, mode string, start time.Time, err error) Outcome {
	span.RecordError(err)
	span.SetStatus(codes.Error, "provider call failed")
	metrics.RecordLLMCall(s.opts.Model, mode, "error", time.Since(start).Seconds(), 0, 0)
	metrics.RecordReply(mode, ProviderError{}.Label())

	fields := []zap.Field{
		zap.Error(err),
		zap.String("provider", s.client.Name()),
		zap.String("mode", mode),
		zap.String("uid", ex.UID),
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		s.logger.Info("chat aborted by client", fields...)
	} else {
		s.logger.Error("chat provider call failed", fields...)
	}
	return ProviderError{Err: err}
}

func (s *ChatService) completed(span trace.Span, ex Exchange, mode string, o Outcome) Outcome {
	span.SetAttributes(attribute.String("chat.outcome", o.Label()))
	metrics.RecordReply(mode, o.Label())

	// The log is keyed by anonymous identity; callers without one are not recorded.
	if ex.UID == "" {
		return o
	}

	now := time.Now().UTC()
	s.recorder.Record(
		model.TranscriptRecord{
			ID:        uuid.NewString(),
			UID:       ex.UID,
			HotelID:   ex.HotelID,
			TableID:   ex.TableID,
			Sender:    model.SenderUser,
			Text:      ex.Message,
			Mode:      mode,
			CreatedAt: now,
		},
		model.TranscriptRecord{
			ID:        uuid.NewString(),
			UID:       ex.UID,
			HotelID:   ex.HotelID,
			TableID:   ex.TableID,
			Sender:    model.SenderAssistant,
			Text:      o.Reply(),
			Mode:      mode,
			CreatedAt: now,
		},
	)
	return o
}
