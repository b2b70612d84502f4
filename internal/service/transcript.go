package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/pkg/logger"
	"github.com/menuqr/tablechat/pkg/metrics"
)

// ErrTranscriptsDisabled is returned by List when no store is configured.
var ErrTranscriptsDisabled = errors.New("transcripts are disabled")

// TranscriptStore is the durable side of the transcript log.
type TranscriptStore interface {
	Append(ctx context.Context, rec *model.TranscriptRecord) (uint64, error)
	List(ctx context.Context, hotelID, uid string, afterSequence uint64, limit int) ([]model.TranscriptRecord, uint64, bool, error)
}

// TranscriptService is a write-behind log of completed exchanges. Record
// never blocks the chat path: records are queued and written by a single
// background worker, in queue order. When the queue is full, records are
// dropped and counted.
type TranscriptService struct {
	store  TranscriptStore
	logger *logger.Logger

	queue     chan model.TranscriptRecord
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewTranscriptService starts the background writer. store may be nil, in
// which case records are discarded and List returns ErrTranscriptsDisabled.
func NewTranscriptService(store TranscriptStore, buffer int, log *logger.Logger) *TranscriptService {
	if buffer <= 0 {
		buffer = 256
	}
	s := &TranscriptService{
		store:  store,
		logger: log,
		queue:  make(chan model.TranscriptRecord, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Enabled reports whether records are persisted.
func (s *TranscriptService) Enabled() bool {
	return s.store != nil
}

// Record enqueues records for persistence.
func (s *TranscriptService) Record(records ...model.TranscriptRecord) {
	if s.store == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	for _, rec := range records {
		select {
		case s.queue <- rec:
		default:
			metrics.TranscriptPublishTotal.WithLabelValues("dropped").Inc()
			s.logger.Warn("transcript queue full, record dropped",
				zap.String("uid", rec.UID),
				zap.String("sender", string(rec.Sender)),
			)
		}
	}
}

func (s *TranscriptService) run() {
	defer close(s.done)

	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		seq, err := s.store.Append(ctx, &rec)
		cancel()

		if err != nil {
			metrics.TranscriptPublishTotal.WithLabelValues("error").Inc()
			s.logger.Error("failed to append transcript record",
				zap.Error(err),
				zap.String("uid", rec.UID),
				zap.String("hotel_id", rec.HotelID),
			)
			continue
		}

		metrics.TranscriptPublishTotal.WithLabelValues("ok").Inc()
		s.logger.Debug("transcript record appended",
			zap.String("uid", rec.UID),
			zap.Uint64("sequence", seq),
		)
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (s *TranscriptService) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
	})
}

// List returns a hotel's recorded messages, optionally for one guest.
func (s *TranscriptService) List(ctx context.Context, hotelID, uid string, afterSequence uint64, limit int) (*model.ListTranscriptResponse, error) {
	if s.store == nil {
		return nil, ErrTranscriptsDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	records, lastSeq, hasMore, err := s.store.List(ctx, hotelID, uid, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	if records == nil {
		records = []model.TranscriptRecord{}
	}

	return &model.ListTranscriptResponse{
		Records:      records,
		HasMore:      hasMore,
		LastSequence: lastSeq,
	}, nil
}
