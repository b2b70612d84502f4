package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/menuqr/tablechat/internal/model"
	"github.com/menuqr/tablechat/pkg/logger"
)

const (
	// StreamName is the name of the transcript stream.
	StreamName = "TRANSCRIPTS"

	// SubjectPrefix is the prefix for all transcript subjects.
	SubjectPrefix = "chat"

	// noHotel stands in for the hotel token of untargeted chats.
	noHotel = "_"
)

// TranscriptLog appends and reads chat records on JetStream.
type TranscriptLog struct {
	conn *Connector
}

// NewTranscriptLog creates a transcript log whose connection is made on first use.
func NewTranscriptLog(cfg Config, log *logger.Logger) *TranscriptLog {
	return &TranscriptLog{conn: NewConnector(cfg, EnsureStream, log)}
}

// Close releases the underlying connection.
func (l *TranscriptLog) Close() {
	l.conn.Close()
}

// EnsureStream ensures the transcript stream exists.
func EnsureStream(ctx context.Context, c *Client) error {
	js := c.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Guest chat transcripts keyed by anonymous identity",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// token makes s safe to use as a single subject token.
func token(s string) string {
	if s == "" {
		return noHotel
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// RecordSubject returns the subject a record is published on.
func RecordSubject(rec *model.TranscriptRecord) string {
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, token(rec.HotelID), token(rec.UID), rec.Sender)
}

// TranscriptFilter returns the filter subject for a hotel, optionally narrowed to one guest.
func TranscriptFilter(hotelID, uid string) string {
	if uid == "" {
		return fmt.Sprintf("%s.%s.>", SubjectPrefix, token(hotelID))
	}
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, token(hotelID), token(uid))
}

// Append publishes a record and returns its stream sequence.
func (l *TranscriptLog) Append(ctx context.Context, rec *model.TranscriptRecord) (uint64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record: %w", err)
	}

	client, err := l.conn.Client(ctx)
	if err != nil {
		return 0, err
	}

	ack, err := client.JetStream().Publish(ctx, RecordSubject(rec), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish record: %w", err)
	}

	return ack.Sequence, nil
}

// List reads records matching the hotel/guest filter after a stream sequence.
func (l *TranscriptLog) List(ctx context.Context, hotelID, uid string, afterSequence uint64, limit int) ([]model.TranscriptRecord, uint64, bool, error) {
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject:     TranscriptFilter(hotelID, uid),
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverAllPolicy,
		InactiveThreshold: time.Minute,
	}
	if afterSequence > 0 {
		consumerConfig.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		consumerConfig.OptStartSeq = afterSequence + 1
	}

	client, err := l.conn.Client(ctx)
	if err != nil {
		return nil, 0, false, err
	}

	consumer, err := client.JetStream().CreateConsumer(ctx, StreamName, consumerConfig)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch records: %w", err)
	}

	var records []model.TranscriptRecord
	var lastSequence uint64

	for msg := range batch.Messages() {
		var rec model.TranscriptRecord
		if err := json.Unmarshal(msg.Data(), &rec); err != nil {
			continue
		}

		if meta, err := msg.Metadata(); err == nil {
			rec.Sequence = meta.Sequence.Stream
			lastSequence = meta.Sequence.Stream
		}

		records = append(records, rec)
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return records, lastSequence, len(records) == limit, nil
}

// Ping connects if needed and reports whether the connection is up.
func (l *TranscriptLog) Ping(ctx context.Context) error {
	if _, err := l.conn.Client(ctx); err != nil {
		return err
	}
	if !l.conn.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}
