package service

import (
	"context"
	"strings"
	"sync"

	"github.com/menuqr/tablechat/internal/llm"
	"github.com/menuqr/tablechat/internal/model"
)

// fakeLLM replays fixed fragments for both completion modes.
type fakeLLM struct {
	mu        sync.Mutex
	fragments []string
	err       error
	calls     int
	lastReq   *llm.CompletionRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: strings.Join(f.fragments, ""), Model: req.Model}, nil
}

func (f *fakeLLM) CompleteStream(_ context.Context, req *llm.CompletionRequest, cb llm.StreamCallback) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	fragments, err := f.fragments, f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	for i, frag := range fragments {
		if err := cb(frag, i); err != nil {
			return nil, err
		}
	}
	return &llm.CompletionResponse{Content: strings.Join(fragments, ""), Model: req.Model}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type captureRecorder struct {
	mu      sync.Mutex
	records []model.TranscriptRecord
}

func (c *captureRecorder) Record(records ...model.TranscriptRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
}

// memoryStore is an in-memory TranscriptStore.
type memoryStore struct {
	mu      sync.Mutex
	records []model.TranscriptRecord
	err     error
}

func (m *memoryStore) Append(_ context.Context, rec *model.TranscriptRecord) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	rec.Sequence = uint64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return rec.Sequence, nil
}

func (m *memoryStore) List(_ context.Context, hotelID, uid string, after uint64, limit int) ([]model.TranscriptRecord, uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TranscriptRecord
	var last uint64
	for _, r := range m.records {
		if r.Sequence <= after || r.HotelID != hotelID || (uid != "" && r.UID != uid) {
			continue
		}
		if len(out) == limit {
			return out, last, true, nil
		}
		out = append(out, r)
		last = r.Sequence
	}
	return out, last, false, nil
}

func (m *memoryStore) snapshot() []model.TranscriptRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TranscriptRecord(nil), m.records...)
}
