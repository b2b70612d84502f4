package model

import (
	"time"
)

// TranscriptRecord is one chat message as stored in the transcript log.
type TranscriptRecord struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	HotelID   string    `json:"hotel_id,omitempty"`
	TableID   string    `json:"table_id,omitempty"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`

	// JetStream Metadata (populated on read)
	Sequence uint64 `json:"sequence,omitempty"`
}

// ListTranscriptResponse is the response for listing a guest's transcript.
type ListTranscriptResponse struct {
	Records      []TranscriptRecord `json:"records"`
	HasMore      bool               `json:"has_more"`
	LastSequence uint64             `json:"last_sequence"`
}
