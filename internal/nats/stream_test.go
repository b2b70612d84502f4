package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/menuqr/tablechat/internal/model"
)

func TestRecordSubject(t *testing.T) {
	rec := &model.TranscriptRecord{UID: "0b0c3f7e-1111-4a2b-9c3d-000000000001", HotelID: "grand.plaza *", Sender: model.SenderUser}
	assert.Equal(t, "chat.grand_plaza__.0b0c3f7e-1111-4a2b-9c3d-000000000001.user", RecordSubject(rec))

	rec = &model.TranscriptRecord{UID: "u1", Sender: model.SenderAssistant}
	assert.Equal(t, "chat._.u1.assistant", RecordSubject(rec))
}

func TestTranscriptFilter(t *testing.T) {
	assert.Equal(t, "chat.h1.>", TranscriptFilter("h1", ""))
	assert.Equal(t, "chat.h1.u1.>", TranscriptFilter("h1", "u1"))
	assert.Equal(t, "chat._.>", TranscriptFilter("", ""))
}
