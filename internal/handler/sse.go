package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/menuqr/tablechat/pkg/metrics"
)

// sseWriter commits the event-stream headers on the first frame, so a
// handler can still answer with a plain JSON error until then.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	s.w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
}

// close balances the connection gauge.
func (s *sseWriter) close() {
	if s.started {
		metrics.DecrementSSEConnections()
	}
}

// data writes one `data:` frame.
func (s *sseWriter) data(text string) error {
	return s.frame("", text)
}

// event writes one named frame.
func (s *sseWriter) event(name, text string) error {
	return s.frame(name, text)
}

// frame writes text as one SSE event. Line breaks inside text become
// separate data lines, which a reader rejoins with "\n".
func (s *sseWriter) frame(event, text string) error {
	s.start()

	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
