package service

import (
	"net/http"
	"strings"

	"github.com/menuqr/tablechat/internal/model"
)

// Outcome is the result of one chat exchange. It is one of Prompt,
// Unconfigured, Success, Empty or ProviderError.
type Outcome interface {
	// Reply is the user-safe text for this outcome.
	Reply() string
	// Status is the HTTP status a buffered response carries.
	Status() int
	// Label names the outcome in logs and metrics.
	Label() string
}

// Prompt means the message was blank; the provider was not called.
type Prompt struct{}

// Unconfigured means no provider credential is configured.
type Unconfigured struct{}

// Success carries the provider's text.
type Success struct {
	Text string
}

// Empty means the provider answered with no text.
type Empty struct{}

// ProviderError means the provider call failed.
type ProviderError struct {
	Err error
}

func (Prompt) Reply() string        { return model.ReplyPromptForInput }
func (Unconfigured) Reply() string  { return model.ReplyNotConfigured }
func (o Success) Reply() string     { return o.Text }
func (Empty) Reply() string         { return model.ReplyEmpty }
func (ProviderError) Reply() string { return model.ReplyProviderError }

func (Prompt) Status() int        { return http.StatusOK }
func (Unconfigured) Status() int  { return http.StatusInternalServerError }
func (Success) Status() int       { return http.StatusOK }
func (Empty) Status() int         { return http.StatusOK }
func (ProviderError) Status() int { return http.StatusInternalServerError }

func (Prompt) Label() string        { return "prompt" }
func (Unconfigured) Label() string  { return "unconfigured" }
func (Success) Label() string       { return "success" }
func (Empty) Label() string         { return "empty" }
func (ProviderError) Label() string { return "provider_error" }

// outcomeFor maps provider text to Success or Empty.
func outcomeFor(text string) Outcome {
	if text == "" {
		return Empty{}
	}
	return Success{Text: normalizeNewlines(text)}
}

// normalizeNewlines rewrites CRLF and lone CR as LF.
func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// newlineNormalizer applies normalizeNewlines across fragment boundaries,
// so a CRLF split between two fragments yields a single LF.
type newlineNormalizer struct {
	pendingCR bool
}

func (n *newlineNormalizer) next(chunk string) string {
	if n.pendingCR {
		chunk = strings.TrimPrefix(chunk, "\n")
	}
	n.pendingCR = strings.HasSuffix(chunk, "\r")
	return normalizeNewlines(chunk)
}
