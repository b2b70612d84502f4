package middleware

import (
	"errors"
	"unicode/utf8"
)

// MaxMessageBytes bounds a single guest utterance.
const MaxMessageBytes = 8 * 1024

var (
	ErrMessageTooLong   = errors.New("message exceeds maximum length")
	ErrMessageNotUTF8   = errors.New("message must be valid UTF-8")
	ErrInvalidPathParam = errors.New("path parameter must be non-empty")
	ErrPathParamTooLong = errors.New("path parameter exceeds maximum length")
)

// ValidateBody checks the encoding of a raw request body. It must run before
// JSON decoding, which silently replaces invalid bytes with U+FFFD.
func ValidateBody(body []byte) error {
	if !utf8.Valid(body) {
		return ErrMessageNotUTF8
	}
	return nil
}

// ValidateMessage checks the size of a message. Blank messages are valid
// here; the chat service answers them with a prompt.
func ValidateMessage(message string) error {
	if len(message) > MaxMessageBytes {
		return ErrMessageTooLong
	}
	return nil
}

// ValidatePathParam checks a route identifier.
func ValidatePathParam(v string) error {
	if v == "" {
		return ErrInvalidPathParam
	}
	if len(v) > 128 {
		return ErrPathParamTooLong
	}
	return nil
}
