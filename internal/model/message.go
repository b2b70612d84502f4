// Package model defines data structures shared by the chat gateway and its clients.
package model

import (
	"time"
)

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ChatMessage is one entry of a transcript.
type ChatMessage struct {
	Sender    Sender     `json:"sender"`
	Text      string     `json:"text"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the buffered response body, also used for every error response.
type ChatReply struct {
	Reply string `json:"reply"`
}

// Fixed reply texts.
const (
	ReplyPromptForInput = "Please provide a message."
	ReplyEmpty          = "I'm sorry, I couldn't understand that."
	ReplyProviderError  = "An error occurred. Please try again later."
	ReplyNotConfigured  = "The assistant is not configured. Please try again later."
)

// SystemPrompt is the fixed system instruction sent with every utterance.
const SystemPrompt = "You are a helpful assistant."
