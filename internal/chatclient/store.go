package chatclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/menuqr/tablechat/internal/model"
)

// Store persists a transcript between runs. Last write wins.
type Store interface {
	Load() ([]model.ChatMessage, error)
	Save(messages []model.ChatMessage) error
	Clear() error
}

// FileStore is a Store backed by one JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store. A missing file is an empty transcript.
func (s *FileStore) Load() ([]model.ChatMessage, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var messages []model.ChatMessage
	if err := json.Unmarshal(b, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}
	return messages, nil
}

// Save implements Store.
func (s *FileStore) Save(messages []model.ChatMessage) error {
	b, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return writeFileAtomic(s.path, b)
}

// Clear implements Store.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	return nil
}
