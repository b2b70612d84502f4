package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IdentityCache keeps the anonymous uid on disk so a guest keeps the same
// identity across runs.
type IdentityCache struct {
	path string
}

// NewIdentityCache returns a cache backed by the file at path.
func NewIdentityCache(path string) *IdentityCache {
	return &IdentityCache{path: path}
}

// Load returns the cached uid, or "" when nothing is cached.
func (c *IdentityCache) Load() (string, error) {
	b, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read identity: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Save stores uid, replacing any previous value.
func (c *IdentityCache) Save(uid string) error {
	return writeFileAtomic(c.path, []byte(uid+"\n"))
}

// EnsureIdentity fetches a uid from the gateway at most once: a cached uid
// is installed in the client's jar, otherwise one is fetched and cached.
func (c *Client) EnsureIdentity(ctx context.Context, cache *IdentityCache) (string, error) {
	uid, err := cache.Load()
	if err != nil {
		return "", err
	}
	if uid != "" {
		c.SetUID(uid)
		return uid, nil
	}

	uid, err = c.UID(ctx)
	if err != nil {
		return "", err
	}
	if err := cache.Save(uid); err != nil {
		return "", err
	}
	return uid, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
