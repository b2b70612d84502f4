package nats

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/menuqr/tablechat/pkg/logger"
)

// SetupFunc runs once against a fresh connection before it is handed out.
type SetupFunc func(ctx context.Context, c *Client) error

// Connector owns a single lazily established connection. The first caller
// connects; concurrent callers wait on the same attempt. A failed attempt is
// not cached, so the next caller tries again.
type Connector struct {
	cfg   Config
	setup SetupFunc
	log   *logger.Logger

	mu     sync.Mutex
	client *Client
	closed bool
}

// NewConnector creates a connector. Nothing is dialed until Client is called.
func NewConnector(cfg Config, setup SetupFunc, log *logger.Logger) *Connector {
	return &Connector{cfg: cfg, setup: setup, log: log}
}

// Client returns the shared connection, connecting on first use.
func (c *Connector) Client(ctx context.Context) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectorClosed
	}
	if c.client != nil {
		return c.client, nil
	}

	client, err := Connect(ctx, c.cfg, c.log)
	if err != nil {
		return nil, err
	}
	if c.setup != nil {
		if err := c.setup(ctx, client); err != nil {
			client.Close()
			return nil, err
		}
	}

	c.log.Info("NATS connected", zap.String("url", c.cfg.URL))
	c.client = client
	return client, nil
}

// IsConnected reports whether a connection exists and is up.
func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.IsConnected()
}

// Close closes the connection if one was made. Safe to call repeatedly.
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}
