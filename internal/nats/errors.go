package nats

import "errors"

// ErrConnectorClosed is returned by Connector.Client after Close.
var ErrConnectorClosed = errors.New("nats: connector closed")
