// Package chatclient is a Go client of the guest chat API: an HTTP client
// carrying the anonymous uid cookie, a file cache for that uid, and a
// Session holding the guest's transcript.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/menuqr/tablechat/internal/model"
)

// ServerError is a failure the gateway reported in-band, with safe text
// meant for the guest.
type ServerError struct {
	Reply string
}

func (e *ServerError) Error() string {
	return "chatclient: server reported failure: " + e.Reply
}

// Client talks to one gateway. It keeps the uid cookie in a jar so every
// request after the first carries the same anonymous identity.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	hotelID string
	tableID string
}

// Dial and header timeouts bound how long a request waits for the gateway
// to answer. Reading a streamed body is bounded only by the request context.
const (
	dialTimeout           = 10 * time.Second
	responseHeaderTimeout = 2 * time.Minute
)

func newTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: headerTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its cookie jar is
// replaced when nil.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithResponseHeaderTimeout bounds the wait for response headers. It has no
// effect once WithHTTPClient has installed a custom transport.
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(c *Client) {
		if t, ok := c.http.Transport.(*http.Transport); ok {
			t.ResponseHeaderTimeout = d
		}
	}
}

// WithTable scopes chat requests to a table, so they are tagged with it.
func WithTable(hotelID, tableID string) Option {
	return func(c *Client) {
		c.hotelID = hotelID
		c.tableID = tableID
	}
}

// New creates a client for the gateway at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Transport: newTransport(responseHeaderTimeout)},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) chatPath() string {
	if c.hotelID == "" || c.tableID == "" {
		return "/api/chat"
	}
	return "/api/tables/" + url.PathEscape(c.hotelID) + "/" + url.PathEscape(c.tableID) + "/chat"
}

// SetUID installs a previously issued uid in the cookie jar.
func (c *Client) SetUID(uid string) {
	c.http.Jar.SetCookies(c.baseURL, []*http.Cookie{{
		Name:  model.UIDCookieName,
		Value: uid,
		Path:  "/",
	}})
}

// UID asks the gateway for the caller's anonymous identity. The gateway
// returns the cookie's uid when the jar has one, or issues a new one.
func (c *Client) UID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/uid"), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch uid: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch uid: unexpected status %d", resp.StatusCode)
	}

	var body model.AnonymousIdentity
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode uid: %w", err)
	}
	if body.UID == "" {
		return "", errors.New("failed to fetch uid: empty uid")
	}
	return body.UID, nil
}

func (c *Client) newChatRequest(ctx context.Context, message string, stream bool) (*http.Request, error) {
	payload, err := json.Marshal(model.ChatRequest{Message: message})
	if err != nil {
		return nil, err
	}

	target := c.endpoint(c.chatPath())
	if stream {
		target += "?stream=true"
	} else {
		target += "?stream=false"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}

// Chat sends message in buffered mode and returns the reply text. Replies
// the gateway sends with an error status are returned as text too; an error
// means the gateway could not be reached or answered garbage.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	req, err := c.newChatRequest(ctx, message, false)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	return decodeReply(resp)
}

// ChatStream sends message in streaming mode and calls onChunk for every
// fragment in arrival order. A gateway that answers with JSON instead
// (blank input, missing configuration, early failure) yields one chunk
// when the status is OK and a *ServerError otherwise. A failure reported
// after the stream started is returned as a *ServerError.
func (c *Client) ChatStream(ctx context.Context, message string, onChunk func(chunk string)) error {
	req, err := c.newChatRequest(ctx, message, true)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		reply, err := decodeReply(resp)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &ServerError{Reply: reply}
		}
		onChunk(reply)
		return nil
	}

	frames := 0
	err = readEvents(resp.Body, func(event, data string) error {
		switch event {
		case "", "message":
			frames++
			onChunk(data)
			return nil
		case "error":
			return &ServerError{Reply: data}
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}
	if frames == 0 {
		return fmt.Errorf("chat stream ended without data: %w", io.ErrUnexpectedEOF)
	}
	return nil
}

func decodeReply(resp *http.Response) (string, error) {
	var body model.ChatReply
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode reply (status %d): %w", resp.StatusCode, err)
	}
	return body.Reply, nil
}
