// Package client is a typed HTTP client for the ticketd API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/h1v3-io/ticketd/internal/codec"
	"github.com/h1v3-io/ticketd/internal/logbuf"
	"github.com/h1v3-io/ticketd/pkg/protocol"
)

// Error is a non-2xx response from the server.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

// Client talks to one ticketd instance.
type Client struct {
	baseURL string
	http    *http.Client
	codec   codec.Codec
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 10s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCBOR sends and accepts CBOR instead of JSON.
func WithCBOR() Option {
	return func(c *Client) { c.codec = codec.CBOR }
}

// New creates a client for the server at baseURL, e.g. http://localhost:3000.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		codec:   codec.JSON,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Health(ctx context.Context) (protocol.Health, error) {
	var h protocol.Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// Create posts a new ticket and returns it as stored.
func (c *Client) Create(ctx context.Context, title, description string) (protocol.Ticket, error) {
	var t protocol.Ticket
	req := protocol.CreateTicketRequest{Title: title, Description: description}
	err := c.do(ctx, http.MethodPost, "/tickets", req, &t)
	return t, err
}

func (c *Client) Get(ctx context.Context, id uint64) (protocol.Ticket, error) {
	var t protocol.Ticket
	err := c.do(ctx, http.MethodGet, "/tickets/"+strconv.FormatUint(id, 10), nil, &t)
	return t, err
}

// Patch sends the non-nil fields of p and returns the updated ticket.
func (c *Client) Patch(ctx context.Context, id uint64, p protocol.PatchTicketRequest) (protocol.Ticket, error) {
	var t protocol.Ticket
	err := c.do(ctx, http.MethodPatch, "/tickets/"+strconv.FormatUint(id, 10), p, &t)
	return t, err
}

// LogQuery selects entries from /debug/logs. Zero fields are omitted.
type LogQuery struct {
	Since     time.Time
	Level     string
	RequestID string
	Limit     int
}

func (q LogQuery) values() url.Values {
	v := url.Values{}
	if !q.Since.IsZero() {
		v.Set("since", strconv.FormatInt(q.Since.UnixMilli(), 10))
	}
	if q.Level != "" {
		v.Set("level", q.Level)
	}
	if q.RequestID != "" {
		v.Set("request_id", q.RequestID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) Logs(ctx context.Context, q LogQuery) ([]logbuf.Entry, error) {
	path := "/debug/logs"
	if v := q.values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var entries []logbuf.Entry
	err := c.do(ctx, http.MethodGet, path, nil, &entries)
	return entries, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := c.codec.Encode(&buf, in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", c.codec.ContentType())
	if in != nil {
		req.Header.Set("Content-Type", c.codec.ContentType())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &Error{StatusCode: resp.StatusCode, Message: c.message(resp, data)}
	}
	if out == nil {
		return nil
	}
	rc, err := codec.ForContentType(resp.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	if err := rc.Decode(bytes.NewReader(data), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// message extracts the error string the server encodes in failure bodies,
// falling back to the raw text.
func (c *Client) message(resp *http.Response, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if rc, err := codec.ForContentType(resp.Header.Get("Content-Type")); err == nil {
		var msg string
		if rc.Decode(bytes.NewReader(data), &msg) == nil {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}
