// Package client talks to the consult service over HTTP and WebSocket. It
// gives a call.Session running outside the service the same Loader and
// Mailbox the in-process participant provides.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mediconnect-backend/internal/domain"
	apperrors "mediconnect-backend/pkg/errors"
)

// Client is an authenticated consult API client for one user
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
	backoff time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithResubscribeBackoff sets the first pause before reopening a dropped
// mailbox stream
func WithResubscribeBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

// New creates a client for the service at baseURL acting with token
func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope mirrors pkg/response.Response with the payload left raw
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func appointmentPath(id, suffix string) string {
	return "/v1/appointments/" + url.PathEscape(id) + suffix
}

// do sends a JSON request and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.WrapWithStatus(apperrors.ErrCodeServiceUnavail, "Consult service unreachable", http.StatusServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return decodeEnvelope(resp, out)
}

// decodeEnvelope turns an error envelope back into the AppError the
// service raised, so callers can match on its code.
func decodeEnvelope(resp *http.Response, out any) error {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 400 {
			return apperrors.NewWithStatus(apperrors.ErrCodeUpstream, http.StatusText(resp.StatusCode), resp.StatusCode)
		}
		return apperrors.UpstreamError(fmt.Errorf("decode response: %w", err))
	}

	if !env.Success || resp.StatusCode >= 400 {
		if env.Error == nil {
			return apperrors.NewWithStatus(apperrors.ErrCodeUpstream, http.StatusText(resp.StatusCode), resp.StatusCode)
		}
		return apperrors.NewWithStatus(apperrors.ErrorCode(env.Error.Code), env.Error.Message, resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apperrors.UpstreamError(fmt.Errorf("decode data: %w", err))
		}
	}
	return nil
}

// Load joins the call and returns the appointment
func (c *Client) Load(ctx context.Context, appointmentID string) (*domain.Appointment, error) {
	var appt domain.Appointment
	if err := c.do(ctx, http.MethodPost, appointmentPath(appointmentID, "/join"), nil, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// Complete marks the appointment completed
func (c *Client) Complete(ctx context.Context, appointmentID string) error {
	return c.do(ctx, http.MethodPost, appointmentPath(appointmentID, "/end"), nil, nil)
}

// WriteOffer stores the caller's offer
func (c *Client) WriteOffer(ctx context.Context, appointmentID, descriptor string) error {
	return c.writeDescriptor(ctx, appointmentID, domain.FieldOffer, descriptor)
}

// WriteAnswer stores the caller's answer
func (c *Client) WriteAnswer(ctx context.Context, appointmentID, descriptor string) error {
	return c.writeDescriptor(ctx, appointmentID, domain.FieldAnswer, descriptor)
}

func (c *Client) writeDescriptor(ctx context.Context, appointmentID string, field domain.MailboxField, descriptor string) error {
	body := map[string]string{"descriptor": descriptor}
	return c.do(ctx, http.MethodPut, appointmentPath(appointmentID, "/mailbox/"+string(field)), body, nil)
}

// Clear resets both mailbox slots
func (c *Client) Clear(ctx context.Context, appointmentID string) error {
	return c.do(ctx, http.MethodDelete, appointmentPath(appointmentID, "/mailbox"), nil, nil)
}
