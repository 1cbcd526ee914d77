// Package whapi is a client for the Whapi.Cloud WhatsApp gateway REST API.
package whapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Bossianity/Project-WAPi/internal/models"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

const (
	// DefaultBaseURL is the public Whapi.Cloud gateway.
	DefaultBaseURL = "https://gate.whapi.cloud"
	// DefaultMaxAttempts bounds retries of one API call.
	DefaultMaxAttempts = 3
	// DefaultTimeout applies to every gateway request.
	DefaultTimeout = 30 * time.Second
	// DefaultWebhookTimeout applies to the settings call.
	DefaultWebhookTimeout = 15 * time.Second
	// DefaultImageDownloadTimeout bounds fetching an image before upload.
	DefaultImageDownloadTimeout = 20 * time.Second
	// DefaultListLabel is shown on the list opener when none is given.
	DefaultListLabel = "View Options"
)

var (
	// ErrUnauthorized is returned when the gateway rejects the token. Such
	// calls are never retried.
	ErrUnauthorized = errors.New("whapi: unauthorized")
	// ErrNotSent is returned when the gateway answered 2xx without sent=true.
	ErrNotSent = errors.New("whapi: message not sent")
	// ErrNotConfigured is returned when no token is set.
	ErrNotConfigured = errors.New("whapi: API token not configured")
)

// APIError carries a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whapi: status %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps auth failures onto ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Opts holds configuration for the Whapi client.
type Opts struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// Option configures the Whapi client.
type Option func(*Opts)

// WithBaseURL overrides the gateway URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithHTTPClient sets the HTTP client used for API calls and image downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithMaxAttempts sets how many times one call is tried.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) { o.MaxAttempts = n }
}

// WithBackoff overrides the wait between attempts.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(o *Opts) { o.Backoff = fn }
}

// Client talks to the Whapi gateway.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	maxAttempts int
	backoff     func(int) time.Duration
}

// NewClient creates a client. A missing token is reported by ErrNotConfigured.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		BaseURL:     DefaultBaseURL,
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     util.Backoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("whapi.NewClient: options set", "base_url", cfg.BaseURL, "token_set", cfg.Token != "")
	if cfg.Token == "" {
		return nil, ErrNotConfigured
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		token:       cfg.Token,
		http:        cfg.HTTPClient,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}, nil
}

type sendResponse struct {
	Sent    bool            `json:"sent"`
	Message json.RawMessage `json:"message,omitempty"`
}

// payload produces a fresh request body for every attempt.
type payload func() (io.Reader, string, error)

func jsonPayload(v interface{}) payload {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

// call performs one API call with retries. 401/403 abort immediately.
func (c *Client) call(ctx context.Context, method, endpoint string, body payload, timeout time.Duration) ([]byte, error) {
	url := c.baseURL + "/" + endpoint
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := util.SleepContext(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}
		data, err := c.once(ctx, method, url, body, timeout)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			break
		}
		slog.Warn("whapi.Client: request failed", "endpoint", endpoint, "attempt", attempt+1, "max_attempts", c.maxAttempts, "error", err)
	}
	slog.Error("whapi.Client: request gave up", "endpoint", endpoint, "error", lastErr)
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, url string, body payload, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var reader io.Reader
	var contentType string
	if body != nil {
		var err error
		if reader, contentType, err = body(); err != nil {
			return nil, fmt.Errorf("build request body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// send posts a message and requires sent=true in the answer.
func (c *Client) send(ctx context.Context, endpoint string, body payload) error {
	data, err := c.call(ctx, http.MethodPost, endpoint, body, 0)
	if err != nil {
		return err
	}
	var out sendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode send response: %w", err)
	}
	if !out.Sent {
		return ErrNotSent
	}
	return nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if body == "" {
		return models.ErrEmptyBody
	}
	return c.send(ctx, "messages/text", jsonPayload(map[string]string{"to": to, "body": body}))
}

// SendImage downloads imageURL and uploads it as multipart media. When the
// download fails the gateway is asked to fetch the link itself.
func (c *Client) SendImage(ctx context.Context, to, caption, imageURL string) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	data, contentType, err := c.download(ctx, imageURL)
	if err != nil {
		slog.Warn("whapi.Client.SendImage: download failed, sending link", "url", imageURL, "error", err)
		return c.send(ctx, "messages/image", jsonPayload(map[string]string{
			"to":      to,
			"caption": caption,
			"media":   imageURL,
		}))
	}
	return c.send(ctx, "messages/image", func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := w.WriteField("to", to); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("caption", caption); err != nil {
			return nil, "", err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="media"; filename="image.jpg"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	})
}

func (c *Client) download(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultImageDownloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("image download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", err
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/jpeg"
	}
	return data, ct, nil
}

type textBlock struct {
	Text string `json:"text"`
}

type interactiveButton struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	ID    string `json:"id"`
	URL   string `json:"url,omitempty"`
}

type listRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type listSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []listRow `json:"rows"`
}

type listAction struct {
	Label    string        `json:"label"`
	Sections []listSection `json:"sections"`
}

type interactiveAction struct {
	Buttons []interactiveButton `json:"buttons,omitempty"`
	List    *listAction         `json:"list,omitempty"`
}

type interactiveMessage struct {
	To       string            `json:"to"`
	Type     string            `json:"type"`
	ViewOnce bool              `json:"view_once"`
	Header   *textBlock        `json:"header,omitempty"`
	Body     textBlock         `json:"body"`
	Footer   *textBlock        `json:"footer,omitempty"`
	Action   interactiveAction `json:"action"`
}

func optionalText(s string) *textBlock {
	if s == "" {
		return nil
	}
	return &textBlock{Text: s}
}

// SendButtons sends an interactive button message. URL buttons without a
// URL are dropped.
func (c *Client) SendButtons(ctx context.Context, to string, msg models.ButtonMessage) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if msg.Body == "" {
		return models.ErrEmptyBody
	}
	var buttons []interactiveButton
	for _, b := range msg.Buttons {
		typ := b.Type
		if typ == "" {
			typ = models.ButtonQuickReply
		}
		if typ == models.ButtonURL && b.URL == "" {
			slog.Error("whapi.Client.SendButtons: url button missing url, skipping", "to", to, "title", b.Title)
			continue
		}
		buttons = append(buttons, interactiveButton{Type: string(typ), Title: b.Title, ID: b.ID, URL: b.URL})
	}
	if len(buttons) == 0 {
		return models.ErrNoButtons
	}
	if len(buttons) > models.MaxButtons {
		return models.ErrTooManyButtons
	}
	return c.send(ctx, "messages/interactive", jsonPayload(interactiveMessage{
		To:     to,
		Type:   "button",
		Header: optionalText(msg.Header),
		Body:   textBlock{Text: msg.Body},
		Footer: optionalText(msg.Footer),
		Action: interactiveAction{Buttons: buttons},
	}))
}

// SendList sends an interactive list message. Rows missing an ID or title
// and sections left empty are dropped.
func (c *Client) SendList(ctx context.Context, to string, msg models.ListMessage) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if msg.Body == "" {
		return models.ErrEmptyBody
	}
	var sections []listSection
	for _, s := range msg.Sections {
		var rows []listRow
		for _, r := range s.Rows {
			if r.ID == "" || r.Title == "" {
				continue
			}
			rows = append(rows, listRow{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		if len(rows) == 0 {
			slog.Warn("whapi.Client.SendList: section without valid rows skipped", "to", to, "section", s.Title)
			continue
		}
		sections = append(sections, listSection{Title: s.Title, Rows: rows})
	}
	if len(sections) == 0 {
		return models.ErrNoListRows
	}
	label := msg.Label
	if label == "" {
		label = DefaultListLabel
	}
	m := interactiveMessage{
		To:     to,
		Type:   "list",
		Header: optionalText(msg.Header),
		Body:   textBlock{Text: msg.Body},
		Footer: optionalText(msg.Footer),
	}
	m.Action.List = &listAction{Label: label, Sections: sections}
	return c.send(ctx, "messages/interactive", jsonPayload(m))
}

// SetWebhook registers the bot callback URL for message and status events.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("webhook url is empty")
	}
	body := map[string]interface{}{
		"webhook": map[string]interface{}{
			"url":    url,
			"events": []string{"messages", "statuses"},
		},
	}
	if _, err := c.call(ctx, http.MethodPatch, "settings", jsonPayload(body), DefaultWebhookTimeout); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	slog.Info("whapi.Client.SetWebhook: webhook registered", "url", url)
	return nil
}
