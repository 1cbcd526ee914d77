// Package genai wraps the OpenAI API for chat completions, embeddings and
// speech transcription.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults used when no option overrides them.
const (
	DefaultModel          = "gpt-4o"
	DefaultTemperature    = 0.2
	DefaultMaxTokens      = 1024
	DefaultEmbeddingModel = openai.EmbeddingModelTextEmbeddingAda002
	DefaultRequestTimeout = 60 * time.Second
)

var (
	// ErrNoChoicesReturned is returned when the model answers with no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrNotConfigured is returned when a capability has no backing service.
	ErrNotConfigured = errors.New("genai client not configured")
)

// Role values accepted in a Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type embeddingService interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

type transcriptionService interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// Opts holds configuration for the client.
type Opts struct {
	APIKey          string
	EmbeddingAPIKey string
	Model           string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	DebugDir        string
}

// Option configures Opts.
type Option func(*Opts)

// WithAPIKey sets the key used for chat and transcription.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithEmbeddingAPIKey sets a separate key for embeddings. Defaults to the
// main key.
func WithEmbeddingAPIKey(key string) Option {
	return func(o *Opts) { o.EmbeddingAPIKey = key }
}

// WithModel sets the chat model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithTimeout bounds each API request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithDebugDir writes every chat request and response as a JSON file under
// dir/debug.
func WithDebugDir(dir string) Option {
	return func(o *Opts) { o.DebugDir = dir }
}

// Client is the entry point for all model calls.
type Client struct {
	chat          chatService
	embeddings    embeddingService
	transcription transcriptionService

	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	debugDir    string
}

// NewClient builds a client from options, falling back to OPENAI_API_KEY
// when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = cfg.APIKey
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	embedCli := cli
	if cfg.EmbeddingAPIKey != cfg.APIKey {
		embedCli = openai.NewClient(option.WithAPIKey(cfg.EmbeddingAPIKey))
	}

	return &Client{
		chat:          &cli.Chat.Completions,
		embeddings:    &embedCli.Embeddings,
		transcription: &cli.Audio.Transcriptions,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		timeout:       cfg.Timeout,
		debugDir:      cfg.DebugDir,
	}, nil
}

// Model returns the configured chat model name.
func (c *Client) Model() string {
	return c.model
}

// Chat sends the messages in order and returns the first choice.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.chat == nil {
		return "", ErrNotConfigured
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toParams(messages),
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Debug("Client.Chat: request failed", "model", c.model, "error", err)
		c.writeDebug(messages, "", err, time.Since(start))
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		c.writeDebug(messages, "", ErrNoChoicesReturned, time.Since(start))
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("Client.Chat: completion received", "model", c.model, "messages", len(messages), "chars", len(content), "elapsed", time.Since(start))
	c.writeDebug(messages, content, nil, time.Since(start))
	return content, nil
}

// GeneratePrompt is Chat with one system and one user message.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.Chat(ctx, []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userPrompt},
	})
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil || c.embeddings == nil {
		return nil, ErrNotConfigured
	}
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: DefaultEmbeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: expected %d vectors, got %d", len(texts), len(resp.Data))
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[idx] = vec
	}
	return out, nil
}

// Transcribe converts speech audio to text with Whisper.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if c == nil || c.transcription == nil {
		return "", ErrNotConfigured
	}
	if filename == "" {
		filename = "audio.ogg"
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.transcription.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, "audio/ogg"),
		Model: openai.AudioModelWhisper1,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return resp.Text, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type debugRecord struct {
	Time     time.Time `json:"time"`
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	Elapsed  string    `json:"elapsed"`
}

func (c *Client) writeDebug(messages []Message, response string, callErr error, elapsed time.Duration) {
	if c.debugDir == "" {
		return
	}
	rec := debugRecord{
		Time:     time.Now().UTC(),
		Model:    c.model,
		Messages: messages,
		Response: response,
		Elapsed:  elapsed.String(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	dir := filepath.Join(c.debugDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("Client.writeDebug: create dir failed", "dir", dir, "error", err)
		return
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return
	}
	name := fmt.Sprintf("chat_%s.json", rec.Time.Format("20060102T150405.000000000"))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("Client.writeDebug: write failed", "error", err)
	}
}
