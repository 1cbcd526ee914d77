// Package whatsapp wraps the whatsmeow multi-device client so the bot can run
// on a linked WhatsApp account instead of a hosted gateway.
package whatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/Bossianity/Project-WAPi/internal/store"
	"github.com/Bossianity/Project-WAPi/internal/util"
)

// DefaultDBFileName is the whatsmeow device store inside the state directory.
const DefaultDBFileName = "whatsmeow.db"

// Sender is the send surface used by the messaging layer.
type Sender interface {
	SendText(ctx context.Context, to string, body string) error
	SendImage(ctx context.Context, to, caption string, image []byte, mimeType string) error
}

// Opts holds configuration options for the WhatsApp client.
type Opts struct {
	DBDSN       string // whatsmeow device store connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // print the raw pairing code instead of a QR block
	LogLevel    string // whatsmeow log level: DEBUG, INFO, WARN, ERROR
}

// Option defines a configuration option for the WhatsApp client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the login code as text.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// WithLogLevel sets the whatsmeow logger level.
func WithLogLevel(level string) Option {
	return func(o *Opts) { o.LogLevel = level }
}

// DefaultDSN returns the SQLite device store DSN under stateDir.
func DefaultDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultDBFileName) + "?_foreign_keys=on"
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

var _ Sender = (*Client)(nil)

// NewClient opens the device store, logs in (printing a QR code on first
// run) and connects.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := Opts{LogLevel: "INFO"}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("WhatsApp NewClient options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("whatsmeow database DSN not set")
	}

	dbDriver := store.DetectDSNType(cfg.DBDSN)
	if dbDriver == "sqlite3" && !strings.Contains(cfg.DBDSN, "foreign_keys") {
		slog.Warn("SQLite database for WhatsApp does not appear to have foreign keys enabled; whatsmeow requires them",
			"dsn_example", "file:"+cfg.DBDSN+"?_foreign_keys=on")
	}

	container, err := sqlstore.New(ctx, dbDriver, cfg.DBDSN, waLog.Stdout("Database", cfg.LogLevel, true))
	if err != nil {
		slog.Error("Failed to initialize WhatsApp DB store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp database store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("Failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	waClient := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", cfg.LogLevel, true))
	if waClient.Store.ID == nil {
		if err := login(ctx, waClient, cfg); err != nil {
			return nil, err
		}
	} else if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp server", "error", err)
		return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
	}
	slog.Info("WhatsApp client connected successfully")
	return &Client{waClient: waClient}, nil
}

func login(ctx context.Context, waClient *whatsmeow.Client, cfg Opts) error {
	slog.Info("WhatsApp login required; starting QR code flow")
	qrChan, _ := waClient.GetQRChannel(ctx)
	if err := waClient.Connect(); err != nil {
		slog.Error("Failed to connect to WhatsApp during login", "error", err)
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	writer := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR file: %w", err)
		}
		defer f.Close()
		writer = f
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			if cfg.NumericCode {
				fmt.Fprintln(writer, evt.Code)
			} else {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
			}
			continue
		}
		slog.Info("WhatsApp login event", "event", evt.Event)
	}
	return nil
}

func recipientJID(to string) (types.JID, error) {
	digits := util.PhoneDigits(to)
	if digits == "" {
		return types.JID{}, fmt.Errorf("recipient %q has no digits", to)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

func (c *Client) ready() error {
	if c.waClient == nil || c.waClient.Store == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	return nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to string, body string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}
	jid, err := recipientJID(to)
	if err != nil {
		return err
	}
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(body)}); err != nil {
		slog.Error("Failed to send WhatsApp message", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp message sent successfully", "to", to)
	return nil
}

// SendImage uploads image bytes and sends them with a caption.
func (c *Client) SendImage(ctx context.Context, to, caption string, image []byte, mimeType string) error {
	if err := c.ready(); err != nil {
		return err
	}
	jid, err := recipientJID(to)
	if err != nil {
		return err
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	up, err := c.waClient.Upload(ctx, image, whatsmeow.MediaImage)
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mimeType),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	if _, err := c.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("Failed to send WhatsApp image", "error", err, "to", to)
		return fmt.Errorf("failed to send image to %s: %w", to, err)
	}
	return nil
}

// GetClient returns the underlying whatsmeow client for event handling.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect closes the websocket.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// MockClient records sends (for tests).
type MockClient struct {
	Texts  []string
	Images []string
	Err    error
}

var _ Sender = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendText(ctx context.Context, to string, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Texts = append(m.Texts, body)
	return nil
}

func (m *MockClient) SendImage(ctx context.Context, to, caption string, image []byte, mimeType string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Images = append(m.Images, caption)
	return nil
}
