// Package media downloads WhatsApp attachments and decrypts the end-to-end
// encrypted payloads some gateways hand out together with a media key.
package media

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// Media types understood by Decrypt.
const (
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeDocument = "document"
)

const (
	// DefaultDownloadTimeout bounds one attachment download.
	DefaultDownloadTimeout = 20 * time.Second
	// MaxDownloadSize caps attachments read into memory.
	MaxDownloadSize = 32 << 20

	expandedKeyLen = 112
	macLen         = 10
)

var keyInfo = map[string]string{
	TypeImage:    "WhatsApp Image Keys",
	TypeVideo:    "WhatsApp Video Keys",
	TypeAudio:    "WhatsApp Audio Keys",
	TypeDocument: "WhatsApp Document Keys",
}

var (
	// ErrUnsupportedType is returned for media types without HKDF info.
	ErrUnsupportedType = errors.New("media: unsupported media type")
	// ErrCiphertext is returned when the payload cannot be AES-CBC data.
	ErrCiphertext = errors.New("media: malformed ciphertext")
)

// TypeOf maps an inbound message type to its media type.
func TypeOf(t models.MessageType) string {
	switch t {
	case models.MessageTypeAudio, models.MessageTypeVoice:
		return TypeAudio
	case models.MessageTypeImage:
		return TypeImage
	case models.MessageTypeVideo:
		return TypeVideo
	default:
		return TypeDocument
	}
}

// expandKey derives iv, cipher key, mac key and ref key material from the
// base64 media key.
func expandKey(mediaKeyB64, mediaType string) ([]byte, error) {
	info, ok := keyInfo[mediaType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}
	key, err := base64.StdEncoding.DecodeString(mediaKeyB64)
	if err != nil {
		return nil, fmt.Errorf("media: decode media key: %w", err)
	}
	out := make([]byte, expandedKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("media: expand key: %w", err)
	}
	return out, nil
}

// Decrypt strips the 10 byte MAC trailer from data and decrypts the rest
// with AES-256-CBC using the key material expanded from mediaKeyB64.
func Decrypt(data []byte, mediaKeyB64, mediaType string) ([]byte, error) {
	keys, err := expandKey(mediaKeyB64, mediaType)
	if err != nil {
		return nil, err
	}
	iv, cipherKey := keys[:16], keys[16:48]

	if len(data) <= macLen {
		return nil, ErrCiphertext
	}
	ciphertext := data[:len(data)-macLen]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d not a multiple of %d", ErrCiphertext, len(ciphertext), aes.BlockSize)
	}
	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return unpad(plain)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
	}
	if !bytes.Equal(b[len(b)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
		return nil, fmt.Errorf("%w: bad padding", ErrCiphertext)
	}
	return b[:len(b)-n], nil
}

// Downloader fetches attachments over HTTP.
type Downloader struct {
	client *http.Client
	token  string
}

// NewDownloader creates a downloader. token, when set, is sent as a bearer
// token (Whapi media URLs require the gateway token).
func NewDownloader(client *http.Client, token string) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	return &Downloader{client: client, token: token}
}

// Download returns the body and content type at url.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media: download: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return nil, "", fmt.Errorf("media: read body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
