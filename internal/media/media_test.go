package media

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bossianity/Project-WAPi/internal/models"
)

// encryptForTest produces what a WhatsApp client uploads: AES-256-CBC with
// PKCS#7 padding followed by a 10 byte MAC (zeros here, it is not checked).
func encryptForTest(t *testing.T, plain []byte, mediaKey, mediaType string) []byte {
	t.Helper()
	keys, err := expandKey(mediaKey, mediaType)
	require.NoError(t, err)
	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := append(append([]byte(nil), plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	block, err := aes.NewCipher(keys[16:48])
	require.NoError(t, err)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, keys[:16]).CryptBlocks(out, padded)
	return append(out, make([]byte, macLen)...)
}

func TestDecryptAudio(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	plain := []byte("OggS voice note payload")
	got, err := Decrypt(encryptForTest(t, plain, key, TypeAudio), key, TypeAudio)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptRejectsBadInput(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 32))
	_, err := Decrypt([]byte("short"), key, TypeAudio)
	assert.ErrorIs(t, err, ErrCiphertext)

	_, err = Decrypt(make([]byte, 27), key, TypeAudio)
	assert.ErrorIs(t, err, ErrCiphertext)

	_, err = Decrypt(make([]byte, 42), key, "sticker")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Decrypt(make([]byte, 42), "%%%", TypeAudio)
	assert.Error(t, err)
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeAudio, TypeOf(models.MessageTypeVoice))
	assert.Equal(t, TypeAudio, TypeOf(models.MessageTypeAudio))
	assert.Equal(t, TypeImage, TypeOf(models.MessageTypeImage))
	assert.Equal(t, TypeVideo, TypeOf(models.MessageTypeVideo))
	assert.Equal(t, TypeDocument, TypeOf(models.MessageTypeDocument))
}

func TestDownloadSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write([]byte("voice"))
	}))
	defer srv.Close()

	data, ct, err := NewDownloader(srv.Client(), "tok").Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "voice", string(data))
	assert.Equal(t, "audio/ogg", ct)

	_, _, err = NewDownloader(srv.Client(), "").Download(context.Background(), srv.URL)
	assert.Error(t, err)
}
