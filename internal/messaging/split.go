package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Bossianity/Project-WAPi/internal/util"
)

const (
	// DefaultChunkLines is the most lines one outgoing chunk carries.
	DefaultChunkLines = 2
	// DefaultChunkChars is the most characters one outgoing chunk carries.
	DefaultChunkChars = 1000
)

// SplitMessage groups the lines of text into chunks of at most maxLines
// lines and maxChars characters, preserving order. A line longer than
// maxChars becomes a chunk of its own. Chunks that are only whitespace are
// dropped.
func SplitMessage(text string, maxLines, maxChars int) []string {
	if maxLines <= 0 {
		maxLines = DefaultChunkLines
	}
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}
	var chunks []string
	var current []string
	size := 0
	flush := func() {
		if chunk := strings.Join(current, "\n"); strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		current, size = nil, 0
	}
	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if len(current) > 0 {
			n++ // joining newline
		}
		if len(current) > 0 && (len(current) >= maxLines || size+n > maxChars) {
			flush()
			n = utf8.RuneCountInString(line)
		}
		current = append(current, line)
		size += n
	}
	if len(current) > 0 {
		flush()
	}
	return chunks
}

// ChunkDelay returns the pause between two chunks.
var ChunkDelay = func() time.Duration {
	return util.RandomDuration(2*time.Second, 3*time.Second)
}

// SendChunked splits text and sends the chunks in order with ChunkDelay in
// between. It stops at the first failed chunk and returns how many chunks
// were delivered.
func SendChunked(ctx context.Context, svc Service, to, text string) (int, error) {
	chunks := SplitMessage(text, DefaultChunkLines, DefaultChunkChars)
	for i, chunk := range chunks {
		if err := svc.SendText(ctx, to, chunk); err != nil {
			slog.Error("messaging.SendChunked: chunk failed, aborting remaining sends", "to", to, "chunk", i+1, "total", len(chunks), "error", err)
			return i, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if i < len(chunks)-1 {
			if err := util.SleepContext(ctx, ChunkDelay()); err != nil {
				return i + 1, err
			}
		}
	}
	return len(chunks), nil
}
