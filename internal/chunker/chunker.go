package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// DefaultWindow is the default chunk size in characters (~800 tokens at 4 chars/token)
	DefaultWindow = 3200

	// DefaultOverlap is the default overlap between consecutive chunks (15% of the window)
	DefaultOverlap = 480
)

// ErrInvalidConfig is returned when the window/overlap pair cannot produce forward progress
var ErrInvalidConfig = errors.New("invalid chunk configuration")

// Chunk is a window of document text addressed by its sequence number and character offset
type Chunk struct {
	Seq  int    // 0-based position in the chunk sequence
	Pos  int    // Start offset in characters
	Text string // Covered text
}

// Chunker splits text into overlapping fixed-size windows
type Chunker struct {
	window  int
	overlap int
}

// New creates a Chunker. Overlap must be smaller than the window.
func New(window, overlap int) (*Chunker, error) {
	if err := Validate(window, overlap); err != nil {
		return nil, err
	}
	return &Chunker{window: window, overlap: overlap}, nil
}

// Validate checks a window/overlap pair without building a Chunker
func Validate(window, overlap int) error {
	if window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrInvalidConfig, window)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= window {
		return fmt.Errorf("%w: overlap %d must be smaller than window %d", ErrInvalidConfig, overlap, window)
	}
	return nil
}

// Window returns the configured window size
func (c *Chunker) Window() int {
	return c.window
}

// Overlap returns the configured overlap
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Stride returns the distance between the starts of consecutive chunks
func (c *Chunker) Stride() int {
	return c.window - c.overlap
}

// Chunk splits text into windows. Chunk i starts at i*(window-overlap); the last
// chunk ends at the end of the text and may be shorter than the window.
// Text no longer than the window yields exactly one chunk.
func (c *Chunker) Chunk(text string) []Chunk {
	runes := []rune(text)
	total := len(runes)

	chunks := make([]Chunk, 0, c.estimate(total))
	for seq, start := 0, 0; ; seq, start = seq+1, start+c.Stride() {
		end := start + c.window
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{
			Seq:  seq,
			Pos:  start,
			Text: string(runes[start:end]),
		})
		if end >= total {
			break
		}
	}
	return chunks
}

// Slice re-derives the text of the chunk starting at pos
func (c *Chunker) Slice(text string, pos int) string {
	runes := []rune(text)
	if pos < 0 || pos >= len(runes) {
		return ""
	}
	end := pos + c.window
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[pos:end])
}

// estimate returns the number of chunks text of the given length produces
func (c *Chunker) estimate(total int) int {
	if total <= c.window {
		return 1
	}
	stride := c.Stride()
	return (total - c.overlap + stride - 1) / stride
}

// Fingerprint returns the hex SHA-256 digest of a document body.
// It keys change detection, stored vectors and cache entries.
func Fingerprint(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
