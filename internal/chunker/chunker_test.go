package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		window  int
		overlap int
	}{
		{"overlap equals window", 100, 100},
		{"overlap exceeds window", 100, 150},
		{"zero window", 0, 0},
		{"negative overlap", 100, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.window, tt.overlap)
			assert.Nil(t, c)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)

	for _, text := range []string{"", "short", strings.Repeat("a", 1000)} {
		chunks := c.Chunk(text)
		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Pos)
		assert.Equal(t, text, chunks[0].Text)
	}
}

func TestChunk_1500CharsWindow1000Overlap200(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)

	text := strings.Repeat("x", 1500)
	chunks := c.Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Pos)
	assert.Len(t, chunks[0].Text, 1000)
	assert.Equal(t, 800, chunks[1].Pos)
	assert.Len(t, chunks[1].Text, 700)
	assert.Equal(t, 1, chunks[1].Seq)
}

func TestChunk_CoverageAndStride(t *testing.T) {
	configs := []struct{ window, overlap int }{
		{10, 0}, {10, 3}, {10, 9}, {64, 16}, {1000, 200},
	}
	lengths := []int{1, 9, 10, 11, 25, 99, 100, 101, 1500, 4097}

	for _, cfg := range configs {
		c, err := New(cfg.window, cfg.overlap)
		require.NoError(t, err)

		for _, n := range lengths {
			text := strings.Repeat("ab", n)[:n]
			chunks := c.Chunk(text)

			if n <= cfg.window {
				require.Len(t, chunks, 1, "window=%d len=%d", cfg.window, n)
			}

			covered := 0
			for i, ch := range chunks {
				assert.Equal(t, i, ch.Seq)
				assert.Equal(t, i*(cfg.window-cfg.overlap), ch.Pos)
				assert.LessOrEqual(t, ch.Pos, covered, "gap before chunk %d", i)
				end := ch.Pos + len(ch.Text)
				if i < len(chunks)-1 {
					assert.Len(t, ch.Text, cfg.window)
				}
				if end > covered {
					covered = end
				}
			}
			assert.Equal(t, n, covered, "window=%d overlap=%d len=%d", cfg.window, cfg.overlap, n)
			assert.Equal(t, n, chunks[len(chunks)-1].Pos+len(chunks[len(chunks)-1].Text))
			assert.Equal(t, c.estimate(n), len(chunks))
		}
	}
}

func TestChunk_CountsCharactersNotBytes(t *testing.T) {
	c, err := New(4, 1)
	require.NoError(t, err)

	chunks := c.Chunk("héllo wörld")
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), 4)
	}
	assert.Equal(t, "héll", chunks[0].Text)
	assert.Equal(t, 3, chunks[1].Pos)
	assert.Equal(t, "lo w", chunks[1].Text)
}

func TestSlice_RederivesChunkText(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)

	text := strings.Repeat("lorem ipsum dolor ", 30)
	for _, ch := range c.Chunk(text) {
		assert.Equal(t, ch.Text, c.Slice(text, ch.Pos))
	}
	assert.Empty(t, c.Slice(text, -1))
	assert.Empty(t, c.Slice(text, len(text)+10))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Fingerprint(""))
	assert.Equal(t,
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		Fingerprint("hello world"))

	body := "# Notes\n\nsome content"
	assert.Equal(t, Fingerprint(body), Fingerprint(body))
	assert.NotEqual(t, Fingerprint(body), Fingerprint(body+"."))
	assert.Len(t, Fingerprint(body), 64)
}
