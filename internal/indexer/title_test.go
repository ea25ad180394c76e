package indexer

import (
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{"atx heading", "a.md", "# Hello World\n\nbody", "Hello World"},
		{"first heading wins", "a.md", "text\n\n## Second level\n\n# Later", "Second level"},
		{"inline markup stripped", "a.md", "# Using `docker` with **compose**", "Using docker with compose"},
		{"setext heading", "a.markdown", "Setext Title\n============\n", "Setext Title"},
		{"no heading", "notes/todo.md", "just some text", "todo"},
		{"empty markdown", "empty.md", "", "empty"},
		{"plain text first line", "log.txt", "\n\n  First line  \nsecond", "First line"},
		{"plain text empty", "dir/log.txt", "   \n", "log"},
		{"long line capped", "long.txt", strings.Repeat("é", 200), strings.Repeat("é", 120)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTitle(tt.path, tt.body))
		})
	}
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create", fsnotify.Event{Name: "/r/a.md", Op: fsnotify.Create}, true},
		{"write", fsnotify.Event{Name: "/r/a.md", Op: fsnotify.Write}, true},
		{"remove", fsnotify.Event{Name: "/r/a.md", Op: fsnotify.Remove}, true},
		{"rename", fsnotify.Event{Name: "/r/a.md", Op: fsnotify.Rename}, true},
		{"chmod only", fsnotify.Event{Name: "/r/a.md", Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: "/r/.a.md.swp", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.ev))
		})
	}
}
