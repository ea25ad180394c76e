package llm

import "strings"

// FormatQuery wraps a search query in the task prefix embedding models are
// trained with, so query and document vectors share one space
func FormatQuery(query string) string {
	return "task: search result | query: " + query
}

// FormatDocument formats a document (or chunk) for embedding
func FormatDocument(title, text string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "none"
	}
	return "title: " + title + " | text: " + text
}
