// Package chunker derives embeddable windows from document text.
//
// Chunks are fixed-size character windows with a configurable overlap:
//
//	c, err := chunker.New(1000, 200)
//	if err != nil {
//	    return err // overlap >= window is rejected up front
//	}
//	for _, ch := range c.Chunk(body) {
//	    fmt.Printf("chunk %d at %d: %d chars\n", ch.Seq, ch.Pos, utf8.RuneCountInString(ch.Text))
//	}
//
// Chunk i starts at i*(window-overlap). Offsets and lengths count Unicode code
// points, not bytes, so multi-byte text is never split inside a character.
//
// Chunks are never stored. Only their (fingerprint, seq, pos) coordinates are
// persisted alongside the vectors, and Slice re-derives the text from the
// document body when a caller needs it.
//
// Fingerprint computes the SHA-256 content hash used for change detection and
// as the vector/cache key namespace.
package chunker
