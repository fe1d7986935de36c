package trigger

import (
	"strings"
	"unicode/utf8"
)

// BufferCap bounds the rolling output buffer, in bytes.
const BufferCap = 10000

// Buffer accumulates all application output seen so far, truncated from the
// front so prompts split across transport frames can be matched as one
// logical string. Front truncation snaps to a rune boundary at or below the
// cut point so the buffer never starts mid-character.
type Buffer struct {
	text string
	cap  int
}

// NewBuffer returns an empty buffer with the standard cap.
func NewBuffer() *Buffer {
	return &Buffer{cap: BufferCap}
}

// Append adds chunk to the buffer and enforces the cap.
func (b *Buffer) Append(chunk string) {
	b.text += chunk
	if len(b.text) <= b.cap {
		return
	}
	cut := len(b.text) - b.cap
	for cut > 0 && !utf8.RuneStart(b.text[cut]) {
		cut--
	}
	b.text = b.text[cut:]
}

// Contains reports whether the buffer contains the substring.
func (b *Buffer) Contains(s string) bool {
	return strings.Contains(b.text, s)
}

// ContainsFold reports whether the lowercased buffer contains the
// lowercased substring.
func (b *Buffer) ContainsFold(s string) bool {
	return strings.Contains(strings.ToLower(b.text), strings.ToLower(s))
}

// Consume replaces every occurrence of phrase with the sentinel so later
// scans cannot re-fire on the same prompt.
func (b *Buffer) Consume(phrase, sentinel string) {
	b.text = strings.ReplaceAll(b.text, phrase, sentinel)
}

// String returns the current buffer contents.
func (b *Buffer) String() string {
	return b.text
}

// Len returns the buffer length in bytes.
func (b *Buffer) Len() int {
	return len(b.text)
}
