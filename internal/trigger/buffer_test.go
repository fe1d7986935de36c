package trigger

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBufferCapEnforced(t *testing.T) {
	buffer := NewBuffer()
	chunk := strings.Repeat("x", 3000)
	for i := 0; i < 10; i++ {
		buffer.Append(chunk)
		if buffer.Len() > BufferCap {
			t.Fatalf("after append %d: len = %d, want <= %d", i, buffer.Len(), BufferCap)
		}
	}
	if buffer.Len() != BufferCap {
		t.Fatalf("len = %d, want exactly %d after overflow", buffer.Len(), BufferCap)
	}
}

func TestBufferTruncationKeepsTail(t *testing.T) {
	buffer := NewBuffer()
	buffer.Append(strings.Repeat("a", BufferCap))
	buffer.Append("the end marker")

	if !buffer.Contains("the end marker") {
		t.Fatal("tail content lost during truncation")
	}
	if strings.HasPrefix(buffer.String(), "the") {
		t.Fatal("buffer should still begin with old content")
	}
}

func TestBufferTruncationNeverSplitsRune(t *testing.T) {
	buffer := NewBuffer()
	// Multi-byte content sized so the naive cut point lands mid-rune.
	buffer.Append(strings.Repeat("世界", BufferCap/4))
	for i := 0; i < 50; i++ {
		buffer.Append("界")
		first, _ := utf8.DecodeRuneInString(buffer.String())
		if first == utf8.RuneError {
			t.Fatalf("after append %d: buffer starts mid-character", i)
		}
		if !utf8.ValidString(buffer.String()) {
			t.Fatalf("after append %d: buffer is not valid UTF-8", i)
		}
	}
}

func TestBufferConsumeBlocksRefire(t *testing.T) {
	buffer := NewBuffer()
	buffer.Append("before Enter Restore code after")
	if !buffer.Contains("Enter Restore code") {
		t.Fatal("phrase should be present")
	}

	buffer.Consume("Enter Restore code", "[ack:restore_code]")
	if buffer.Contains("Enter Restore code") {
		t.Fatal("phrase should be consumed")
	}
	if !buffer.Contains("before ") || !buffer.Contains(" after") {
		t.Fatal("surrounding context should survive consumption")
	}

	// Later appends must not resurrect the consumed occurrence.
	buffer.Append(" more output")
	if buffer.Contains("Enter Restore code") {
		t.Fatal("consumed phrase reappeared")
	}
}

func TestBufferContainsFold(t *testing.T) {
	buffer := NewBuffer()
	buffer.Append("Everything was a SUCCESS today")
	if !buffer.ContainsFold("success") {
		t.Fatal("case-insensitive match failed")
	}
	if buffer.Contains("success") {
		t.Fatal("case-sensitive match should fail")
	}
}
