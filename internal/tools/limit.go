package tools

import (
	"fmt"
	"sync"
	"unicode/utf8"
)

// cappedBuffer keeps the first limit bytes written to it and counts the rest.
// Stdout and stderr share one instance, so writes are serialized.
type cappedBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
	total int
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit, buf: make([]byte, 0, min(limit, 4096))}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += len(p)
	if room := b.limit - len(b.buf); room > 0 {
		b.buf = append(b.buf, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total > b.limit
}

// String returns the captured text, marked when output was dropped.
func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total <= b.limit {
		return string(b.buf)
	}
	return truncateNote(string(b.buf), b.total)
}

// truncate caps s at limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	return truncateNote(s[:limit], len(s)), true
}

func truncateNote(head string, total int) string {
	// drop at most one partial rune at the cut
	for i := 0; i < utf8.UTFMax-1 && len(head) > 0; i++ {
		r, size := utf8.DecodeLastRuneInString(head)
		if r != utf8.RuneError || size != 1 {
			break
		}
		head = head[:len(head)-1]
	}
	return fmt.Sprintf("%s\n[output truncated, %d bytes total]", head, total)
}
