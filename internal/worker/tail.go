package worker

import (
	"sync"
	"unicode/utf8"
)

// tailBuffer keeps the last limit bytes written to it, cut at a rune boundary.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	if limit <= 0 {
		limit = 400
	}
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
		for len(t.buf) > 0 && !utf8.RuneStart(t.buf[0]) {
			t.buf = t.buf[1:]
		}
		t.buf = append([]byte(nil), t.buf...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
