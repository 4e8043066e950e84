package signalfeed

import "sync"

type recentEntry struct {
	Seq  int64
	Data []byte
}

// recentBuffer is a fixed-size ring of the last broadcast envelopes so a
// reconnecting client can catch up from the sequence number it last saw.
type recentBuffer struct {
	mu   sync.RWMutex
	buf  []recentEntry
	pos  int
	full bool
}

func newRecentBuffer(capacity int) *recentBuffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &recentBuffer{buf: make([]recentEntry, capacity)}
}

func (rb *recentBuffer) push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.buf[rb.pos] = recentEntry{Seq: seq, Data: data}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
}

// since returns entries with Seq > after, oldest first.
func (rb *recentBuffer) since(after int64) []recentEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n, start := rb.pos, 0
	if rb.full {
		n, start = len(rb.buf), rb.pos
	}
	var out []recentEntry
	for i := 0; i < n; i++ {
		e := rb.buf[(start+i)%len(rb.buf)]
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

func (rb *recentBuffer) len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}
