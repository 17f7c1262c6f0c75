package core

import (
	"github.com/armon/circbuf"

	"pkt.systems/spyglass/schema"
)

// backgroundBuffer retains the most recent output of a backgrounded
// session in a fixed-capacity ring. The oldest bytes are evicted first
// and writes never block or fail. Callers serialize access; the bridge
// owns the lock.
type backgroundBuffer struct {
	ring *circbuf.Buffer
}

func newBackgroundBuffer(capacity int64) *backgroundBuffer {
	ring, err := circbuf.NewBuffer(capacity)
	if err != nil {
		ring, _ = circbuf.NewBuffer(schema.DefaultBufferBytes)
	}
	return &backgroundBuffer{ring: ring}
}

// Write appends p, evicting the oldest bytes on overflow.
func (b *backgroundBuffer) Write(p []byte) (int, error) {
	return b.ring.Write(p)
}

// Drain returns the retained bytes in arrival order along with the
// count of bytes evicted since the last drain, then resets the buffer.
func (b *backgroundBuffer) Drain() ([]byte, int64) {
	data := append([]byte(nil), b.ring.Bytes()...)
	dropped := b.ring.TotalWritten() - int64(len(data))
	b.ring.Reset()
	return data, dropped
}

// Len reports the number of retained bytes.
func (b *backgroundBuffer) Len() int {
	return len(b.ring.Bytes())
}

// Cap reports the fixed capacity.
func (b *backgroundBuffer) Cap() int64 {
	return b.ring.Size()
}
