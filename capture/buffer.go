// Package capture owns one physical recording attempt: the real-time
// callback discipline, the serial conversion context, the accumulated
// canonical PCM, and the process-wide audio route coordinator.
package capture

// Buffer accumulates canonical-format PCM bytes. It has no locking of its
// own: every mutation happens on the recorder's serial context, which is
// what makes append and drain race-free.
type Buffer struct {
	data []byte
}

// Append adds converted bytes in arrival order.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Drain atomically swaps out the accumulated bytes and leaves the buffer
// empty. Draining twice without an intervening append yields an empty
// second result.
func (b *Buffer) Drain() []byte {
	out := b.data
	b.data = nil
	return out
}

func (b *Buffer) Len() int {
	return len(b.data)
}
