package buffer

import (
	"sync/atomic"
)

// StreamBuffer is the single growable byte region a dispatcher reads into.
//
// Bytes in [consumed, high) have been received but not yet dispatched.
// consumed <= high <= len(buf) holds after every method returns.
type StreamBuffer struct {
	buf      []byte
	consumed int
	high     int
	alloc    func(int) []byte

	grows       atomic.Int64
	compactions atomic.Int64
	capacity    atomic.Int64
}

type Stats struct {
	Capacity    int64
	Grows       int64
	Compactions int64
}

func defaultAlloc(n int) []byte {
	return make([]byte, n)
}

// New allocates a buffer of initialCapacity bytes using alloc, or make when
// alloc is nil.
func New(initialCapacity int, alloc func(int) []byte) *StreamBuffer {
	if alloc == nil {
		alloc = defaultAlloc
	}
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &StreamBuffer{alloc: alloc, buf: alloc(initialCapacity)}
	b.capacity.Store(int64(len(b.buf)))
	return b
}

// Pending returns the received, not yet dispatched bytes. The slice aliases
// the buffer and is invalidated by Reserve.
func (b *StreamBuffer) Pending() []byte {
	return b.buf[b.consumed:b.high]
}

func (b *StreamBuffer) Len() int {
	return b.high - b.consumed
}

func (b *StreamBuffer) Cap() int {
	return len(b.buf)
}

// Free returns the number of bytes that can be read in without moving data.
func (b *StreamBuffer) Free() int {
	return len(b.buf) - b.high
}

// Tail is the writable region past the high-water mark.
func (b *StreamBuffer) Tail() []byte {
	return b.buf[b.high:]
}

// Commit marks n bytes of Tail as received.
func (b *StreamBuffer) Commit(n int) {
	if n < 0 || n > b.Free() {
		panic("buffer: commit out of range")
	}
	b.high += n
}

// Consume marks n pending bytes as dispatched. Once everything is consumed
// both marks rewind to zero, which costs nothing.
func (b *StreamBuffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("buffer: consume out of range")
	}
	b.consumed += n
	if b.consumed == b.high {
		b.consumed, b.high = 0, 0
	}
}

// Reserve makes at least n bytes available in Tail. Pending bytes are slid to
// the front first; the buffer doubles only when sliding cannot free enough.
func (b *StreamBuffer) Reserve(n int) {
	if b.Free() >= n {
		return
	}

	pending := b.Len()
	if len(b.buf)-pending >= n {
		copy(b.buf, b.buf[b.consumed:b.high])
		b.consumed, b.high = 0, pending
		b.compactions.Add(1)
		return
	}

	newCap := 2 * len(b.buf)
	for newCap-pending < n {
		newCap *= 2
	}
	nb := b.alloc(newCap)
	copy(nb, b.buf[b.consumed:b.high])
	b.buf = nb
	b.consumed, b.high = 0, pending
	b.grows.Add(1)
	b.capacity.Store(int64(newCap))
}

// Release drops the storage. The buffer must not be used afterwards.
func (b *StreamBuffer) Release() {
	b.buf = nil
	b.consumed, b.high = 0, 0
	b.capacity.Store(0)
}

// Stats may be called from any goroutine.
func (b *StreamBuffer) Stats() Stats {
	return Stats{
		Capacity:    b.capacity.Load(),
		Grows:       b.grows.Load(),
		Compactions: b.compactions.Load(),
	}
}
