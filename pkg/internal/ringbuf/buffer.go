package ringbuf

// New creates a new fixed-size queue with s specified size.
func New[T any](sz int) *Buffer[T] {
	return &Buffer[T]{
		buf: make([]T, sz),
	}
}

// Buffer is a bounded FIFO. Unlike a history buffer it never overwrites:
// pushing into a full buffer drops the new element and counts it.
type Buffer[T any] struct {
	buf     []T
	write   int
	read    int
	full    bool
	dropped uint64
}

// Size returns underlying size of the buffer.
func (b *Buffer[T]) Size() int {
	return len(b.buf)
}

// Len returns a number of elements currently in the buffer.
func (b *Buffer[T]) Len() int {
	if b.read == b.write {
		if b.full {
			return len(b.buf)
		}
		return 0
	}
	if b.read < b.write {
		return b.write - b.read
	}
	return b.write - b.read + len(b.buf)
}

// Dropped returns how many elements were rejected because the buffer was full.
func (b *Buffer[T]) Dropped() uint64 {
	return b.dropped
}

// TryPop returns the first element and consumes it. Function returns false if the buffer is empty.
func (b *Buffer[T]) TryPop() (T, bool) {
	if !b.full && b.read == b.write {
		var zero T
		return zero, false
	}
	b.full = false
	v := b.buf[b.read]
	var zero T
	b.buf[b.read] = zero
	b.read = (b.read + 1) % len(b.buf)
	return v, true
}

// TryPush adds an element into the end of the buffer. It returns false and drops v if the buffer is full.
func (b *Buffer[T]) TryPush(v T) bool {
	if b.full || len(b.buf) == 0 {
		b.dropped++
		return false
	}
	b.buf[b.write] = v
	b.write = (b.write + 1) % len(b.buf)
	b.full = b.write == b.read
	return true
}

// Reset drops all buffered elements.
func (b *Buffer[T]) Reset() {
	clear(b.buf)
	b.read, b.write, b.full = 0, 0, false
}
