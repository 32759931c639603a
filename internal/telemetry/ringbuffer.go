package telemetry

// RingBuffer keeps the most recent values up to a fixed capacity.
type RingBuffer[T any] struct {
	items []T
	start int
	size  int
}

// NewRingBuffer returns an empty buffer holding at most capacity values.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (b *RingBuffer[T]) Push(v T) {
	if b.size < len(b.items) {
		b.items[(b.start+b.size)%len(b.items)] = v
		b.size++
		return
	}
	b.items[b.start] = v
	b.start = (b.start + 1) % len(b.items)
}

// Items returns the buffered values, oldest first.
func (b *RingBuffer[T]) Items() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.start+i)%len(b.items)]
	}
	return out
}

func (b *RingBuffer[T]) Len() int { return b.size }
func (b *RingBuffer[T]) Cap() int { return len(b.items) }

// Clear drops every value.
func (b *RingBuffer[T]) Clear() {
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.start, b.size = 0, 0
}
