// Package bounded provides fixed-capacity containers that enforce their
// bound on every insert.
package bounded

// Ring is a fixed-capacity FIFO buffer. Pushing onto a full ring evicts the
// oldest item. Every pushed item gets a monotonically increasing sequence
// number that stays valid until the item is evicted.
//
// Ring is not safe for concurrent use; owners guard it with their own lock.
type Ring[T any] struct {
	buf  []T
	head int
	size int
	next uint64
}

// New creates a ring holding at most capacity items. Capacities below one are raised to one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Len returns the number of items held.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the maximum number of items.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push appends v and returns its sequence number. When the ring was full the
// oldest item is evicted and returned with evicted set to true.
func (r *Ring[T]) Push(v T) (seq uint64, old T, evicted bool) {
	seq = r.next
	r.next++
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return seq, old, false
	}
	old = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return seq, old, true
}

// First returns the sequence number of the oldest item held.
func (r *Ring[T]) First() uint64 { return r.next - uint64(r.size) }

func (r *Ring[T]) index(seq uint64) (int, bool) {
	first := r.First()
	if seq < first || seq >= r.next {
		return 0, false
	}
	return (r.head + int(seq-first)) % len(r.buf), true
}

// At returns the item with the given sequence number if it is still held.
func (r *Ring[T]) At(seq uint64) (T, bool) {
	i, ok := r.index(seq)
	if !ok {
		var zero T
		return zero, false
	}
	return r.buf[i], true
}

// Set replaces the item with the given sequence number. It reports false if
// the item has been evicted.
func (r *Ring[T]) Set(seq uint64, v T) bool {
	i, ok := r.index(seq)
	if !ok {
		return false
	}
	r.buf[i] = v
	return true
}

// Each calls fn for every item from oldest to newest until fn returns false.
func (r *Ring[T]) Each(fn func(seq uint64, v T) bool) {
	first := r.First()
	for k := 0; k < r.size; k++ {
		if !fn(first+uint64(k), r.buf[(r.head+k)%len(r.buf)]) {
			return
		}
	}
}

// Items returns a copy of the held items from oldest to newest.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.size)
	r.Each(func(_ uint64, v T) bool {
		out = append(out, v)
		return true
	})
	return out
}
