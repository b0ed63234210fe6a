package anomaly

// ring is a fixed-capacity rolling window. Appending past capacity evicts
// the oldest entry.
type ring[T any] struct {
	buf   []T
	head  int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) Append(v T) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = v
		r.count++
		return
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring[T]) Len() int { return r.count }

// Values returns the window oldest-first.
func (r *ring[T]) Values() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Last returns the most recent n entries, oldest-first. n larger than the
// window returns the whole window.
func (r *ring[T]) Last(n int) []T {
	if n >= r.count {
		return r.Values()
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+r.count-n+i)%len(r.buf)]
	}
	return out
}
