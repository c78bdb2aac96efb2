// Package ring provides a fixed-capacity ring buffer for sensor
// history, with wraparound owned by the type rather than scattered
// modulo arithmetic at call sites.
package ring

// Ring is a fixed-capacity buffer of float64 samples.
type Ring struct {
	buf   []float64
	next  int
	count int
}

// New creates a ring with the given capacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v, overwriting the oldest sample once full.
func (r *Ring) Push(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len reports how many samples are stored, at most the capacity.
func (r *Ring) Len() int { return r.count }

// Cap reports the capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Window returns up to n of the most recent samples, oldest first. The
// returned slice is freshly allocated.
func (r *Ring) Window(n int) []float64 {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Last returns the most recent sample, or zero when empty.
func (r *Ring) Last() float64 {
	if r.count == 0 {
		return 0
	}
	idx := r.next - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx]
}
