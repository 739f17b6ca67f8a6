package session

// History is a fixed-capacity ring of confidence values. It always holds
// exactly Cap() values; the oldest is evicted on every Push.
type History struct {
	values []float64
	index  int // next write position, also the oldest value
}

// NewHistory creates a History of the given capacity filled with zeros.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{values: make([]float64, size)}
}

// Push appends v, evicting the oldest value.
func (h *History) Push(v float64) {
	h.values[h.index] = v
	h.index = (h.index + 1) % len(h.values)
}

// Values returns a copy of the ring ordered oldest to newest.
func (h *History) Values() []float64 {
	out := make([]float64, len(h.values))
	n := copy(out, h.values[h.index:])
	copy(out[n:], h.values[:h.index])
	return out
}

// Latest returns the most recently pushed value.
func (h *History) Latest() float64 {
	i := h.index - 1
	if i < 0 {
		i = len(h.values) - 1
	}
	return h.values[i]
}

// Len returns the number of values held, which is always the capacity.
func (h *History) Len() int {
	return len(h.values)
}

// Mean returns the average over the whole window, zeros included.
func (h *History) Mean() float64 {
	var sum float64
	for _, v := range h.values {
		sum += v
	}
	return sum / float64(len(h.values))
}
