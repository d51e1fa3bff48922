package frame

// Window is a fixed-capacity ring of the most recent samples.
//
// Pushing into a full window evicts the oldest sample. Window is not safe
// for concurrent use; each analysis pass owns its own.
type Window struct {
	buf   []*Sample
	start int
	n     int
}

// NewWindow creates a window holding at most capacity samples.
// Capacities below 1 are raised to 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]*Sample, capacity)}
}

// Push appends a sample and returns the evicted one, if any.
func (w *Window) Push(s *Sample) *Sample {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = s
		w.n++
		return nil
	}
	evicted := w.buf[w.start]
	w.buf[w.start] = s
	w.start = (w.start + 1) % len(w.buf)
	return evicted
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	return w.n
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Back returns the k-th most recent sample: Back(0) is the newest,
// Back(1) the one before it. It returns nil when k is out of range.
func (w *Window) Back(k int) *Sample {
	if k < 0 || k >= w.n {
		return nil
	}
	return w.buf[(w.start+w.n-1-k)%len(w.buf)]
}

// Reset drops every held sample.
func (w *Window) Reset() {
	for i := range w.buf {
		w.buf[i] = nil
	}
	w.start = 0
	w.n = 0
}
