package ring_buffer

// Buffer keeps the most recent samples written to it. It is used as the
// pre-roll for utterance capture so the first syllable before speech onset
// is not lost.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	samples []int16
	head    int
	count   int
}

func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}

	return &Buffer{
		samples: make([]int16, size),
	}
}

func (r *Buffer) Add(samples []int16) {
	// only the tail can survive when the input is larger than the buffer
	if len(samples) > len(r.samples) {
		samples = samples[len(samples)-len(r.samples):]
	}

	for _, s := range samples {
		r.samples[r.head] = s
		r.head = (r.head + 1) % len(r.samples)
	}

	r.count += len(samples)
	if r.count > len(r.samples) {
		r.count = len(r.samples)
	}
}

// Read returns the buffered samples, oldest first.
func (r *Buffer) Read() []int16 {
	out := make([]int16, r.count)
	start := (r.head - r.count + len(r.samples)) % len(r.samples)

	for i := 0; i < r.count; i++ {
		out[i] = r.samples[(start+i)%len(r.samples)]
	}

	return out
}

func (r *Buffer) Len() int {
	return r.count
}

func (r *Buffer) Reset() {
	r.head = 0
	r.count = 0
}
