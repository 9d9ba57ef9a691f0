package vad

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Detector computes the spectral flux between consecutive audio chunks.
// A sharp rise in flux marks the start of speech and a sharp drop marks its
// end, which is how utterance boundaries are found.
type Detector struct {
	size     int
	window   []float64
	spectrum []float64
	primed   bool
}

func New(size int) *Detector {
	if size < 2 {
		size = 2
	}

	return &Detector{
		size:     size,
		window:   window.Hann(size),
		spectrum: make([]float64, size/2+1),
	}
}

// Flux returns the sum of positive magnitude changes across all frequency bins
// since the previous call. The first call only primes the detector and
// returns the total magnitude of the chunk.
func (d *Detector) Flux(samples []int16) float64 {
	in := make([]float64, d.size)
	for i := 0; i < d.size && i < len(samples); i++ {
		in[i] = float64(samples[i]) / math.MaxInt16 * d.window[i]
	}

	bins := fft.FFTReal(in)

	var flux float64

	for i := range d.spectrum {
		magnitude := cmplx.Abs(bins[i])

		diff := magnitude
		if d.primed {
			diff = magnitude - d.spectrum[i]
		}

		if diff > 0 {
			flux += diff
		}

		d.spectrum[i] = magnitude
	}

	d.primed = true

	return flux
}

func (d *Detector) Reset() {
	for i := range d.spectrum {
		d.spectrum[i] = 0
	}

	d.primed = false
}

// RMS returns the root mean square amplitude of a chunk in raw int16 units,
// the same scale as a recognizer energy threshold.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
