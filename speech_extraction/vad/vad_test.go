package vad

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tone(n int, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	return out
}

func TestDetector_Flux(t *testing.T) {
	t.Run("silence has no flux", func(t *testing.T) {
		d := New(512)

		assert.Zero(t, d.Flux(make([]int16, 512)))
		assert.Zero(t, d.Flux(make([]int16, 512)))
	})

	t.Run("onset of a tone after silence produces a large rise", func(t *testing.T) {
		d := New(512)

		quiet := d.Flux(make([]int16, 512))
		loud := d.Flux(tone(512, 12000))

		assert.Greater(t, loud, quiet)
		assert.Greater(t, loud, 1.0)
	})

	t.Run("a steady tone settles to near zero flux", func(t *testing.T) {
		d := New(512)

		first := d.Flux(tone(512, 12000))
		second := d.Flux(tone(512, 12000))

		assert.Less(t, second, first*0.1)
	})

	t.Run("reset forgets the previous spectrum", func(t *testing.T) {
		d := New(512)

		first := d.Flux(tone(512, 12000))
		d.Reset()

		assert.InDelta(t, first, d.Flux(tone(512, 12000)), 1e-9)
	})
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 1000, RMS([]int16{1000, -1000, 1000, -1000}), 1e-9)
}
