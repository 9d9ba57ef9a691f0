package speech_extraction

import (
	"time"

	"github.com/go-audio/audio"

	"voice-dispatcher/ring_buffer"
	"voice-dispatcher/speech_extraction/vad"
)

// segmenter turns a sequence of capture chunks into one utterance.
//
// Speech starts on a chunk that is above the energy threshold and whose
// spectral flux rises by FluxRatio over the background. It ends once the
// energy has stayed below the threshold for QuietTime. All durations are
// measured in captured audio, not wall clock, so the result only depends on
// the samples fed in.
type segmenter struct {
	threshold float64
	fluxRatio float64

	quietLimit  int
	waitLimit   int
	phraseLimit int

	detector *vad.Detector
	preRoll  *ring_buffer.Buffer

	heard        bool
	preRolled    int
	lastFlux     float64
	waited       int
	spoken       int
	quietSamples int

	out []int
}

func newSegmenter(cfg *Config, sampleRate int, threshold float64, maxSilence, maxPhrase time.Duration) *segmenter {
	return &segmenter{
		threshold:   threshold,
		fluxRatio:   cfg.FluxRatio,
		quietLimit:  samplesFor(cfg.QuietTime, sampleRate),
		waitLimit:   samplesFor(maxSilence, sampleRate),
		phraseLimit: samplesFor(maxPhrase, sampleRate),
		detector:    vad.New(cfg.ChunkSize),
		preRoll:     ring_buffer.New(max(samplesFor(cfg.PreRoll, sampleRate), 1)),
	}
}

// push feeds one chunk. It reports true once the utterance is complete and
// returns ErrTimeout if speech never started within the wait limit.
func (s *segmenter) push(chunk []int16) (bool, error) {
	flux := s.detector.Flux(chunk)
	loud := vad.RMS(chunk) >= s.threshold

	if !s.heard {
		s.preRoll.Add(chunk)

		if loud && flux > s.lastFlux*s.fluxRatio {
			s.heard = true
			s.preRolled = s.preRoll.Len()
			s.out = appendSamples(s.out, s.preRoll.Read())
			s.preRoll.Reset()
			s.spoken = len(chunk)

			return s.phraseLimit > 0 && s.spoken >= s.phraseLimit, nil
		}

		s.lastFlux = flux
		s.waited += len(chunk)

		if s.waitLimit > 0 && s.waited >= s.waitLimit {
			return true, ErrTimeout
		}

		return false, nil
	}

	s.out = appendSamples(s.out, chunk)
	s.spoken += len(chunk)

	if loud {
		s.quietSamples = 0
	} else {
		s.quietSamples += len(chunk)
	}

	if s.quietSamples > s.quietLimit {
		return true, nil
	}

	return s.phraseLimit > 0 && s.spoken >= s.phraseLimit, nil
}

func (s *segmenter) buffer(sampleRate int) *audio.IntBuffer {
	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           s.out,
		SourceBitDepth: 16,
	}
}

func appendSamples(dst []int, samples []int16) []int {
	for _, sample := range samples {
		dst = append(dst, int(sample))
	}

	return dst
}

func samplesFor(d time.Duration, sampleRate int) int {
	return int(d.Seconds() * float64(sampleRate))
}
