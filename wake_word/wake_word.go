package wake_word

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-audio/audio"
	"github.com/rs/zerolog"

	"voice-dispatcher/fuzzy_match"
	"voice-dispatcher/speech_extraction"
	"voice-dispatcher/speech_extraction/vad"
	"voice-dispatcher/speech_to_text"
)

const (
	DefaultPhrase = "jarvis"
	DefaultCutoff = 0.8
)

type Config struct {
	Phrases     []string
	Transcriber speech_to_text.Interface
	Locale      string

	// EnergyThreshold skips transcription of frames quieter than this RMS.
	EnergyThreshold float64

	// Cutoff is the similarity a heard word sequence needs to count as a
	// phrase. Zero disables fuzzy matching.
	Cutoff float64

	Logger zerolog.Logger
}

type detectorImpl struct {
	phrases     []string
	transcriber speech_to_text.Interface
	locale      string
	threshold   float64
	cutoff      float64
	logger      zerolog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Transcriber == nil {
		return nil, fmt.Errorf("transcriber is nil")
	}

	if cfg.Cutoff < 0 || cfg.Cutoff > 1 {
		return nil, fmt.Errorf("cutoff must be in [0, 1], got %v", cfg.Cutoff)
	}

	phrases := make([]string, 0, len(cfg.Phrases))
	for _, phrase := range cfg.Phrases {
		if normalized := normalize(phrase); normalized != "" {
			phrases = append(phrases, normalized)
		}
	}

	if len(phrases) == 0 {
		phrases = []string{DefaultPhrase}
	}

	return &detectorImpl{
		phrases:     phrases,
		transcriber: cfg.Transcriber,
		locale:      cfg.Locale,
		threshold:   cfg.EnergyThreshold,
		cutoff:      cfg.Cutoff,
		logger:      cfg.Logger.With().Str("component", "wake_word").Logger(),
	}, nil
}

func (d *detectorImpl) Detect(ctx context.Context, frame speech_extraction.Frame) bool {
	if len(frame.Samples) == 0 || vad.RMS(frame.Samples) < d.threshold {
		return false
	}

	res := d.transcriber.Transcribe(ctx, toBuffer(frame), d.locale)
	if res.Kind != speech_to_text.KindText {
		if res.Kind == speech_to_text.KindServiceError {
			d.logger.Debug().Err(res.Err).Msg("wake transcription failed")
		}

		return false
	}

	heard := normalize(res.Text)

	for _, phrase := range d.phrases {
		if d.matches(heard, phrase) {
			d.logger.Info().Str("heard", res.Text).Str("phrase", phrase).Msg("wake word detected")

			return true
		}
	}

	d.logger.Debug().Str("heard", res.Text).Msg("no wake word")

	return false
}

func (d *detectorImpl) matches(heard, phrase string) bool {
	if strings.Contains(heard, phrase) {
		return true
	}

	if d.cutoff == 0 {
		return false
	}

	// compare against every run of words as long as the phrase
	words := strings.Fields(heard)
	size := len(strings.Fields(phrase))

	for i := 0; i+size <= len(words); i++ {
		if fuzzy_match.Ratio(strings.Join(words[i:i+size], " "), phrase) >= d.cutoff {
			return true
		}
	}

	return false
}

// normalize keeps letters, digits and spaces so punctuation in the
// transcript cannot split or hide the phrase.
func normalize(text string) string {
	kept := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == ' ' {
			return r
		}

		return -1
	}, text)

	return strings.Join(strings.Fields(strings.ToLower(kept)), " ")
}

func toBuffer(frame speech_extraction.Frame) *audio.IntBuffer {
	data := make([]int, len(frame.Samples))
	for i, sample := range frame.Samples {
		data[i] = int(sample)
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  frame.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
}
