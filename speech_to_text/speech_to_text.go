package speech_to_text

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/go-audio/audio"
	"github.com/rs/zerolog"
)

// decoder runs the model over normalized mono samples and returns the raw
// segment texts in order.
type decoder interface {
	Decode(samples []float32, language string) ([]string, error)
}

type sttImpl struct {
	decoder decoder
	logger  zerolog.Logger

	// whisper contexts are not safe to run concurrently on one model
	mu sync.Mutex
}

type Config struct {
	Model  whisper.Model
	Logger zerolog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	return &sttImpl{
		decoder: &modelDecoder{model: cfg.Model},
		logger:  cfg.Logger.With().Str("component", "whisper").Logger(),
	}, nil
}

func (stt *sttImpl) Transcribe(ctx context.Context, utterance *audio.IntBuffer, locale string) Result {
	if utterance == nil || len(utterance.Data) == 0 {
		return NoSpeech()
	}

	if err := ctx.Err(); err != nil {
		return ServiceError(err)
	}

	type decoded struct {
		texts []string
		err   error
	}

	// whisper cannot be interrupted, so a deadline only abandons the result
	done := make(chan decoded, 1)

	go func() {
		stt.mu.Lock()
		defer stt.mu.Unlock()

		texts, err := stt.decoder.Decode(normalize(utterance.Data), language(locale))
		done <- decoded{texts: texts, err: err}
	}()

	select {
	case <-ctx.Done():
		stt.logger.Warn().Err(ctx.Err()).Msg("transcription abandoned")

		return ServiceError(ctx.Err())
	case res := <-done:
		if res.err != nil {
			stt.logger.Error().Err(res.err).Msg("error running model")

			return ServiceError(res.err)
		}

		text := joinSegments(res.texts)
		if text == "" {
			return NoSpeech()
		}

		stt.logger.Debug().Str("text", text).Msg("transcribed")

		return Text(text)
	}
}

// joinSegments drops non-speech annotations such as "[BLANK_AUDIO]" or
// "(music)" and segments the model repeated.
func joinSegments(texts []string) string {
	seenText := make(map[string]bool)
	kept := make([]string, 0, len(texts))

	for _, raw := range texts {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}

		if text[0] == '(' || text[0] == '[' || text[len(text)-1] == ')' || text[len(text)-1] == ']' {
			continue
		}

		if seenText[text] {
			continue
		}

		seenText[text] = true
		kept = append(kept, text)
	}

	return strings.Join(kept, " ")
}

func normalize(data []int) []float32 {
	out := make([]float32, len(data))
	for i, sample := range data {
		out[i] = float32(sample) / 32768
	}

	return out
}

// language maps a locale such as "en-US" to the whisper language code.
func language(locale string) string {
	if locale == "" {
		return "en"
	}

	lang, _, _ := strings.Cut(locale, "-")

	return strings.ToLower(lang)
}

type modelDecoder struct {
	model whisper.Model
}

func (d *modelDecoder) Decode(samples []float32, lang string) ([]string, error) {
	context, err := d.model.NewContext()
	if err != nil {
		return nil, err
	}

	if d.model.IsMultilingual() {
		if err := context.SetLanguage(lang); err != nil {
			return nil, fmt.Errorf("set language %q: %w", lang, err)
		}
	}

	if err := context.Process(samples, nil); err != nil {
		return nil, err
	}

	var texts []string

	for {
		segment, err := context.NextSegment()
		if errors.Is(err, io.EOF) {
			return texts, nil
		} else if err != nil {
			return nil, err
		}

		texts = append(texts, segment.Text)
	}
}
