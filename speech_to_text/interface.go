package speech_to_text

import (
	"context"

	"github.com/go-audio/audio"
)

type Kind int

const (
	// KindNone is the zero Result. It carries nothing to act on.
	KindNone Kind = iota
	KindText
	KindNoSpeech
	KindServiceError
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindText:
		return "text"
	case KindNoSpeech:
		return "no_speech"
	case KindServiceError:
		return "service_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one transcription. Text is only set for KindText,
// Err only for KindServiceError.
type Result struct {
	Kind Kind
	Text string
	Err  error
}

func Text(text string) Result {
	return Result{Kind: KindText, Text: text}
}

func NoSpeech() Result {
	return Result{Kind: KindNoSpeech}
}

func ServiceError(err error) Result {
	return Result{Kind: KindServiceError, Err: err}
}

// Interface converts one captured utterance into text. Implementations never
// return errors directly: failures are reported as KindServiceError.
type Interface interface {
	Transcribe(ctx context.Context, utterance *audio.IntBuffer, locale string) Result
}
