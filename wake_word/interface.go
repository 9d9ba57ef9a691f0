package wake_word

import (
	"context"

	"voice-dispatcher/speech_extraction"
)

// Interface classifies one capture frame. False negatives are expected and
// harmless: the next frame is simply checked again.
type Interface interface {
	Detect(ctx context.Context, frame speech_extraction.Frame) bool
}
