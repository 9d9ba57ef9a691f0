package synthesis

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one piece of text waiting to be spoken.
type Job struct {
	ID          uuid.UUID
	Text        string
	SubmittedAt time.Time
}

// Engine turns text into an MP3 clip.
type Engine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Interface accepts text to speak in the background. Submit never blocks and
// never fails: synthesis and playback errors are logged and swallowed.
type Interface interface {
	Submit(text string)
	Close(ctx context.Context) error
}
