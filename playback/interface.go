package playback

import "context"

// Interface plays one synthesized clip and blocks until it has finished or
// ctx is done.
type Interface interface {
	PlayMP3(ctx context.Context, clip []byte) error
}

// CuePlayer plays short prompt sounds without blocking the caller.
type CuePlayer interface {
	PlayCue(name string)
}
