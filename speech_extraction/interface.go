package speech_extraction

import (
	"context"
	"errors"
	"time"

	"github.com/go-audio/audio"
)

var (
	// ErrTimeout is returned when no frame or no speech arrived within the
	// allowed wait. It is never fatal.
	ErrTimeout = errors.New("speech_extraction: timed out waiting for audio")

	// ErrPaused is returned when reading from a stream whose capture is paused.
	ErrPaused = errors.New("speech_extraction: capture is paused")

	ErrClosed = errors.New("speech_extraction: stream closed")
)

// Frame is a fixed-size block of mono 16-bit PCM.
type Frame struct {
	Samples    []int16
	SampleRate int
}

func (f Frame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}

	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Interface opens capture streams on a microphone.
type Interface interface {
	OpenStream(ctx context.Context, sampleRate, frameSize int) (Stream, error)
}

// Stream is a single open capture device. Only one reader may use it at a
// time; Pause and Resume mark the hand-over points between readers.
type Stream interface {
	// ReadFrame blocks until frameSize samples are available or timeout passes.
	ReadFrame(ctx context.Context, timeout time.Duration) (Frame, error)

	// ReadUtterance captures one span of speech. maxSilence bounds the wait for
	// speech to start and maxPhrase bounds the length of the speech itself.
	ReadUtterance(ctx context.Context, maxSilence, maxPhrase time.Duration) (*audio.IntBuffer, error)

	// Pause stops capture and drops any audio that was not read yet.
	Pause() error
	Resume() error
	Close() error
}
