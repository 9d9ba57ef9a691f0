package playback

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const resampleQuality = 4

type decodeFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

// sink renders a stream and returns once it has been fully consumed.
type sink interface {
	Play(ctx context.Context, streamer beep.Streamer, format beep.Format) error
}

type Config struct {
	FileSys afero.Fs
	TempDir string

	// Speed above 1 plays clips faster and higher pitched.
	Speed float64

	Logger zerolog.Logger
}

type playerImpl struct {
	fileSys afero.Fs
	tempDir string
	speed   float64
	decode  decodeFunc
	sink    sink
	logger  zerolog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	if cfg.Speed < 0 {
		return nil, fmt.Errorf("speed must not be negative, got %v", cfg.Speed)
	}

	speed := cfg.Speed
	if speed == 0 {
		speed = 1
	}

	return &playerImpl{
		fileSys: cfg.FileSys,
		tempDir: cfg.TempDir,
		speed:   speed,
		decode:  mp3.Decode,
		sink:    &speakerSink{},
		logger:  cfg.Logger.With().Str("component", "playback").Logger(),
	}, nil
}

// PlayMP3 stages the clip in a temp file, plays it and removes the file.
func (p *playerImpl) PlayMP3(ctx context.Context, clip []byte) error {
	if len(clip) == 0 {
		return nil
	}

	tmp, err := afero.TempFile(p.fileSys, p.tempDir, "speech-*.mp3")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	name := tmp.Name()

	defer func() {
		if err := p.fileSys.Remove(name); err != nil {
			p.logger.Warn().Err(err).Str("file", name).Msg("failed to remove temp file")
		}
	}()

	if _, err := tmp.Write(clip); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	file, err := p.fileSys.Open(name)
	if err != nil {
		return fmt.Errorf("open temp file: %w", err)
	}

	// the decoder owns the file from here on
	streamer, format, err := p.decode(file)
	if err != nil {
		_ = file.Close()

		return fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()

	var out beep.Streamer = streamer
	if p.speed != 1 {
		out = beep.ResampleRatio(resampleQuality, p.speed, streamer)
	}

	return p.sink.Play(ctx, out, format)
}

// speakerSink plays through the process-wide beep speaker. The speaker is
// reinitialized only when the sample rate changes.
type speakerSink struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
}

func (s *speakerSink) init(sampleRate beep.SampleRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sampleRate == sampleRate {
		return nil
	}

	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	s.sampleRate = sampleRate

	return nil
}

func (s *speakerSink) Play(ctx context.Context, streamer beep.Streamer, format beep.Format) error {
	if err := s.init(format.SampleRate); err != nil {
		return err
	}

	done := make(chan struct{})

	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()

		return ctx.Err()
	}
}
