package speech_extraction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"voice-dispatcher/speech_extraction/vad"
)

const (
	defaultChunkSize = 1600
	defaultFluxRatio = 1.75
	defaultQuietTime = 800 * time.Millisecond
	defaultPreRoll   = 300 * time.Millisecond

	// headroom over the measured ambient level when calibrating
	calibrationFactor = 1.5

	chunkQueueSize = 64
)

// Config tunes capture and speech boundary detection. It replaces any
// process-wide recognizer state: every stream opened by a source carries its
// own copy.
type Config struct {
	DeviceName string
	ChunkSize  int

	EnergyThreshold  float64
	DynamicThreshold bool
	Calibration      time.Duration

	FluxRatio float64
	QuietTime time.Duration
	PreRoll   time.Duration

	// RecordDir enables writing every captured utterance as a WAV file.
	RecordDir string
	FileSys   afero.Fs

	Logger zerolog.Logger
}

type sourceImpl struct {
	cfg  Config
	open func(cfg *Config, sampleRate int) (device, error)
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.RecordDir != "" && cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil but recordDir is set")
	}

	c := *cfg
	applyDefaults(&c)

	return &sourceImpl{
		cfg:  c,
		open: openPortaudio,
	}, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}

	if cfg.FluxRatio <= 0 {
		cfg.FluxRatio = defaultFluxRatio
	}

	if cfg.QuietTime <= 0 {
		cfg.QuietTime = defaultQuietTime
	}

	if cfg.PreRoll <= 0 {
		cfg.PreRoll = defaultPreRoll
	}
}

// OpenStream acquires the capture device. Failure here is a startup failure.
// When a calibration period is configured the stream listens to the room
// once before it is returned, paused.
func (s *sourceImpl) OpenStream(ctx context.Context, sampleRate, frameSize int) (Stream, error) {
	if sampleRate <= 0 || frameSize <= 0 {
		return nil, fmt.Errorf("invalid stream parameters: sampleRate=%d frameSize=%d", sampleRate, frameSize)
	}

	dev, err := s.open(&s.cfg, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("open capture device: %w", err)
	}

	st := newStream(dev, &s.cfg, sampleRate, frameSize)

	if s.cfg.Calibration > 0 {
		if err := st.calibrate(ctx, s.cfg.Calibration); err != nil {
			_ = st.Close()

			return nil, fmt.Errorf("calibrate capture device: %w", err)
		}
	}

	return st, nil
}

// device is a blocking chunk reader over a capture device.
type device interface {
	Start() error
	Stop() error
	Read() ([]int16, error)
	Close() error
}

type streamImpl struct {
	dev        device
	cfg        *Config
	logger     zerolog.Logger
	recorder   *recorder
	sampleRate int
	frameSize  int

	mu        sync.Mutex
	running   bool
	closed    bool
	chunks    chan []int16
	stop      chan struct{}
	pumpDone  chan struct{}
	pumpErr   error
	pending   []int16
	threshold float64
}

func newStream(dev device, cfg *Config, sampleRate, frameSize int) *streamImpl {
	st := &streamImpl{
		dev:        dev,
		cfg:        cfg,
		logger:     cfg.Logger.With().Str("component", "capture").Logger(),
		sampleRate: sampleRate,
		frameSize:  frameSize,
		threshold:  cfg.EnergyThreshold,
	}

	if cfg.RecordDir != "" {
		st.recorder = newRecorder(cfg.FileSys, cfg.RecordDir, sampleRate)
	}

	return st
}

func (s *streamImpl) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.running {
		return nil
	}

	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	s.chunks = make(chan []int16, chunkQueueSize)
	s.stop = make(chan struct{})
	s.pumpDone = make(chan struct{})
	s.pumpErr = nil
	s.running = true

	go s.pump(s.chunks, s.stop, s.pumpDone)

	s.logger.Debug().Msg("capture resumed")

	return nil
}

func (s *streamImpl) pump(chunks chan<- []int16, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(chunks)

	for {
		select {
		case <-stop:
			return
		default:
		}

		samples, err := s.dev.Read()
		if err != nil {
			s.mu.Lock()
			s.pumpErr = err
			s.mu.Unlock()

			s.logger.Error().Err(err).Msg("capture read failed")

			return
		}

		select {
		case chunks <- samples:
		case <-stop:
			return
		}
	}
}

// Pause waits for the pump to finish its current read, stops the device and
// drops everything that was captured but not consumed. Once Pause returns no
// audio from before the call can be read again.
func (s *streamImpl) Pause() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()

		return nil
	}

	s.running = false
	close(s.stop)
	done := s.pumpDone
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = nil
	s.pending = nil

	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("stop capture: %w", err)
	}

	s.logger.Debug().Msg("capture paused")

	return nil
}

func (s *streamImpl) Close() error {
	if err := s.Pause(); err != nil {
		s.logger.Warn().Err(err).Msg("pause before close failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	return s.dev.Close()
}

func (s *streamImpl) source() (<-chan []int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if !s.running {
		return nil, ErrPaused
	}

	return s.chunks, nil
}

// drained reports why the chunk channel closed.
func (s *streamImpl) drained() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pumpErr != nil {
		return fmt.Errorf("capture: %w", s.pumpErr)
	}

	if s.closed {
		return ErrClosed
	}

	return ErrPaused
}

func (s *streamImpl) ReadFrame(ctx context.Context, timeout time.Duration) (Frame, error) {
	chunks, err := s.source()
	if err != nil {
		return Frame{}, err
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for len(s.pending) < s.frameSize {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-deadline:
			return Frame{}, ErrTimeout
		case chunk, ok := <-chunks:
			if !ok {
				return Frame{}, s.drained()
			}

			s.pending = append(s.pending, chunk...)
		}
	}

	samples := make([]int16, s.frameSize)
	copy(samples, s.pending)
	s.pending = append(s.pending[:0], s.pending[s.frameSize:]...)

	return Frame{Samples: samples, SampleRate: s.sampleRate}, nil
}

func (s *streamImpl) ReadUtterance(ctx context.Context, maxSilence, maxPhrase time.Duration) (*audio.IntBuffer, error) {
	chunks, err := s.source()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	threshold := s.threshold
	leftover := s.pending
	s.pending = nil
	s.mu.Unlock()

	seg := newSegmenter(s.cfg, s.sampleRate, threshold, maxSilence, maxPhrase)

	// a stalled device must not hold the command window open forever
	var stall <-chan time.Time
	if guard := maxSilence + maxPhrase; guard > 0 {
		timer := time.NewTimer(guard + time.Second)
		defer timer.Stop()
		stall = timer.C
	}

	if len(leftover) > 0 {
		done, err := seg.push(leftover)
		if err != nil {
			return nil, err
		}

		if done {
			return s.finish(seg), nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stall:
			if !seg.heard {
				return nil, ErrTimeout
			}

			return s.finish(seg), nil
		case chunk, ok := <-chunks:
			if !ok {
				return nil, s.drained()
			}

			done, err := seg.push(chunk)
			if err != nil {
				return nil, err
			}

			if done {
				return s.finish(seg), nil
			}
		}
	}
}

func (s *streamImpl) finish(seg *segmenter) *audio.IntBuffer {
	buf := seg.buffer(s.sampleRate)

	s.logger.Debug().
		Int("samples", len(buf.Data)).
		Int("pre_roll", seg.preRolled).
		Msg("utterance captured")

	if s.recorder != nil {
		name, err := s.recorder.Write(buf)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to record utterance")
		} else {
			s.logger.Debug().Str("file", name).Msg("utterance recorded")
		}
	}

	return buf
}

// calibrate measures the ambient level for the given duration and, with
// dynamic thresholding enabled, raises the energy threshold above it.
func (s *streamImpl) calibrate(ctx context.Context, d time.Duration) error {
	if err := s.Resume(); err != nil {
		return err
	}

	chunks, err := s.source()
	if err != nil {
		return err
	}

	var (
		sum    float64
		count  int
		needed = samplesFor(d, s.sampleRate)
		read   int
	)

	for read < needed {
		select {
		case <-ctx.Done():
			_ = s.Pause()

			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				err := s.drained()
				_ = s.Pause()

				return err
			}

			sum += vad.RMS(chunk)
			count++
			read += len(chunk)
		}
	}

	if err := s.Pause(); err != nil {
		return err
	}

	ambient := sum / float64(max(count, 1))

	s.mu.Lock()
	if s.cfg.DynamicThreshold && ambient*calibrationFactor > s.threshold {
		s.threshold = ambient * calibrationFactor
	}
	threshold := s.threshold
	s.mu.Unlock()

	s.logger.Info().
		Float64("ambient", ambient).
		Float64("threshold", threshold).
		Msg("calibrated capture device")

	return nil
}

// Threshold returns the energy threshold currently used for speech onset.
func (s *streamImpl) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.threshold
}

var _ Stream = (*streamImpl)(nil)
