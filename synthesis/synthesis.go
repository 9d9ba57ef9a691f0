package synthesis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-dispatcher/metrics"
	"voice-dispatcher/playback"
)

const (
	defaultWorkers   = 1
	defaultQueueSize = 16
	defaultTimeout   = 30 * time.Second
)

const (
	statusPlayed  = "played"
	statusFailed  = "failed"
	statusDropped = "dropped"
)

type Config struct {
	Engine Engine
	Player playback.Interface

	// Workers is the number of jobs that may be synthesized and played at
	// once. With one worker clips play in submission order and never overlap.
	Workers   int
	QueueSize int

	// Timeout bounds synthesis plus playback of a single job.
	Timeout time.Duration

	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

type synthImpl struct {
	engine  Engine
	player  playback.Interface
	timeout time.Duration
	metrics *metrics.Recorder
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Job
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is nil")
	}

	if cfg.Player == nil {
		return nil, fmt.Errorf("player is nil")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &synthImpl{
		engine:  cfg.Engine,
		player:  cfg.Player,
		timeout: timeout,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "synthesis").Logger(),
		jobs:    make(chan Job, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		s.wg.Add(1)

		go s.work()
	}

	return s, nil
}

func (s *synthImpl) Submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	job := Job{
		ID:          uuid.New(),
		Text:        text,
		SubmittedAt: time.Now(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn().Str("job", job.ID.String()).Msg("synthesizer closed, dropping job")
		s.metrics.SynthesisJob(statusDropped)

		return
	}

	select {
	case s.jobs <- job:
		s.logger.Debug().Str("job", job.ID.String()).Str("text", text).Msg("job queued")
	default:
		s.logger.Warn().Str("job", job.ID.String()).Str("text", text).Msg("synthesis queue full, dropping job")
		s.metrics.SynthesisJob(statusDropped)
	}
}

func (s *synthImpl) work() {
	defer s.wg.Done()

	for job := range s.jobs {
		s.run(job)
	}
}

func (s *synthImpl) run(job Job) {
	if s.ctx.Err() != nil {
		s.metrics.SynthesisJob(statusDropped)

		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	logger := s.logger.With().Str("job", job.ID.String()).Logger()

	clip, err := s.engine.Synthesize(ctx, job.Text)
	if err != nil {
		logger.Error().Err(err).Msg("synthesis failed")
		s.metrics.SynthesisJob(statusFailed)

		return
	}

	if err := s.player.PlayMP3(ctx, clip); err != nil {
		logger.Error().Err(err).Msg("playback failed")
		s.metrics.SynthesisJob(statusFailed)

		return
	}

	logger.Debug().Dur("latency", time.Since(job.SubmittedAt)).Msg("job played")
	s.metrics.SynthesisJob(statusPlayed)
}

// Close stops accepting jobs and lets the workers drain the queue. If ctx is
// done first, in-flight jobs are cancelled and the remaining ones discarded.
func (s *synthImpl) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return nil
	}

	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()

		return nil
	case <-ctx.Done():
		s.cancel()
		<-done

		return ctx.Err()
	}
}
