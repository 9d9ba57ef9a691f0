package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-dispatcher/actions"
	"voice-dispatcher/command_router"
	"voice-dispatcher/metrics"
	"voice-dispatcher/playback"
	"voice-dispatcher/speech_extraction"
	"voice-dispatcher/speech_to_text"
	"voice-dispatcher/wake_word"
)

const (
	defaultSampleRate        = 16000
	defaultFrameSize         = 32000
	defaultFrameTimeout      = 5 * time.Second
	defaultMaxSilence        = 5 * time.Second
	defaultMaxPhrase         = 10 * time.Second
	defaultTranscribeTimeout = 15 * time.Second
	defaultShutdownGrace     = 5 * time.Second
	defaultCueName           = "yes"
	defaultLocale            = "en-US"

	msgReprompt     = "I didn't catch that. Please say it again."
	msgServiceError = "Speech service is unavailable."
)

type Config struct {
	Source      speech_extraction.Interface
	Detector    wake_word.Interface
	Transcriber speech_to_text.Interface
	Router      command_router.Interface
	Dispatcher  actions.Interface
	Speaker     actions.Speaker
	Cue         playback.CuePlayer

	CueName  string
	Greeting string
	Locale   string

	SampleRate int
	FrameSize  int

	// FrameTimeout bounds a single wake frame read.
	FrameTimeout time.Duration
	// MaxSilence is how long a command may take to start, MaxPhrase how
	// long it may last.
	MaxSilence        time.Duration
	MaxPhrase         time.Duration
	TranscribeTimeout time.Duration

	// ShutdownGrace is how long teardown waits for running dispatches.
	ShutdownGrace time.Duration

	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

// lease grants the right to read from the capture stream. Exactly one lease
// exists per ListenLoop and it is only ever held by one loop.
type lease struct {
	stream speech_extraction.Stream
}

type coordinatorImpl struct {
	source      speech_extraction.Interface
	detector    wake_word.Interface
	transcriber speech_to_text.Interface
	router      command_router.Interface
	dispatcher  actions.Interface
	speaker     actions.Speaker
	cue         playback.CuePlayer

	cueName           string
	greeting          string
	locale            string
	sampleRate        int
	frameSize         int
	frameTimeout      time.Duration
	maxSilence        time.Duration
	maxPhrase         time.Duration
	transcribeTimeout time.Duration
	shutdownGrace     time.Duration

	metrics *metrics.Recorder
	logger  zerolog.Logger

	mu      sync.Mutex
	mode    Mode
	signals Signals

	onTransition func(Signals)

	dispatches sync.WaitGroup
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	switch {
	case cfg.Source == nil:
		return nil, fmt.Errorf("source is nil")
	case cfg.Detector == nil:
		return nil, fmt.Errorf("detector is nil")
	case cfg.Transcriber == nil:
		return nil, fmt.Errorf("transcriber is nil")
	case cfg.Router == nil:
		return nil, fmt.Errorf("router is nil")
	case cfg.Dispatcher == nil:
		return nil, fmt.Errorf("dispatcher is nil")
	case cfg.Speaker == nil:
		return nil, fmt.Errorf("speaker is nil")
	case cfg.Cue == nil:
		return nil, fmt.Errorf("cue is nil")
	}

	c := &coordinatorImpl{
		source:            cfg.Source,
		detector:          cfg.Detector,
		transcriber:       cfg.Transcriber,
		router:            cfg.Router,
		dispatcher:        cfg.Dispatcher,
		speaker:           cfg.Speaker,
		cue:               cfg.Cue,
		cueName:           orDefault(cfg.CueName, defaultCueName),
		greeting:          cfg.Greeting,
		locale:            orDefault(cfg.Locale, defaultLocale),
		sampleRate:        orDefault(cfg.SampleRate, defaultSampleRate),
		frameSize:         orDefault(cfg.FrameSize, defaultFrameSize),
		frameTimeout:      orDefault(cfg.FrameTimeout, defaultFrameTimeout),
		maxSilence:        orDefault(cfg.MaxSilence, defaultMaxSilence),
		maxPhrase:         orDefault(cfg.MaxPhrase, defaultMaxPhrase),
		transcribeTimeout: orDefault(cfg.TranscribeTimeout, defaultTranscribeTimeout),
		shutdownGrace:     orDefault(cfg.ShutdownGrace, defaultShutdownGrace),
		metrics:           cfg.Metrics,
		logger:            cfg.Logger.With().Str("component", "listener").Logger(),
		mode:              ModeWake,
		signals:           Signals{WakeActive: true},
	}

	return c, nil
}

func orDefault[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}

	return value
}

func (c *coordinatorImpl) Signals() Signals {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.signals
}

func (c *coordinatorImpl) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mode
}

// transition flips both signals in one step so no observer ever sees both
// set or both cleared.
func (c *coordinatorImpl) transition(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	c.signals = Signals{
		WakeActive:    mode == ModeWake,
		CommandActive: mode == ModeCommand,
	}

	if c.onTransition != nil {
		c.onTransition(c.signals)
	}
	c.mu.Unlock()

	c.metrics.SetCommandMode(mode == ModeCommand)
	c.logger.Info().Stringer("mode", mode).Msg("mode changed")
}

func (c *coordinatorImpl) ListenLoop(ctx context.Context) error {
	stream, err := c.source.OpenStream(ctx, c.sampleRate, c.frameSize)
	if err != nil {
		return fmt.Errorf("open capture stream: %w", err)
	}

	if t, ok := stream.(interface{ Threshold() float64 }); ok {
		c.logger.Info().Float64("energy_threshold", t.Threshold()).Msg("capture stream open")
	}

	c.transition(ModeWake)

	if c.greeting != "" {
		c.speaker.Submit(c.greeting)
	}

	// dispatches outlive the listen context so teardown can let them finish
	dispatchCtx, cancelDispatches := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDispatches()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	toWake := make(chan lease, 1)
	toCommand := make(chan lease, 1)
	toWake <- lease{stream: stream}

	errs := make(chan error, 2)

	go func() { errs <- c.wakeLoop(loopCtx, toWake, toCommand) }()
	go func() { errs <- c.commandLoop(loopCtx, dispatchCtx, toCommand, toWake) }()

	c.logger.Info().Msg("starting to listen")

	loopErr := <-errs
	cancel()

	if err := <-errs; loopErr == nil {
		loopErr = err
	}

	c.teardown(stream)

	return loopErr
}

func (c *coordinatorImpl) teardown(stream speech_extraction.Stream) {
	if err := stream.Pause(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to pause capture")
	}

	if err := stream.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to close capture")
	}

	done := make(chan struct{})

	go func() {
		c.dispatches.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.shutdownGrace):
		c.logger.Warn().Dur("grace", c.shutdownGrace).Msg("abandoning running dispatches")
	}

	c.logger.Info().Msg("stopped listening")
}

func (c *coordinatorImpl) wakeLoop(ctx context.Context, in <-chan lease, out chan<- lease) error {
	for {
		var l lease

		select {
		case <-ctx.Done():
			return nil
		case l = <-in:
		}

		if err := l.stream.Resume(); err != nil {
			return fmt.Errorf("resume capture for wake: %w", err)
		}

		c.logger.Debug().Msg("waiting for wake")

		triggered, err := c.waitForWake(ctx, l.stream)
		if err != nil || !triggered {
			return err
		}

		c.metrics.WakeTriggered()

		c.cue.PlayCue(c.cueName)

		if err := l.stream.Pause(); err != nil {
			return fmt.Errorf("release capture after wake: %w", err)
		}

		c.transition(ModeCommand)

		out <- l
	}
}

// waitForWake reads frames until the detector fires. It reports false
// without an error when ctx ends first.
func (c *coordinatorImpl) waitForWake(ctx context.Context, stream speech_extraction.Stream) (bool, error) {
	for {
		frame, err := stream.ReadFrame(ctx, c.frameTimeout)

		switch {
		case ctx.Err() != nil:
			return false, nil
		case errors.Is(err, speech_extraction.ErrTimeout):
			continue
		case err != nil:
			return false, fmt.Errorf("read wake frame: %w", err)
		}

		if c.detector.Detect(ctx, frame) {
			return true, nil
		}
	}
}

func (c *coordinatorImpl) commandLoop(ctx, dispatchCtx context.Context, in <-chan lease, out chan<- lease) error {
	for {
		var l lease

		select {
		case <-ctx.Done():
			return nil
		case l = <-in:
		}

		res, err := c.captureCommand(ctx, l.stream)
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return nil
		}

		switch res.Kind {
		case speech_to_text.KindText:
			c.metrics.CommandOutcome(res.Kind.String())
			c.dispatch(dispatchCtx, res.Text)
		case speech_to_text.KindNoSpeech:
			c.metrics.CommandOutcome(res.Kind.String())
			c.logger.Info().Msg("no command heard")
			c.speaker.Submit(msgReprompt)
		case speech_to_text.KindServiceError:
			c.metrics.CommandOutcome(res.Kind.String())
			c.logger.Error().Err(res.Err).Msg("speech service error")
			c.speaker.Submit(msgServiceError)
		default:
			c.logger.Warn().Stringer("outcome", res.Kind).Msg("transcription produced nothing to act on")
		}

		c.transition(ModeWake)

		out <- l
	}
}

// captureCommand reads one utterance and transcribes it. Capture is always
// released before transcription starts. Errors are fatal stream failures.
func (c *coordinatorImpl) captureCommand(ctx context.Context, stream speech_extraction.Stream) (speech_to_text.Result, error) {
	if err := stream.Resume(); err != nil {
		return speech_to_text.Result{}, fmt.Errorf("resume capture for command: %w", err)
	}

	c.logger.Debug().Msg("expecting a command")

	utterance, readErr := stream.ReadUtterance(ctx, c.maxSilence, c.maxPhrase)

	if err := stream.Pause(); err != nil {
		return speech_to_text.Result{}, fmt.Errorf("release capture after command: %w", err)
	}

	switch {
	case ctx.Err() != nil:
		return speech_to_text.Result{}, nil
	case errors.Is(readErr, speech_extraction.ErrTimeout):
		return speech_to_text.NoSpeech(), nil
	case readErr != nil:
		return speech_to_text.Result{}, fmt.Errorf("read command: %w", readErr)
	}

	tctx, cancel := context.WithTimeout(ctx, c.transcribeTimeout)
	defer cancel()

	started := time.Now()
	res := c.transcriber.Transcribe(tctx, utterance, c.locale)
	c.metrics.ObserveTranscription(time.Since(started))

	c.logger.Info().
		Stringer("outcome", res.Kind).
		Str("text", res.Text).
		Dur("took", time.Since(started)).
		Msg("command transcribed")

	return res, nil
}

// dispatch routes the command and hands it to the dispatcher without
// waiting, so slow handlers never hold up capture.
func (c *coordinatorImpl) dispatch(ctx context.Context, text string) {
	intent := c.router.Route(text)

	c.dispatches.Add(1)

	go func() {
		defer c.dispatches.Done()

		c.dispatcher.Dispatch(ctx, intent)
	}()
}
