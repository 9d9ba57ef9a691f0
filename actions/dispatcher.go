package actions

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"voice-dispatcher/command_router"
	"voice-dispatcher/metrics"
)

const (
	defaultDispatchTimeout = 20 * time.Second

	msgUnrecognized = "Sorry, I did not understand that command."
	msgPanic        = "Something went wrong."
)

type Config struct {
	Site      Handler
	Media     Handler
	News      Handler
	Knowledge Handler
	// General is optional. Without it general queries are unrecognized.
	General Handler

	Speaker Speaker
	Timeout time.Duration
	Metrics *metrics.Recorder
	Logger  zerolog.Logger
}

type dispatcherImpl struct {
	handlers map[command_router.Kind]Handler
	speaker  Speaker
	timeout  time.Duration
	metrics  *metrics.Recorder
	logger   zerolog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Speaker == nil {
		return nil, fmt.Errorf("speaker is nil")
	}

	required := map[string]Handler{
		"site":      cfg.Site,
		"media":     cfg.Media,
		"news":      cfg.News,
		"knowledge": cfg.Knowledge,
	}

	for name, h := range required {
		if h == nil {
			return nil, fmt.Errorf("%s handler is nil", name)
		}
	}

	handlers := map[command_router.Kind]Handler{
		command_router.KindOpenSite:       cfg.Site,
		command_router.KindPlayMedia:      cfg.Media,
		command_router.KindFetchNews:      cfg.News,
		command_router.KindKnowledgeQuery: cfg.Knowledge,
	}

	if cfg.General != nil {
		handlers[command_router.KindGeneralQuery] = cfg.General
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}

	return &dispatcherImpl{
		handlers: handlers,
		speaker:  cfg.Speaker,
		timeout:  timeout,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With().Str("component", "dispatcher").Logger(),
	}, nil
}

func (d *dispatcherImpl) Dispatch(ctx context.Context, intent command_router.Intent) {
	kind := intent.Kind.String()
	logger := d.logger.With().Str("intent", kind).Str("payload", intent.Payload).Logger()

	d.metrics.Intent(kind)

	handler, ok := d.handlers[intent.Kind]
	if !ok {
		logger.Info().Str("text", intent.Text).Msg("command not understood")
		d.speaker.Submit(msgUnrecognized)

		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("handler panicked")
			d.metrics.HandlerFailed(kind)
			d.speaker.Submit(msgPanic)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	started := time.Now()

	if err := handler.Handle(ctx, intent.Payload); err != nil {
		logger.Warn().Err(err).Msg("handler failed")
		d.metrics.HandlerFailed(kind)

		return
	}

	logger.Info().Dur("took", time.Since(started)).Msg("intent handled")
}
