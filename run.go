package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/afero"

	"voice-dispatcher/actions"
	"voice-dispatcher/clients/ai_bot"
	"voice-dispatcher/clients/news_api"
	"voice-dispatcher/clients/video_search"
	"voice-dispatcher/clients/wikipedia"
	"voice-dispatcher/command_router"
	"voice-dispatcher/config"
	"voice-dispatcher/listener"
	"voice-dispatcher/metrics"
	"voice-dispatcher/playback"
	"voice-dispatcher/speech_extraction"
	"voice-dispatcher/speech_to_text"
	"voice-dispatcher/synthesis"
	"voice-dispatcher/wake_word"
)

// run wires every component from cfg and listens until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	fs := afero.NewOsFs()

	transcriber, closeSTT, err := newTranscriber(ctx, cfg.STT, logger)
	if err != nil {
		return err
	}
	defer closeSTT.Close()

	engine, closeTTS, err := newEngine(ctx, cfg.TTS)
	if err != nil {
		return err
	}
	defer closeTTS.Close()

	player, err := playback.New(&playback.Config{
		FileSys: fs,
		TempDir: cfg.TTS.TempDir,
		Speed:   cfg.TTS.Speed,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("error with playback.New: %w", err)
	}

	synth, err := synthesis.New(&synthesis.Config{
		Engine:    engine,
		Player:    player,
		Workers:   cfg.TTS.Workers,
		QueueSize: cfg.TTS.QueueSize,
		Timeout:   cfg.TTS.Timeout,
		Metrics:   rec,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("error with synthesis.New: %w", err)
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Command.ShutdownGrace)
		defer cancel()

		if err := synth.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("speech queue not drained")
		}
	}()

	cue, err := playback.NewCuePlayer(&playback.CueConfig{
		Dir:     cfg.Audio.CueDir,
		FileSys: fs,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("error with playback.NewCuePlayer: %w", err)
	}

	source, err := speech_extraction.New(&speech_extraction.Config{
		DeviceName:       cfg.Audio.Device,
		ChunkSize:        cfg.Audio.ChunkSize,
		EnergyThreshold:  cfg.Audio.EnergyThreshold,
		DynamicThreshold: cfg.Audio.DynamicThreshold,
		Calibration:      cfg.Audio.Calibration,
		FluxRatio:        cfg.Audio.FluxRatio,
		QuietTime:        cfg.Audio.QuietTime,
		PreRoll:          cfg.Audio.PreRoll,
		RecordDir:        cfg.Audio.RecordDir,
		FileSys:          fs,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("error with speech_extraction.New: %w", err)
	}

	detector, err := wake_word.New(&wake_word.Config{
		Phrases:         cfg.Wake.Phrases,
		Transcriber:     transcriber,
		Locale:          cfg.Command.Locale,
		EnergyThreshold: cfg.Wake.EnergyThreshold,
		Cutoff:          cfg.Wake.Cutoff,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("error with wake_word.New: %w", err)
	}

	router, err := newRouter(cfg, logger)
	if err != nil {
		return err
	}

	dispatcher, err := newDispatcher(cfg, synth, rec, logger)
	if err != nil {
		return err
	}

	coordinator, err := listener.New(&listener.Config{
		Source:            source,
		Detector:          detector,
		Transcriber:       transcriber,
		Router:            router,
		Dispatcher:        dispatcher,
		Speaker:           synth,
		Cue:               cue,
		CueName:           cfg.Wake.Cue,
		Greeting:          cfg.Wake.Greeting,
		Locale:            cfg.Command.Locale,
		SampleRate:        cfg.Audio.SampleRate,
		FrameSize:         cfg.Wake.FrameSize,
		FrameTimeout:      cfg.Wake.FrameTimeout,
		MaxSilence:        cfg.Command.MaxSilence,
		MaxPhrase:         cfg.Command.MaxPhrase,
		TranscribeTimeout: cfg.Command.TranscribeTimeout,
		ShutdownGrace:     cfg.Command.ShutdownGrace,
		Metrics:           rec,
		Logger:            logger,
	})
	if err != nil {
		return fmt.Errorf("error with listener.New: %w", err)
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	return coordinator.ListenLoop(ctx)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newTranscriber(ctx context.Context, cfg config.STTConfig, logger zerolog.Logger) (speech_to_text.Interface, io.Closer, error) {
	switch cfg.Provider {
	case "google":
		client, err := speech_to_text.DialGoogle(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}

		stt, err := speech_to_text.NewGoogle(&speech_to_text.GoogleConfig{Client: client, Logger: logger})
		if err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("error with speech_to_text.NewGoogle: %w", err)
		}

		return stt, client, nil
	default:
		model, err := whisper.New(cfg.ModelPath)
		if err != nil {
			return nil, nil, fmt.Errorf("error loading model: %w", err)
		}

		stt, err := speech_to_text.New(&speech_to_text.Config{Model: model, Logger: logger})
		if err != nil {
			_ = model.Close()

			return nil, nil, fmt.Errorf("error with speech_to_text.New: %w", err)
		}

		return stt, closerFunc(model.Close), nil
	}
}

func newEngine(ctx context.Context, cfg config.TTSConfig) (synthesis.Engine, io.Closer, error) {
	switch cfg.Provider {
	case "openai":
		engine, err := synthesis.NewOpenAIEngine(&synthesis.OpenAIConfig{
			Client: openai.NewClient(cfg.APIKey),
			Voice:  cfg.Voice,
			Speed:  cfg.SpeakingRate,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("error with synthesis.NewOpenAIEngine: %w", err)
		}

		return engine, closerFunc(func() error { return nil }), nil
	default:
		client, err := synthesis.DialGoogle(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}

		engine, err := synthesis.NewGoogleEngine(&synthesis.GoogleConfig{
			Client:       client,
			LanguageCode: cfg.LanguageCode,
			VoiceName:    cfg.Voice,
			SpeakingRate: cfg.SpeakingRate,
		})
		if err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("error with synthesis.NewGoogleEngine: %w", err)
		}

		return engine, client, nil
	}
}

func newRouter(cfg *config.Config, logger zerolog.Logger) (command_router.Interface, error) {
	router, err := command_router.New(&command_router.Config{
		Sites:          slices.Sorted(maps.Keys(cfg.Router.Sites)),
		NewsVocabulary: cfg.Router.NewsVocabulary,
		Cutoffs:        cfg.Cutoffs(),
		GeneralEnabled: cfg.General.Enabled,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error with command_router.New: %w", err)
	}

	return router, nil
}

func newDispatcher(cfg *config.Config, speaker actions.Speaker, rec *metrics.Recorder, logger zerolog.Logger) (actions.Interface, error) {
	navigator := &actions.BrowserNavigator{Logger: logger}

	search, err := video_search.NewClient(&video_search.Config{BaseURL: cfg.Media.SearchURL, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("error with video_search.NewClient: %w", err)
	}

	media, err := actions.NewMediaHandler(&actions.MediaConfig{
		Library:   cfg.Media.Library,
		Cutoff:    cfg.Media.Cutoff,
		Search:    search,
		Navigator: navigator,
		Speaker:   speaker,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error with actions.NewMediaHandler: %w", err)
	}

	news, err := news_api.NewClient(&news_api.Config{BaseURL: cfg.News.BaseURL, APIKey: cfg.News.APIKey, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("error with news_api.NewClient: %w", err)
	}

	wiki, err := wikipedia.NewClient(&wikipedia.Config{BaseURL: cfg.Knowledge.BaseURL, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("error with wikipedia.NewClient: %w", err)
	}

	var general actions.Handler

	if cfg.General.Enabled {
		bot, err := newBot(cfg.General, logger)
		if err != nil {
			return nil, err
		}

		general = &actions.GeneralHandler{Bot: bot, Speaker: speaker}
	}

	dispatcher, err := actions.New(&actions.Config{
		Site:      &actions.SiteHandler{Sites: cfg.Router.Sites, Navigator: navigator, Speaker: speaker},
		Media:     media,
		News:      &actions.NewsHandler{Client: news, Country: cfg.News.Country, Limit: cfg.News.Limit, Speaker: speaker, Logger: logger},
		Knowledge: &actions.KnowledgeHandler{Client: wiki, Sentences: cfg.Knowledge.Sentences, Speaker: speaker},
		General:   general,
		Speaker:   speaker,
		Timeout:   cfg.Command.DispatchTimeout,
		Metrics:   rec,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error with actions.New: %w", err)
	}

	return dispatcher, nil
}

func newBot(cfg config.GeneralConfig, logger zerolog.Logger) (ai_bot.AIBotAPI, error) {
	if cfg.Provider == "http" {
		bot, err := ai_bot.NewClient(&ai_bot.Config{ApiHost: cfg.Host, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("error with ai_bot.NewClient: %w", err)
		}

		return bot, nil
	}

	bot, err := ai_bot.NewOpenAIClient(&ai_bot.OpenAIConfig{
		Client:       openai.NewClient(cfg.APIKey),
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		MaxTokens:    cfg.MaxTokens,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("error with ai_bot.NewOpenAIClient: %w", err)
	}

	return bot, nil
}
