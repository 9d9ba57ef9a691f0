// Package config loads the dispatcher settings from YAML, the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"voice-dispatcher/actions"
	"voice-dispatcher/clients/news_api"
	"voice-dispatcher/clients/video_search"
	"voice-dispatcher/clients/wikipedia"
	"voice-dispatcher/command_router"
	"voice-dispatcher/wake_word"
)

const (
	EnvPrefix = "VOICE_DISPATCHER"

	// secrets read from the environment or .env when the config leaves them empty
	envNewsAPIKey        = "NEWSAPI_KEY"
	envOpenAIKey         = "OPENAI_API_KEY"
	envGoogleCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
	envAIBotHost         = "AI_BOT_HOST"
)

// Config holds all dispatcher configuration. It is read once at startup and
// never changed afterwards.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Wake      WakeConfig      `mapstructure:"wake"`
	Command   CommandConfig   `mapstructure:"command"`
	STT       STTConfig       `mapstructure:"stt"`
	TTS       TTSConfig       `mapstructure:"tts"`
	Router    RouterConfig    `mapstructure:"router"`
	Media     MediaConfig     `mapstructure:"media"`
	News      NewsConfig      `mapstructure:"news"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	General   GeneralConfig   `mapstructure:"general"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	// Format is console, json or auto (console on a terminal).
	Format string `mapstructure:"format"`
}

// AudioConfig configures the microphone and speech boundary detection.
type AudioConfig struct {
	Device           string        `mapstructure:"device"`
	SampleRate       int           `mapstructure:"sample_rate"`
	ChunkSize        int           `mapstructure:"chunk_size"`
	EnergyThreshold  float64       `mapstructure:"energy_threshold"`
	DynamicThreshold bool          `mapstructure:"dynamic_threshold"`
	Calibration      time.Duration `mapstructure:"calibration"`
	FluxRatio        float64       `mapstructure:"flux_ratio"`
	QuietTime        time.Duration `mapstructure:"quiet_time"`
	PreRoll          time.Duration `mapstructure:"pre_roll"`
	RecordDir        string        `mapstructure:"record_dir"`
	CueDir           string        `mapstructure:"cue_dir"`
}

type WakeConfig struct {
	Phrases         []string      `mapstructure:"phrases"`
	Cutoff          float64       `mapstructure:"cutoff"`
	EnergyThreshold float64       `mapstructure:"energy_threshold"`
	FrameSize       int           `mapstructure:"frame_size"`
	FrameTimeout    time.Duration `mapstructure:"frame_timeout"`
	Cue             string        `mapstructure:"cue"`
	Greeting        string        `mapstructure:"greeting"`
}

type CommandConfig struct {
	Locale            string        `mapstructure:"locale"`
	MaxSilence        time.Duration `mapstructure:"max_silence"`
	MaxPhrase         time.Duration `mapstructure:"max_phrase"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout"`
	DispatchTimeout   time.Duration `mapstructure:"dispatch_timeout"`
	ShutdownGrace     time.Duration `mapstructure:"shutdown_grace"`
}

// STTConfig selects the transcriber: whisper (local model) or google.
type STTConfig struct {
	Provider        string `mapstructure:"provider"`
	ModelPath       string `mapstructure:"model_path"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// TTSConfig selects the synthesis engine (google or openai) and tunes the
// background playback queue.
type TTSConfig struct {
	Provider        string        `mapstructure:"provider"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	APIKey          string        `mapstructure:"api_key"`
	LanguageCode    string        `mapstructure:"language_code"`
	Voice           string        `mapstructure:"voice"`
	SpeakingRate    float64       `mapstructure:"speaking_rate"`
	Speed           float64       `mapstructure:"speed"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	Timeout         time.Duration `mapstructure:"timeout"`
	TempDir         string        `mapstructure:"temp_dir"`
}

type RouterConfig struct {
	// Sites maps a spoken site name to the URL it opens.
	Sites          map[string]string `mapstructure:"sites"`
	NewsVocabulary []string          `mapstructure:"news_vocabulary"`
	SiteCutoff     float64           `mapstructure:"site_cutoff"`
	PlayCutoff     float64           `mapstructure:"play_cutoff"`
	NewsCutoff     float64           `mapstructure:"news_cutoff"`
}

type MediaConfig struct {
	// Library maps song titles to known video URLs.
	Library   map[string]string `mapstructure:"library"`
	Cutoff    float64           `mapstructure:"cutoff"`
	SearchURL string            `mapstructure:"search_url"`
}

type NewsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Country string `mapstructure:"country"`
	Limit   int    `mapstructure:"limit"`
}

type KnowledgeConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Sentences int    `mapstructure:"sentences"`
}

// GeneralConfig enables answering unrecognized commands with an AI bot,
// either a plain HTTP prompt service or OpenAI chat.
type GeneralConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Provider     string `mapstructure:"provider"`
	Host         string `mapstructure:"host"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	MaxTokens    int    `mapstructure:"max_tokens"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Audio: AudioConfig{
			SampleRate:       16000,
			ChunkSize:        1600,
			EnergyThreshold:  300,
			DynamicThreshold: true,
			Calibration:      time.Second,
			FluxRatio:        1.75,
			QuietTime:        800 * time.Millisecond,
			PreRoll:          300 * time.Millisecond,
			CueDir:           "cues",
		},
		Wake: WakeConfig{
			Phrases:         []string{wake_word.DefaultPhrase},
			Cutoff:          wake_word.DefaultCutoff,
			EnergyThreshold: 300,
			FrameSize:       32000,
			FrameTimeout:    5 * time.Second,
			Cue:             "yes",
			Greeting:        "Initializing Jarvis",
		},
		Command: CommandConfig{
			Locale:            "en-US",
			MaxSilence:        5 * time.Second,
			MaxPhrase:         10 * time.Second,
			TranscribeTimeout: 15 * time.Second,
			DispatchTimeout:   20 * time.Second,
			ShutdownGrace:     5 * time.Second,
		},
		STT: STTConfig{
			Provider: "whisper",
		},
		TTS: TTSConfig{
			Provider:     "google",
			LanguageCode: "en-US",
			SpeakingRate: 1,
			Speed:        1,
			Workers:      1,
			QueueSize:    16,
			Timeout:      30 * time.Second,
		},
		Router: RouterConfig{
			Sites:          copyMap(command_router.DefaultSites),
			NewsVocabulary: append([]string(nil), command_router.DefaultNewsVocabulary...),
			SiteCutoff:     command_router.DefaultSiteCutoff,
			PlayCutoff:     command_router.DefaultPlayCutoff,
			NewsCutoff:     command_router.DefaultNewsCutoff,
		},
		Media: MediaConfig{
			Library:   copyMap(actions.DefaultLibrary),
			Cutoff:    actions.DefaultMediaCutoff,
			SearchURL: video_search.DefaultBaseURL,
		},
		News: NewsConfig{
			BaseURL: news_api.DefaultBaseURL,
			Country: "us",
			Limit:   5,
		},
		Knowledge: KnowledgeConfig{
			BaseURL:   wikipedia.DefaultBaseURL,
			Sentences: 2,
		},
		General: GeneralConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 200,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// Load reads configuration from the OS file system. See LoadFs.
func Load(file, envFile string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), file, envFile)
}

// LoadFs reads configuration from file, or from config.yaml in
// ~/.voice-dispatcher or the working directory when file is empty. Values in
// VOICE_DISPATCHER_* environment variables override the file, for example
// VOICE_DISPATCHER_STT_PROVIDER. Secrets missing from both are taken from the
// environment after loading envFile.
func LoadFs(fs afero.Fs, file, envFile string) (*Config, error) {
	if envFile != "" {
		if err := loadEnvFile(fs, envFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".voice-dispatcher"))
		}

		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applySecrets()

	return &cfg, nil
}

// loadEnvFile exports the variables of a .env file that are not already set.
// A missing file is not an error.
func loadEnvFile(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return fmt.Errorf("failed to parse env file %s: %w", path, err)
	}

	for key, value := range vars {
		if _, ok := os.LookupEnv(key); ok {
			continue
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// setDefaults registers every scalar key so environment overrides are seen by
// Unmarshal. Maps are filled in by applyDefaults instead, so a YAML map
// replaces the built-in one rather than merging with it.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"log.level":  d.Log.Level,
		"log.format": d.Log.Format,

		"audio.device":            d.Audio.Device,
		"audio.sample_rate":       d.Audio.SampleRate,
		"audio.chunk_size":        d.Audio.ChunkSize,
		"audio.energy_threshold":  d.Audio.EnergyThreshold,
		"audio.dynamic_threshold": d.Audio.DynamicThreshold,
		"audio.calibration":       d.Audio.Calibration,
		"audio.flux_ratio":        d.Audio.FluxRatio,
		"audio.quiet_time":        d.Audio.QuietTime,
		"audio.pre_roll":          d.Audio.PreRoll,
		"audio.record_dir":        d.Audio.RecordDir,
		"audio.cue_dir":           d.Audio.CueDir,

		"wake.phrases":          d.Wake.Phrases,
		"wake.cutoff":           d.Wake.Cutoff,
		"wake.energy_threshold": d.Wake.EnergyThreshold,
		"wake.frame_size":       d.Wake.FrameSize,
		"wake.frame_timeout":    d.Wake.FrameTimeout,
		"wake.cue":              d.Wake.Cue,
		"wake.greeting":         d.Wake.Greeting,

		"command.locale":             d.Command.Locale,
		"command.max_silence":        d.Command.MaxSilence,
		"command.max_phrase":         d.Command.MaxPhrase,
		"command.transcribe_timeout": d.Command.TranscribeTimeout,
		"command.dispatch_timeout":   d.Command.DispatchTimeout,
		"command.shutdown_grace":     d.Command.ShutdownGrace,

		"stt.provider":         d.STT.Provider,
		"stt.model_path":       d.STT.ModelPath,
		"stt.credentials_file": d.STT.CredentialsFile,

		"tts.provider":         d.TTS.Provider,
		"tts.credentials_file": d.TTS.CredentialsFile,
		"tts.api_key":          d.TTS.APIKey,
		"tts.language_code":    d.TTS.LanguageCode,
		"tts.voice":            d.TTS.Voice,
		"tts.speaking_rate":    d.TTS.SpeakingRate,
		"tts.speed":            d.TTS.Speed,
		"tts.workers":          d.TTS.Workers,
		"tts.queue_size":       d.TTS.QueueSize,
		"tts.timeout":          d.TTS.Timeout,
		"tts.temp_dir":         d.TTS.TempDir,

		"router.news_vocabulary": d.Router.NewsVocabulary,
		"router.site_cutoff":     d.Router.SiteCutoff,
		"router.play_cutoff":     d.Router.PlayCutoff,
		"router.news_cutoff":     d.Router.NewsCutoff,

		"media.cutoff":     d.Media.Cutoff,
		"media.search_url": d.Media.SearchURL,

		"news.api_key":  d.News.APIKey,
		"news.base_url": d.News.BaseURL,
		"news.country":  d.News.Country,
		"news.limit":    d.News.Limit,

		"knowledge.base_url":  d.Knowledge.BaseURL,
		"knowledge.sentences": d.Knowledge.Sentences,

		"general.enabled":       d.General.Enabled,
		"general.provider":      d.General.Provider,
		"general.host":          d.General.Host,
		"general.api_key":       d.General.APIKey,
		"general.model":         d.General.Model,
		"general.system_prompt": d.General.SystemPrompt,
		"general.max_tokens":    d.General.MaxTokens,

		"metrics.enabled": d.Metrics.Enabled,
		"metrics.addr":    d.Metrics.Addr,
	}

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func (c *Config) applyDefaults() {
	d := Default()

	if len(c.Router.Sites) == 0 {
		c.Router.Sites = d.Router.Sites
	}

	if len(c.Media.Library) == 0 {
		c.Media.Library = d.Media.Library
	}
}

func (c *Config) applySecrets() {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}

	fill(&c.News.APIKey, envNewsAPIKey)
	fill(&c.TTS.APIKey, envOpenAIKey)
	fill(&c.General.APIKey, envOpenAIKey)
	fill(&c.STT.CredentialsFile, envGoogleCredentials)
	fill(&c.TTS.CredentialsFile, envGoogleCredentials)
	fill(&c.General.Host, envAIBotHost)
}

// Validate rejects settings no component could run with. Missing network
// secrets are left to the handlers, which apologize at runtime.
func (c *Config) Validate() error {
	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	_, err := zerolog.ParseLevel(c.Log.Level)
	check(err == nil, "log.level: unknown level %q", c.Log.Level)
	check(oneOf(c.Log.Format, "auto", "console", "json"), "log.format: must be auto, console or json")

	check(c.Audio.SampleRate > 0, "audio.sample_rate: must be positive")
	check(c.Audio.ChunkSize > 0, "audio.chunk_size: must be positive")
	check(c.Audio.EnergyThreshold >= 0, "audio.energy_threshold: must not be negative")
	check(c.Audio.FluxRatio > 0, "audio.flux_ratio: must be positive")

	check(len(c.Wake.Phrases) > 0, "wake.phrases: at least one phrase is required")
	check(inUnitRange(c.Wake.Cutoff) || c.Wake.Cutoff == 0, "wake.cutoff: must be in [0, 1]")
	check(c.Wake.FrameSize > 0, "wake.frame_size: must be positive")
	check(c.Wake.FrameTimeout > 0, "wake.frame_timeout: must be positive")

	check(c.Command.MaxSilence > 0, "command.max_silence: must be positive")
	check(c.Command.MaxPhrase > 0, "command.max_phrase: must be positive")
	check(c.Command.TranscribeTimeout > 0, "command.transcribe_timeout: must be positive")

	check(oneOf(c.STT.Provider, "whisper", "google"), "stt.provider: must be whisper or google")
	check(c.STT.Provider != "whisper" || c.STT.ModelPath != "", "stt.model_path: required for the whisper provider")

	check(oneOf(c.TTS.Provider, "google", "openai"), "tts.provider: must be google or openai")
	check(c.TTS.Provider != "openai" || c.TTS.APIKey != "", "tts.api_key: required for the openai provider (or set %s)", envOpenAIKey)
	check(c.TTS.Speed > 0, "tts.speed: must be positive")
	check(c.TTS.Workers > 0, "tts.workers: must be positive")
	check(c.TTS.QueueSize > 0, "tts.queue_size: must be positive")

	check(inUnitRange(c.Router.SiteCutoff), "router.site_cutoff: must be in (0, 1]")
	check(inUnitRange(c.Router.PlayCutoff), "router.play_cutoff: must be in (0, 1]")
	check(inUnitRange(c.Router.NewsCutoff), "router.news_cutoff: must be in (0, 1]")
	check(inUnitRange(c.Media.Cutoff), "media.cutoff: must be in (0, 1]")

	if c.General.Enabled {
		check(oneOf(c.General.Provider, "http", "openai"), "general.provider: must be http or openai")
		check(c.General.Provider != "http" || c.General.Host != "", "general.host: required for the http provider (or set %s)", envAIBotHost)
		check(c.General.Provider != "openai" || c.General.APIKey != "", "general.api_key: required for the openai provider (or set %s)", envOpenAIKey)
	}

	check(!c.Metrics.Enabled || c.Metrics.Addr != "", "metrics.addr: required when metrics are enabled")

	return errors.Join(errs...)
}

// Cutoffs returns the router thresholds in the form the router takes.
func (c *Config) Cutoffs() command_router.Cutoffs {
	return command_router.Cutoffs{
		Site: c.Router.SiteCutoff,
		Play: c.Router.PlayCutoff,
		News: c.Router.NewsCutoff,
	}
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}

	return false
}

func inUnitRange(v float64) bool {
	return v > 0 && v <= 1
}
