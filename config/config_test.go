package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log:
  level: debug
audio:
  sample_rate: 44100
wake:
  phrases: [jarvis, computer]
command:
  max_silence: 3s
stt:
  provider: google
router:
  site_cutoff: 0.65
  sites:
    github: https://github.com
media:
  library:
    thunderstruck: https://www.youtube.com/watch?v=v2AC41dglnM
`

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestLoadFs(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/etc/vd/config.yaml", sampleYAML)

		cfg, err := LoadFs(fs, "/etc/vd/config.yaml", "")
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 44100, cfg.Audio.SampleRate)
		assert.Equal(t, []string{"jarvis", "computer"}, cfg.Wake.Phrases)
		assert.Equal(t, 3*time.Second, cfg.Command.MaxSilence)
		assert.Equal(t, "google", cfg.STT.Provider)
		assert.Equal(t, 0.65, cfg.Router.SiteCutoff)
		assert.Equal(t, map[string]string{"github": "https://github.com"}, cfg.Router.Sites)
		assert.Equal(t, map[string]string{"thunderstruck": "https://www.youtube.com/watch?v=v2AC41dglnM"}, cfg.Media.Library)
	})

	t.Run("unset keys keep their defaults", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/etc/vd/config.yaml", sampleYAML)

		cfg, err := LoadFs(fs, "/etc/vd/config.yaml", "")
		require.NoError(t, err)

		d := Default()
		assert.Equal(t, d.Command.MaxPhrase, cfg.Command.MaxPhrase)
		assert.Equal(t, d.Router.PlayCutoff, cfg.Router.PlayCutoff)
		assert.Equal(t, d.TTS.Workers, cfg.TTS.Workers)
		assert.Equal(t, d.Wake.Greeting, cfg.Wake.Greeting)
	})

	t.Run("no config file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadFs(afero.NewMemMapFs(), "", "")
		require.NoError(t, err)

		d := Default()
		assert.Equal(t, d.Audio, cfg.Audio)
		assert.Equal(t, d.Router.Sites, cfg.Router.Sites)
		assert.Equal(t, d.Media.Library, cfg.Media.Library)
	})

	t.Run("an explicit config file must exist", func(t *testing.T) {
		_, err := LoadFs(afero.NewMemMapFs(), "/missing.yaml", "")
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("environment overrides the file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/etc/vd/config.yaml", sampleYAML)

		t.Setenv("VOICE_DISPATCHER_STT_PROVIDER", "whisper")
		t.Setenv("VOICE_DISPATCHER_TTS_WORKERS", "3")

		cfg, err := LoadFs(fs, "/etc/vd/config.yaml", "")
		require.NoError(t, err)

		assert.Equal(t, "whisper", cfg.STT.Provider)
		assert.Equal(t, 3, cfg.TTS.Workers)
	})

	t.Run("secrets come from the env file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/app/.env", "NEWSAPI_KEY=news-secret\nOPENAI_API_KEY=sk-test\nAI_BOT_HOST=http://bot.local\n")

		// registered so the variables set by the loader are removed afterwards
		t.Setenv(envNewsAPIKey, "")
		t.Setenv(envOpenAIKey, "")
		t.Setenv(envAIBotHost, "")
		require.NoError(t, os.Unsetenv(envNewsAPIKey))
		require.NoError(t, os.Unsetenv(envOpenAIKey))
		require.NoError(t, os.Unsetenv(envAIBotHost))

		cfg, err := LoadFs(fs, "", "/app/.env")
		require.NoError(t, err)

		assert.Equal(t, "news-secret", cfg.News.APIKey)
		assert.Equal(t, "sk-test", cfg.TTS.APIKey)
		assert.Equal(t, "sk-test", cfg.General.APIKey)
		assert.Equal(t, "http://bot.local", cfg.General.Host)
	})

	t.Run("the process environment wins over the env file", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/app/.env", "NEWSAPI_KEY=from-file\n")

		t.Setenv(envNewsAPIKey, "from-env")

		cfg, err := LoadFs(fs, "", "/app/.env")
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.News.APIKey)
	})

	t.Run("a missing env file is ignored", func(t *testing.T) {
		_, err := LoadFs(afero.NewMemMapFs(), "", "/nowhere/.env")
		assert.NoError(t, err)
	})
}

func validConfig() *Config {
	cfg := Default()
	cfg.STT.ModelPath = "models/ggml-base.en.bin"

	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("defaults with a model are valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("whisper needs a model", func(t *testing.T) {
		assert.ErrorContains(t, Default().Validate(), "stt.model_path")
	})

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown stt provider", func(c *Config) { c.STT.Provider = "vosk" }, "stt.provider"},
		{"openai tts without key", func(c *Config) { c.TTS.Provider = "openai" }, "tts.api_key"},
		{"zero workers", func(c *Config) { c.TTS.Workers = 0 }, "tts.workers"},
		{"cutoff above one", func(c *Config) { c.Router.SiteCutoff = 1.2 }, "router.site_cutoff"},
		{"zero cutoff", func(c *Config) { c.Router.NewsCutoff = 0 }, "router.news_cutoff"},
		{"no wake phrases", func(c *Config) { c.Wake.Phrases = nil }, "wake.phrases"},
		{"zero command window", func(c *Config) { c.Command.MaxPhrase = 0 }, "command.max_phrase"},
		{"http bot without host", func(c *Config) {
			c.General.Enabled = true
			c.General.Provider = "http"
		}, "general.host"},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = ""
		}, "metrics.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("all problems are reported together", func(t *testing.T) {
		cfg := validConfig()
		cfg.Log.Level = "loud"
		cfg.TTS.Workers = 0

		err := cfg.Validate()
		assert.ErrorContains(t, err, "log.level")
		assert.ErrorContains(t, err, "tts.workers")
	})
}

func TestCutoffs(t *testing.T) {
	cfg := Default()
	cfg.Router.PlayCutoff = 0.9

	c := cfg.Cutoffs()
	assert.Equal(t, cfg.Router.SiteCutoff, c.Site)
	assert.Equal(t, 0.9, c.Play)
	assert.Equal(t, cfg.Router.NewsCutoff, c.News)
}
