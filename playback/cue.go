package playback

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const cueFramesPerBuffer = 512

type CueConfig struct {
	// Dir holds one <name>.wav file per cue.
	Dir     string
	FileSys afero.Fs
	Logger  zerolog.Logger
}

type cueImpl struct {
	dir     string
	fileSys afero.Fs
	output  func(buf *audio.IntBuffer) error
	logger  zerolog.Logger

	mu      sync.Mutex
	cache   map[string]*audio.IntBuffer
	playing atomic.Bool
	wg      sync.WaitGroup
}

func NewCuePlayer(cfg *CueConfig) (CuePlayer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	return &cueImpl{
		dir:     cfg.Dir,
		fileSys: cfg.FileSys,
		output:  portaudioOutput,
		logger:  cfg.Logger.With().Str("component", "cue").Logger(),
		cache:   make(map[string]*audio.IntBuffer),
	}, nil
}

// PlayCue starts the named cue in the background and returns immediately.
// A cue requested while another is still playing is skipped. Missing or
// unreadable cue files are logged and ignored.
func (c *cueImpl) PlayCue(name string) {
	if !c.playing.CompareAndSwap(false, true) {
		c.logger.Debug().Str("cue", name).Msg("cue already playing")

		return
	}

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer c.playing.Store(false)

		buf, err := c.load(name)
		if err != nil {
			c.logger.Warn().Err(err).Str("cue", name).Msg("failed to load cue")

			return
		}

		if err := c.output(buf); err != nil {
			c.logger.Warn().Err(err).Str("cue", name).Msg("failed to play cue")
		}
	}()
}

func (c *cueImpl) load(name string) (*audio.IntBuffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if buf, ok := c.cache[name]; ok {
		return buf, nil
	}

	file, err := c.fileSys.Open(filepath.Join(c.dir, name+".wav"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s is not a valid wav file", file.Name())
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", file.Name(), err)
	}

	c.cache[name] = buf

	return buf, nil
}

func portaudioOutput(buf *audio.IntBuffer) error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}

	defer portaudio.Terminate()

	channels := buf.Format.NumChannels
	out := make([]int16, cueFramesPerBuffer*channels)

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(buf.Format.SampleRate), cueFramesPerBuffer, out)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}

	for offset := 0; offset < len(buf.Data); offset += len(out) {
		n := copySamples(out, buf.Data[offset:])
		clear(out[n:])

		if err := stream.Write(); err != nil {
			return err
		}
	}

	return stream.Stop()
}

func copySamples(dst []int16, src []int) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = int16(src[i])
	}

	return n
}
