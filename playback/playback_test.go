package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentClip is a seekable stream of n silent samples.
type silentClip struct {
	n, pos int
	closed bool
}

func (c *silentClip) Stream(samples [][2]float64) (int, bool) {
	if c.pos >= c.n {
		return 0, false
	}

	count := min(len(samples), c.n-c.pos)
	for i := 0; i < count; i++ {
		samples[i] = [2]float64{}
	}

	c.pos += count

	return count, true
}

func (c *silentClip) Err() error       { return nil }
func (c *silentClip) Len() int         { return c.n }
func (c *silentClip) Position() int    { return c.pos }
func (c *silentClip) Seek(p int) error { c.pos = p; return nil }
func (c *silentClip) Close() error     { c.closed = true; return nil }

type countingSink struct {
	samples int
	format  beep.Format
}

func (s *countingSink) Play(_ context.Context, streamer beep.Streamer, format beep.Format) error {
	s.format = format

	buf := make([][2]float64, 512)
	for {
		n, ok := streamer.Stream(buf)
		s.samples += n

		if !ok {
			return nil
		}
	}
}

func newTestPlayer(t *testing.T, fs afero.Fs, speed float64, clip *silentClip, read *[]byte) (*playerImpl, *countingSink) {
	t.Helper()

	p, err := New(&Config{FileSys: fs, TempDir: "/tmp", Speed: speed, Logger: zerolog.Nop()})
	require.NoError(t, err)

	impl := p.(*playerImpl)
	out := &countingSink{}
	impl.sink = out
	impl.decode = func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, beep.Format{}, err
		}

		*read = data
		_ = rc.Close()

		return clip, beep.Format{SampleRate: 24000, NumChannels: 1, Precision: 2}, nil
	}

	return impl, out
}

func TestPlayer_PlayMP3(t *testing.T) {
	t.Run("clip is staged in a temp file and removed after playback", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		clip := &silentClip{n: 2400}

		var read []byte
		p, out := newTestPlayer(t, fs, 1, clip, &read)

		require.NoError(t, p.PlayMP3(context.Background(), []byte("ID3 fake mp3")))

		assert.Equal(t, []byte("ID3 fake mp3"), read)
		assert.Equal(t, 2400, out.samples)
		assert.Equal(t, beep.SampleRate(24000), out.format.SampleRate)
		assert.True(t, clip.closed)

		entries, err := afero.ReadDir(fs, "/tmp")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("speed shortens the played stream", func(t *testing.T) {
		clip := &silentClip{n: 4800}

		var read []byte
		p, out := newTestPlayer(t, afero.NewMemMapFs(), 2, clip, &read)

		require.NoError(t, p.PlayMP3(context.Background(), []byte("x")))

		assert.InDelta(t, 2400, out.samples, 100)
	})

	t.Run("decode failures keep the temp dir clean", func(t *testing.T) {
		fs := afero.NewMemMapFs()

		var read []byte
		p, _ := newTestPlayer(t, fs, 1, &silentClip{}, &read)
		p.decode = func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
			return nil, beep.Format{}, errors.New("bad frame")
		}

		assert.Error(t, p.PlayMP3(context.Background(), []byte("x")))

		entries, err := afero.ReadDir(fs, "/tmp")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("empty clips are skipped", func(t *testing.T) {
		var read []byte
		p, out := newTestPlayer(t, afero.NewMemMapFs(), 1, &silentClip{n: 10}, &read)

		require.NoError(t, p.PlayMP3(context.Background(), nil))
		assert.Zero(t, out.samples)
	})

	t.Run("new validates its config", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)

		_, err = New(&Config{})
		assert.Error(t, err)

		_, err = New(&Config{FileSys: afero.NewMemMapFs(), Speed: -1})
		assert.Error(t, err)
	})
}

func writeCue(t *testing.T, fs afero.Fs, path string, samples []int) {
	t.Helper()

	file, err := fs.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(file, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           samples,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, file.Close())
}

type recordingOutput struct {
	mu     sync.Mutex
	played []*audio.IntBuffer
	block  chan struct{}
}

func (o *recordingOutput) play(buf *audio.IntBuffer) error {
	if o.block != nil {
		<-o.block
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.played = append(o.played, buf)

	return nil
}

func (o *recordingOutput) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.played)
}

func newTestCuePlayer(t *testing.T, fs afero.Fs, out *recordingOutput) *cueImpl {
	t.Helper()

	c, err := NewCuePlayer(&CueConfig{Dir: "/cues", FileSys: fs, Logger: zerolog.Nop()})
	require.NoError(t, err)

	impl := c.(*cueImpl)
	impl.output = out.play

	return impl
}

func TestCuePlayer_PlayCue(t *testing.T) {
	t.Run("cue is decoded and played in the background", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeCue(t, fs, "/cues/yes.wav", []int{1, 2, 3, 4})

		out := &recordingOutput{}
		c := newTestCuePlayer(t, fs, out)

		c.PlayCue("yes")
		c.wg.Wait()

		require.Equal(t, 1, out.count())
		assert.Equal(t, []int{1, 2, 3, 4}, out.played[0].Data)
		assert.Equal(t, 16000, out.played[0].Format.SampleRate)
	})

	t.Run("play cue does not wait for the output", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeCue(t, fs, "/cues/yes.wav", []int{1})

		out := &recordingOutput{block: make(chan struct{})}
		c := newTestCuePlayer(t, fs, out)

		returned := make(chan struct{})
		go func() {
			c.PlayCue("yes")
			c.PlayCue("yes")
			close(returned)
		}()

		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("PlayCue blocked")
		}

		close(out.block)
		c.wg.Wait()

		assert.Equal(t, 1, out.count(), "overlapping cue is skipped")
	})

	t.Run("missing cues are ignored", func(t *testing.T) {
		out := &recordingOutput{}
		c := newTestCuePlayer(t, afero.NewMemMapFs(), out)

		c.PlayCue("nope")
		c.wg.Wait()

		assert.Zero(t, out.count())
		assert.False(t, c.playing.Load())
	})
}
