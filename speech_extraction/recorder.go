package speech_extraction

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-audio/audio"
	"github.com/spf13/afero"
	"github.com/zenwerk/go-wave"
)

// recorder dumps captured utterances as 16-bit mono WAV files.
type recorder struct {
	fileSys    afero.Fs
	dir        string
	sampleRate int
	now        func() time.Time
}

func newRecorder(fileSys afero.Fs, dir string, sampleRate int) *recorder {
	return &recorder{
		fileSys:    fileSys,
		dir:        dir,
		sampleRate: sampleRate,
		now:        time.Now,
	}
}

func (r *recorder) Write(buf *audio.IntBuffer) (string, error) {
	if err := r.fileSys.MkdirAll(r.dir, 0o755); err != nil {
		return "", err
	}

	name := filepath.Join(r.dir, "utterance-"+strconv.FormatInt(r.now().UnixNano(), 10)+".wav")

	waveFile, err := r.fileSys.Create(name)
	if err != nil {
		return "", err
	}

	param := wave.WriterParam{
		Out:           waveFile,
		Channel:       1,
		SampleRate:    r.sampleRate,
		BitsPerSample: 16,
	}

	waveWriter, err := wave.NewWriter(param)
	if err != nil {
		_ = waveFile.Close()

		return "", err
	}

	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}

	if _, err := waveWriter.WriteSample16(samples); err != nil {
		_ = waveWriter.Close()

		return "", fmt.Errorf("write samples: %w", err)
	}

	if err := waveWriter.Close(); err != nil {
		return "", err
	}

	return name, nil
}
