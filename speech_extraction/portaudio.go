package speech_extraction

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

type portaudioDevice struct {
	stream *portaudio.Stream
	in     []int16
	logger zerolog.Logger
}

func openPortaudio(cfg *Config, sampleRate int) (device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	in := make([]int16, cfg.ChunkSize)

	stream, err := openInputStream(cfg.DeviceName, sampleRate, in)
	if err != nil {
		_ = portaudio.Terminate()

		return nil, err
	}

	return &portaudioDevice{
		stream: stream,
		in:     in,
		logger: cfg.Logger.With().Str("component", "portaudio").Logger(),
	}, nil
}

func openInputStream(deviceName string, sampleRate int, in []int16) (*portaudio.Stream, error) {
	if deviceName == "" {
		return portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(in), in)
	}

	dev, err := findInputDevice(deviceName)
	if err != nil {
		return nil, err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: len(in),
	}

	return portaudio.OpenStream(params, in)
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	for _, dev := range devices {
		if dev.MaxInputChannels > 0 && dev.Name == name {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("input device %q not found", name)
}

func (d *portaudioDevice) Start() error {
	return d.stream.Start()
}

func (d *portaudioDevice) Stop() error {
	return d.stream.Stop()
}

func (d *portaudioDevice) Read() ([]int16, error) {
	err := d.stream.Read()
	if errors.Is(err, portaudio.InputOverflowed) {
		// samples were lost, but the buffer still holds valid audio
		d.logger.Debug().Msg("input overflowed")
	} else if err != nil {
		return nil, err
	}

	out := make([]int16, len(d.in))
	copy(out, d.in)

	return out, nil
}

func (d *portaudioDevice) Close() error {
	err := d.stream.Close()

	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = termErr
	}

	return err
}

// ListInputDevices returns the names of every device that can capture audio.
func ListInputDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(devices))

	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			names = append(names, dev.Name)
		}
	}

	return names, nil
}
