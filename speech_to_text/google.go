package speech_to_text

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/go-audio/audio"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

type googleImpl struct {
	recognize recognizeFunc
	logger    zerolog.Logger
}

type GoogleConfig struct {
	Client *speech.Client
	Logger zerolog.Logger
}

// DialGoogle connects to Cloud Speech. An empty credentials file falls back
// to application default credentials.
func DialGoogle(ctx context.Context, credentialsFile string) (*speech.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	return client, nil
}

func NewGoogle(cfg *GoogleConfig) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("client is nil")
	}

	client := cfg.Client

	return &googleImpl{
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		logger: cfg.Logger.With().Str("component", "google_stt").Logger(),
	}, nil
}

func (g *googleImpl) Transcribe(ctx context.Context, utterance *audio.IntBuffer, locale string) Result {
	if utterance == nil || len(utterance.Data) == 0 {
		return NoSpeech()
	}

	if locale == "" {
		locale = "en-US"
	}

	sampleRate := 16000
	if utterance.Format != nil && utterance.Format.SampleRate > 0 {
		sampleRate = utterance.Format.SampleRate
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(sampleRate),
			LanguageCode:    locale,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcmBytes(utterance.Data)},
		},
	}

	resp, err := g.recognize(ctx, req)
	if err != nil {
		g.logger.Error().Err(err).Msg("recognize failed")

		return ServiceError(fmt.Errorf("recognize: %w", err))
	}

	parts := make([]string, 0, len(resp.GetResults()))

	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}

		if text := strings.TrimSpace(alternatives[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return NoSpeech()
	}

	text := strings.Join(parts, " ")

	g.logger.Debug().Str("text", text).Msg("transcribed")

	return Text(text)
}

// pcmBytes encodes samples as 16-bit little-endian PCM.
func pcmBytes(data []int) []byte {
	out := make([]byte, 2*len(data))
	for i, sample := range data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(sample)))
	}

	return out
}
