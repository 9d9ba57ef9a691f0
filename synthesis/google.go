package synthesis

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	tts "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

type synthesizeFunc func(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error)

type GoogleConfig struct {
	Client       *texttospeech.Client
	LanguageCode string
	VoiceName    string
	SpeakingRate float64
}

type googleEngine struct {
	synthesize  synthesizeFunc
	voice       *tts.VoiceSelectionParams
	audioConfig *tts.AudioConfig
}

// DialGoogle connects to Cloud Text-to-Speech. An empty credentials file
// falls back to application default credentials.
func DialGoogle(ctx context.Context, credentialsFile string) (*texttospeech.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create text-to-speech client: %w", err)
	}

	return client, nil
}

func NewGoogleEngine(cfg *GoogleConfig) (Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("client is nil")
	}

	client := cfg.Client

	return newGoogleEngine(cfg, func(ctx context.Context, req *tts.SynthesizeSpeechRequest) (*tts.SynthesizeSpeechResponse, error) {
		return client.SynthesizeSpeech(ctx, req)
	}), nil
}

func newGoogleEngine(cfg *GoogleConfig, synthesize synthesizeFunc) *googleEngine {
	languageCode := cfg.LanguageCode
	if languageCode == "" {
		languageCode = "en-US"
	}

	speakingRate := cfg.SpeakingRate
	if speakingRate <= 0 {
		speakingRate = 1
	}

	return &googleEngine{
		synthesize: synthesize,
		voice: &tts.VoiceSelectionParams{
			LanguageCode: languageCode,
			Name:         cfg.VoiceName,
			SsmlGender:   tts.SsmlVoiceGender_MALE,
		},
		audioConfig: &tts.AudioConfig{
			AudioEncoding: tts.AudioEncoding_MP3,
			SpeakingRate:  speakingRate,
		},
	}
}

func (g *googleEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	req := &tts.SynthesizeSpeechRequest{
		Input: &tts.SynthesisInput{
			InputSource: &tts.SynthesisInput_Text{Text: text},
		},
		Voice:       g.voice,
		AudioConfig: g.audioConfig,
	}

	resp, err := g.synthesize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}

	return resp.GetAudioContent(), nil
}
