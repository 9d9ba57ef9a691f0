package synthesis

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	Client *openai.Client
	Voice  string
	Speed  float64
}

type openaiEngine struct {
	client *openai.Client
	voice  openai.SpeechVoice
	speed  float64
}

func NewOpenAIEngine(cfg *OpenAIConfig) (Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("client is nil")
	}

	voice := openai.SpeechVoice(cfg.Voice)
	if voice == "" {
		voice = openai.VoiceOnyx
	}

	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}

	return &openaiEngine{
		client: cfg.Client,
		voice:  voice,
		speed:  speed,
	}, nil
}

func (o *openaiEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          o.speed,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	clip, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech: %w", err)
	}

	return clip, nil
}
