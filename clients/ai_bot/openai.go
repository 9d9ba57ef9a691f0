package ai_bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 200

	// answers are spoken, so keep them short and free of markup
	defaultSystemPrompt = "You are Jarvis, a voice assistant. Answer in at most three short " +
		"sentences of plain text without lists or formatting."
)

type openaiImpl struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
	logger       zerolog.Logger
}

type OpenAIConfig struct {
	Client       *openai.Client
	Model        string
	SystemPrompt string
	MaxTokens    int
	Logger       zerolog.Logger
}

func NewOpenAIClient(cfg *OpenAIConfig) (AIBotAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.Client == nil {
		return nil, errors.New("missing parameter: cfg.Client")
	}

	bot := &openaiImpl{
		client:       cfg.Client,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		logger:       cfg.Logger.With().Str("component", "openai").Logger(),
	}

	if bot.model == "" {
		bot.model = defaultModel
	}

	if bot.systemPrompt == "" {
		bot.systemPrompt = defaultSystemPrompt
	}

	if bot.maxTokens <= 0 {
		bot.maxTokens = defaultMaxTokens
	}

	return bot, nil
}

func (bot *openaiImpl) SendPrompt(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     bot.model,
		MaxTokens: bot.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: bot.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := bot.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)

	bot.logger.Debug().Str("model", bot.model).Int("tokens", resp.Usage.TotalTokens).Msg("prompt answered")

	return answer, nil
}
