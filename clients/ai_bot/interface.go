package ai_bot

import "context"

// AIBotAPI answers free-form prompts.
type AIBotAPI interface {
	SendPrompt(ctx context.Context, prompt string) (string, error)
}
