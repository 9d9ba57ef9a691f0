package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"voice-dispatcher/clients/ai_bot"
	"voice-dispatcher/clients/news_api"
	"voice-dispatcher/clients/wikipedia"
)

const (
	defaultNewsCountry      = "us"
	defaultHeadlines        = 5
	defaultSummarySentences = 2

	msgUnknownSite  = "Sorry, I don't know that site."
	msgSiteFailed   = "Sorry, I could not open that site."
	msgNewsFailed   = "Sorry, I could not fetch the news"
	msgTopicFailed  = "Sorry, I could not find information on that topic."
	msgAnswerFailed = "Sorry, I could not get an answer to that."
)

// SiteHandler opens one of a fixed set of sites by name.
type SiteHandler struct {
	Sites     map[string]string
	Navigator Navigator
	Speaker   Speaker
}

func (h *SiteHandler) Handle(_ context.Context, name string) error {
	url, ok := h.Sites[name]
	if !ok {
		h.Speaker.Submit(msgUnknownSite)

		return fmt.Errorf("unknown site %q", name)
	}

	if err := h.Navigator.Open(url); err != nil {
		h.Speaker.Submit(msgSiteFailed)

		return fmt.Errorf("open %s: %w", url, err)
	}

	return nil
}

// NewsHandler reads out the current top headlines as a single response.
type NewsHandler struct {
	Client  news_api.Interface
	Country string
	Limit   int
	Speaker Speaker
	Logger  zerolog.Logger
}

func (h *NewsHandler) Handle(ctx context.Context, _ string) error {
	country := h.Country
	if country == "" {
		country = defaultNewsCountry
	}

	limit := h.Limit
	if limit <= 0 {
		limit = defaultHeadlines
	}

	titles, err := h.Client.TopHeadlines(ctx, country, limit)
	if err == nil && len(titles) == 0 {
		err = errors.New("no headlines")
	}

	if err != nil {
		h.Speaker.Submit(msgNewsFailed)

		return fmt.Errorf("fetch headlines: %w", err)
	}

	for _, title := range titles {
		h.Logger.Info().Str("headline", title).Msg("headline")
	}

	h.Speaker.Submit("Here are the top headlines. " + joinSentences(titles))

	return nil
}

// KnowledgeHandler answers "who/what/where" questions from Wikipedia.
type KnowledgeHandler struct {
	Client    wikipedia.Interface
	Sentences int
	Speaker   Speaker
}

func (h *KnowledgeHandler) Handle(ctx context.Context, topic string) error {
	sentences := h.Sentences
	if sentences <= 0 {
		sentences = defaultSummarySentences
	}

	summary, err := h.Client.Summary(ctx, topic, sentences)
	if err != nil {
		h.Speaker.Submit(msgTopicFailed)

		return fmt.Errorf("summary for %q: %w", topic, err)
	}

	h.Speaker.Submit(summary)

	return nil
}

// GeneralHandler passes anything else to an AI bot and speaks its answer.
type GeneralHandler struct {
	Bot     ai_bot.AIBotAPI
	Speaker Speaker
}

func (h *GeneralHandler) Handle(ctx context.Context, text string) error {
	answer, err := h.Bot.SendPrompt(ctx, text)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty answer")
	}

	if err != nil {
		h.Speaker.Submit(msgAnswerFailed)

		return fmt.Errorf("prompt: %w", err)
	}

	h.Speaker.Submit(answer)

	return nil
}

func joinSentences(parts []string) string {
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if !strings.HasSuffix(part, ".") && !strings.HasSuffix(part, "?") && !strings.HasSuffix(part, "!") {
			part += "."
		}

		out = append(out, part)
	}

	return strings.Join(out, " ")
}
