package ai_bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

type clientImpl struct {
	apiHost    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Config struct {
	ApiHost    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// NewClient talks to a prompt service exposing GET /get_prompt_response.
func NewClient(cfg *Config) (AIBotAPI, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	if cfg.ApiHost == "" {
		return nil, errors.New("missing parameter: cfg.ApiHost")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &clientImpl{
		apiHost:    strings.TrimSuffix(cfg.ApiHost, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "ai_bot").Logger(),
	}, nil
}

func (client *clientImpl) SendPrompt(ctx context.Context, prompt string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.apiHost+"/get_prompt_response", nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("prompt", prompt)
	req.URL.RawQuery = q.Encode()

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prompt service returned %s", resp.Status)
	}

	answer := strings.TrimSpace(string(body))

	client.logger.Debug().Str("prompt", prompt).Int("length", len(answer)).Msg("prompt answered")

	return answer, nil
}
