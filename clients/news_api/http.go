package news_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://newsapi.org"
	defaultTimeout = 10 * time.Second
)

// ErrMissingKey is returned by TopHeadlines when no API key was configured.
var ErrMissingKey = errors.New("news api key is not configured")

type clientImpl struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type headlinesResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

func NewClient(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, errors.New("missing parameter: cfg")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &clientImpl{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "news_api").Logger(),
	}, nil
}

func (client *clientImpl) TopHeadlines(ctx context.Context, country string, limit int) ([]string, error) {
	if client.apiKey == "" {
		return nil, ErrMissingKey
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/v2/top-headlines", nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	q.Add("country", country)
	q.Add("apiKey", client.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	var body headlinesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode headlines (status %s): %w", resp.Status, err)
	}

	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		return nil, fmt.Errorf("news api returned %s: %s %s", resp.Status, body.Code, body.Message)
	}

	titles := make([]string, 0, limit)

	for _, article := range body.Articles {
		if len(titles) == limit {
			break
		}

		if title := strings.TrimSpace(article.Title); title != "" {
			titles = append(titles, title)
		}
	}

	client.logger.Debug().Str("country", country).Int("count", len(titles)).Msg("fetched headlines")

	return titles, nil
}
