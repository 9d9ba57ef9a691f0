package video_search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://www.youtube.com"
	defaultTimeout = 10 * time.Second
	maxResults     = 3
	maxBodyBytes   = 4 << 20

	// the results page is only served in full to browsers
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
)

var videoIDPattern = regexp.MustCompile(`watch\?v=(\S{11})`)

type clientImpl struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
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
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "video_search").Logger(),
	}, nil
}

// SearchURL is the results page for query. The query is quoted to favour
// exact title matches.
func SearchURL(baseURL, query string) string {
	return strings.TrimSuffix(baseURL, "/") + "/results?search_query=" + url.QueryEscape(`"`+query+`"`)
}

func (client *clientImpl) Search(ctx context.Context, query string) (Result, error) {
	result := Result{SearchURL: SearchURL(client.baseURL, query)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.SearchURL, nil)
	if err != nil {
		return result, err
	}

	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return result, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("video search returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return result, err
	}

	result.VideoIDs = extractIDs(string(body), maxResults)

	client.logger.Debug().Str("query", query).Strs("ids", result.VideoIDs).Msg("searched videos")

	return result, nil
}

// extractIDs returns the first limit distinct video ids in page order.
func extractIDs(page string, limit int) []string {
	var ids []string

	seen := make(map[string]bool)

	for _, match := range videoIDPattern.FindAllStringSubmatch(page, -1) {
		id := match[1]
		if seen[id] {
			continue
		}

		seen[id] = true
		ids = append(ids, id)

		if len(ids) == limit {
			break
		}
	}

	return ids
}
