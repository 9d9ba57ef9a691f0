package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://en.wikipedia.org"
	defaultTimeout = 10 * time.Second
	userAgent      = "voice-dispatcher/1.0"
)

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

type queryResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			Index   int    `json:"index"`
		} `json:"pages"`
	} `json:"query"`
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
		logger:     cfg.Logger.With().Str("component", "wikipedia").Logger(),
	}, nil
}

func (client *clientImpl) Summary(ctx context.Context, topic string, sentences int) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/w/api.php", nil)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Add("action", "query")
	q.Add("format", "json")
	q.Add("generator", "search")
	q.Add("gsrsearch", topic)
	q.Add("gsrlimit", "1")
	q.Add("prop", "extracts")
	q.Add("exintro", "1")
	q.Add("explaintext", "1")
	q.Add("exsentences", strconv.Itoa(sentences))
	q.Add("redirects", "1")
	req.URL.RawQuery = q.Encode()

	req.Header.Set("User-Agent", userAgent)

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wikipedia returned %s", resp.Status)
	}

	var body queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode wikipedia response: %w", err)
	}

	type page struct {
		title, extract string
		index          int
	}

	pages := make([]page, 0, len(body.Query.Pages))
	for _, p := range body.Query.Pages {
		if extract := strings.TrimSpace(p.Extract); extract != "" {
			pages = append(pages, page{title: p.Title, extract: extract, index: p.Index})
		}
	}

	if len(pages) == 0 {
		return "", ErrNotFound
	}

	// search rank, lowest first
	sort.Slice(pages, func(i, j int) bool { return pages[i].index < pages[j].index })

	client.logger.Debug().Str("topic", topic).Str("title", pages[0].title).Msg("found article")

	return pages[0].extract, nil
}
