package actions

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"voice-dispatcher/clients/video_search"
	"voice-dispatcher/fuzzy_match"
)

const (
	DefaultMediaCutoff = 0.6

	msgWhatToPlay   = "What would you like me to play?"
	msgNoLink       = "I couldn't find a link. Opening search results."
	msgSearchFailed = "I ran into an issue searching YouTube."
	msgOpenFailed   = "Sorry, I could not open the video."
)

// DefaultLibrary maps song names to the page that plays them.
var DefaultLibrary = map[string]string{
	"skyfall":      "https://www.youtube.com/watch?v=DeumyOzKqgI",
	"shape of you": "https://www.youtube.com/watch?v=JGwWNGJdvx8",
	"believer":     "https://www.youtube.com/watch?v=7wtfhZwyrcc",
	"faded":        "https://www.youtube.com/watch?v=60ItHLz5WEA",
}

type MediaConfig struct {
	Library   map[string]string
	Cutoff    float64
	Search    video_search.Interface
	Navigator Navigator
	Speaker   Speaker
	Logger    zerolog.Logger
}

// MediaHandler resolves a spoken song name to something playable: the local
// library first, then a fuzzy match on the library, then a video search.
type MediaHandler struct {
	library   map[string]string
	names     []string
	cutoff    float64
	search    video_search.Interface
	navigator Navigator
	speaker   Speaker
	logger    zerolog.Logger
}

func NewMediaHandler(cfg *MediaConfig) (*MediaHandler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.Search == nil || cfg.Navigator == nil || cfg.Speaker == nil {
		return nil, fmt.Errorf("search, navigator and speaker are required")
	}

	if cfg.Cutoff <= 0 || cfg.Cutoff > 1 {
		return nil, fmt.Errorf("media cutoff must be in (0, 1], got %v", cfg.Cutoff)
	}

	library := make(map[string]string, len(cfg.Library))
	for name, url := range cfg.Library {
		library[strings.ToLower(strings.TrimSpace(name))] = url
	}

	names := make([]string, 0, len(library))
	for name := range library {
		names = append(names, name)
	}

	slices.Sort(names)

	return &MediaHandler{
		library:   library,
		names:     names,
		cutoff:    cfg.Cutoff,
		search:    cfg.Search,
		navigator: cfg.Navigator,
		speaker:   cfg.Speaker,
		logger:    cfg.Logger.With().Str("component", "media").Logger(),
	}, nil
}

func (h *MediaHandler) Handle(ctx context.Context, query string) error {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		h.speaker.Submit(msgWhatToPlay)

		return nil
	}

	if url, ok := h.library[query]; ok {
		return h.play(query, withAutoplay(url))
	}

	if match, ok := fuzzy_match.BestMatch(query, h.names, h.cutoff); ok {
		h.logger.Debug().Str("query", query).Str("match", match.Candidate).Float64("score", match.Score).Msg("fuzzy library match")

		return h.play(match.Candidate, withAutoplay(h.library[match.Candidate]))
	}

	result, err := h.search.Search(ctx, query)
	if err != nil {
		h.speaker.Submit(msgSearchFailed)

		return fmt.Errorf("search %q: %w", query, err)
	}

	if len(result.VideoIDs) > 0 {
		return h.play(query, video_search.WatchURL(result.VideoIDs[0]))
	}

	h.speaker.Submit(msgNoLink)

	if err := h.navigator.Open(result.SearchURL); err != nil {
		h.speaker.Submit(msgOpenFailed)

		return fmt.Errorf("open %s: %w", result.SearchURL, err)
	}

	return nil
}

func (h *MediaHandler) play(name, url string) error {
	h.speaker.Submit("Playing " + name)

	if err := h.navigator.Open(url); err != nil {
		h.speaker.Submit(msgOpenFailed)

		return fmt.Errorf("open %s: %w", url, err)
	}

	return nil
}

// withAutoplay asks watch pages to start playing on load.
func withAutoplay(url string) string {
	if !strings.Contains(url, "youtube.com/watch") || strings.Contains(url, "autoplay=1") {
		return url
	}

	if strings.Contains(url, "?") {
		return url + "&autoplay=1"
	}

	return url + "?autoplay=1"
}
