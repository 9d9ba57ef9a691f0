package command_router

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"voice-dispatcher/fuzzy_match"
)

const (
	DefaultSiteCutoff = 0.7
	DefaultPlayCutoff = 0.8
	DefaultNewsCutoff = 0.75

	playVerb = "play"
)

var (
	// DefaultSites maps the spoken site name to the page it opens.
	DefaultSites = map[string]string{
		"google":   "https://www.google.com",
		"youtube":  "https://www.youtube.com",
		"facebook": "https://www.facebook.com",
		"linkedin": "https://www.linkedin.com",
	}

	DefaultNewsVocabulary = []string{"news", "the news", "latest news", "headlines", "top headlines"}

	openVerbs = []string{"open", "launch"}

	questionWords = map[string]bool{
		"who": true, "who's": true,
		"what": true, "what's": true,
		"where": true, "where's": true,
		"how": true, "how's": true,
		"whom": true, "wikipedia": true,
	}

	// longer phrases first so "to whom" is removed before "whom"
	fillerPhrases = [][]string{
		{"tell", "me", "about"},
		{"search", "wikipedia", "for"},
		{"who", "is"}, {"who", "are"}, {"who", "was"}, {"who's"},
		{"what", "is"}, {"what", "are"}, {"what", "was"}, {"what's"},
		{"where", "is"}, {"where", "are"}, {"where's"},
		{"how", "is"}, {"how's"},
		{"to", "whom"}, {"whom"},
		{"on", "wikipedia"}, {"wikipedia"},
	}
)

type Cutoffs struct {
	Site float64
	Play float64
	News float64
}

func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		Site: DefaultSiteCutoff,
		Play: DefaultPlayCutoff,
		News: DefaultNewsCutoff,
	}
}

type Config struct {
	// Sites are the names accepted after "open". Defaults to the keys of
	// DefaultSites.
	Sites          []string
	NewsVocabulary []string
	Cutoffs        Cutoffs

	// GeneralEnabled routes everything else to the general query handler
	// instead of reporting it unrecognized.
	GeneralEnabled bool

	Logger zerolog.Logger
}

type routerImpl struct {
	sites          []string
	newsVocabulary []string
	cutoffs        Cutoffs
	generalEnabled bool
	logger         zerolog.Logger
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	for name, cutoff := range map[string]float64{
		"site": cfg.Cutoffs.Site,
		"play": cfg.Cutoffs.Play,
		"news": cfg.Cutoffs.News,
	} {
		if cutoff <= 0 || cutoff > 1 {
			return nil, fmt.Errorf("%s cutoff must be in (0, 1], got %v", name, cutoff)
		}
	}

	sites := cfg.Sites
	if len(sites) == 0 {
		for name := range DefaultSites {
			sites = append(sites, name)
		}
	}

	vocabulary := cfg.NewsVocabulary
	if len(vocabulary) == 0 {
		vocabulary = DefaultNewsVocabulary
	}

	return &routerImpl{
		sites:          normalizeAll(sites),
		newsVocabulary: normalizeAll(vocabulary),
		cutoffs:        cfg.Cutoffs,
		generalEnabled: cfg.GeneralEnabled,
		logger:         cfg.Logger.With().Str("component", "command_router").Logger(),
	}, nil
}

// normalizeAll returns the sorted, de-duplicated normalized forms so routing
// never depends on map or config order.
func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))

	for _, value := range values {
		if normalized := Normalize(value); normalized != "" {
			out = append(out, normalized)
		}
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// Normalize lowercases text, strips punctuation other than apostrophes and
// collapses whitespace.
func Normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, text)

	return strings.Join(strings.Fields(mapped), " ")
}

func (r *routerImpl) Route(text string) Intent {
	normalized := Normalize(text)
	if normalized == "" {
		return Intent{Kind: KindUnrecognized}
	}

	// each category tries its literal rule, then its fuzzy rule, before the
	// next category is considered
	intent, ok := r.site(normalized)
	if !ok {
		intent, ok = r.play(normalized)
	}

	if !ok {
		intent, ok = r.news(normalized)
	}

	if !ok {
		intent, ok = knowledge(normalized)
	}

	if !ok {
		if r.generalEnabled {
			intent = Intent{Kind: KindGeneralQuery, Payload: normalized}
		} else {
			intent = Intent{Kind: KindUnrecognized}
		}
	}

	intent.Text = normalized

	r.logger.Debug().
		Str("text", normalized).
		Stringer("intent", intent.Kind).
		Str("payload", intent.Payload).
		Msg("routed")

	return intent
}

func (r *routerImpl) site(text string) (Intent, bool) {
	padded := " " + text + " "
	for _, site := range r.sites {
		if strings.Contains(padded, " open "+site+" ") {
			return Intent{Kind: KindOpenSite, Payload: site}, true
		}
	}

	words := strings.Fields(text)

	target := text
	if _, ok := fuzzy_match.BestMatch(words[0], openVerbs, r.cutoffs.Site); ok && len(words) > 1 {
		target = strings.Join(words[1:], " ")
	}

	if match, ok := fuzzy_match.BestMatch(target, r.sites, r.cutoffs.Site); ok {
		return Intent{Kind: KindOpenSite, Payload: match.Candidate}, true
	}

	return Intent{}, false
}

func (r *routerImpl) play(text string) (Intent, bool) {
	if text == playVerb || strings.HasPrefix(text, playVerb+" ") {
		return Intent{Kind: KindPlayMedia, Payload: strings.TrimSpace(strings.TrimPrefix(text, playVerb))}, true
	}

	// a misheard verb only counts when something to play follows it and it is
	// not shorter than the verb itself
	words := strings.Fields(text)
	if len(words) < 2 || len(words[0]) < len(playVerb) {
		return Intent{}, false
	}

	if _, ok := fuzzy_match.BestMatch(words[0], []string{playVerb}, r.cutoffs.Play); ok {
		return Intent{Kind: KindPlayMedia, Payload: strings.Join(words[1:], " ")}, true
	}

	return Intent{}, false
}

func (r *routerImpl) news(text string) (Intent, bool) {
	if strings.Contains(text, "news") {
		return Intent{Kind: KindFetchNews}, true
	}

	if _, ok := fuzzy_match.BestMatch(text, r.newsVocabulary, r.cutoffs.News); ok {
		return Intent{Kind: KindFetchNews}, true
	}

	return Intent{}, false
}

func knowledge(text string) (Intent, bool) {
	words := strings.Fields(text)

	if !slices.ContainsFunc(words, func(word string) bool { return questionWords[word] }) {
		return Intent{}, false
	}

	for _, phrase := range fillerPhrases {
		words = removePhrase(words, phrase)
	}

	return Intent{Kind: KindKnowledgeQuery, Payload: strings.Join(words, " ")}, true
}

func removePhrase(words, phrase []string) []string {
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); {
		if i+len(phrase) <= len(words) && slices.Equal(words[i:i+len(phrase)], phrase) {
			i += len(phrase)

			continue
		}

		out = append(out, words[i])
		i++
	}

	return out
}
