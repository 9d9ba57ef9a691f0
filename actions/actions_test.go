package actions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-dispatcher/clients/video_search"
	"voice-dispatcher/command_router"
	"voice-dispatcher/metrics"
)

// timeline records speech and navigation in the order they happen.
type timeline struct {
	mu      sync.Mutex
	events  []string
	openErr error
}

func (tl *timeline) Submit(text string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, "say: "+text)
}

func (tl *timeline) Open(url string) error {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, "open: "+url)

	return tl.openErr
}

func (tl *timeline) list() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return append([]string(nil), tl.events...)
}

type fakeSearch struct {
	result video_search.Result
	err    error
	calls  int
}

func (s *fakeSearch) Search(_ context.Context, query string) (video_search.Result, error) {
	s.calls++

	if s.result.SearchURL == "" {
		s.result.SearchURL = video_search.SearchURL(video_search.DefaultBaseURL, query)
	}

	return s.result, s.err
}

func newMedia(t *testing.T, tl *timeline, search *fakeSearch) *MediaHandler {
	t.Helper()

	h, err := NewMediaHandler(&MediaConfig{
		Library:   DefaultLibrary,
		Cutoff:    DefaultMediaCutoff,
		Search:    search,
		Navigator: tl,
		Speaker:   tl,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	return h
}

func TestMediaHandler_Handle(t *testing.T) {
	t.Run("library hit is acknowledged once before navigation", func(t *testing.T) {
		tl := &timeline{}
		search := &fakeSearch{}

		require.NoError(t, newMedia(t, tl, search).Handle(context.Background(), "skyfall"))

		assert.Equal(t, []string{
			"say: Playing skyfall",
			"open: https://www.youtube.com/watch?v=DeumyOzKqgI&autoplay=1",
		}, tl.list())
		assert.Zero(t, search.calls)
	})

	t.Run("near miss resolves through the library", func(t *testing.T) {
		tl := &timeline{}

		require.NoError(t, newMedia(t, tl, &fakeSearch{}).Handle(context.Background(), "sky fall"))

		assert.Equal(t, []string{
			"say: Playing skyfall",
			"open: https://www.youtube.com/watch?v=DeumyOzKqgI&autoplay=1",
		}, tl.list())
	})

	t.Run("unknown songs play the first search result", func(t *testing.T) {
		tl := &timeline{}
		search := &fakeSearch{result: video_search.Result{VideoIDs: []string{"kJQP7kiw5Fk", "xxxxxxxxxxx"}}}

		require.NoError(t, newMedia(t, tl, search).Handle(context.Background(), "despacito"))

		assert.Equal(t, []string{
			"say: Playing despacito",
			"open: https://www.youtube.com/watch?v=kJQP7kiw5Fk&autoplay=1",
		}, tl.list())
	})

	t.Run("no result ids opens the results page", func(t *testing.T) {
		tl := &timeline{}

		require.NoError(t, newMedia(t, tl, &fakeSearch{}).Handle(context.Background(), "obscure b side"))

		assert.Equal(t, []string{
			"say: I couldn't find a link. Opening search results.",
			"open: https://www.youtube.com/results?search_query=%22obscure+b+side%22",
		}, tl.list())
	})

	t.Run("search failures become a spoken apology", func(t *testing.T) {
		tl := &timeline{}

		err := newMedia(t, tl, &fakeSearch{err: errors.New("connection reset")}).Handle(context.Background(), "despacito")

		assert.Error(t, err)
		assert.Equal(t, []string{"say: I ran into an issue searching YouTube."}, tl.list())
	})

	t.Run("navigation failures after the acknowledgment are apologized for", func(t *testing.T) {
		tl := &timeline{openErr: errors.New("no browser")}

		err := newMedia(t, tl, &fakeSearch{}).Handle(context.Background(), "skyfall")

		assert.Error(t, err)
		assert.Equal(t, []string{
			"say: Playing skyfall",
			"open: https://www.youtube.com/watch?v=DeumyOzKqgI&autoplay=1",
			"say: " + msgOpenFailed,
		}, tl.list())
	})

	t.Run("empty query asks what to play", func(t *testing.T) {
		tl := &timeline{}

		require.NoError(t, newMedia(t, tl, &fakeSearch{}).Handle(context.Background(), " "))
		assert.Equal(t, []string{"say: What would you like me to play?"}, tl.list())
	})
}

func TestWithAutoplay(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc&autoplay=1", withAutoplay("https://www.youtube.com/watch?v=abc"))
	assert.Equal(t, "https://youtube.com/watch?autoplay=1", withAutoplay("https://youtube.com/watch"))
	assert.Equal(t, "https://www.youtube.com/watch?v=abc&autoplay=1", withAutoplay("https://www.youtube.com/watch?v=abc&autoplay=1"))
	assert.Equal(t, "https://open.spotify.com/track/1", withAutoplay("https://open.spotify.com/track/1"))
}

type fakeNews struct {
	titles []string
	err    error
}

func (n *fakeNews) TopHeadlines(context.Context, string, int) ([]string, error) {
	return n.titles, n.err
}

type fakeWiki struct {
	summary string
	err     error
	topic   string
}

func (w *fakeWiki) Summary(_ context.Context, topic string, _ int) (string, error) {
	w.topic = topic

	return w.summary, w.err
}

type fakeBot struct {
	answer string
	err    error
}

func (b *fakeBot) SendPrompt(context.Context, string) (string, error) {
	return b.answer, b.err
}

func TestHandlers(t *testing.T) {
	t.Run("site handler opens the mapped url", func(t *testing.T) {
		tl := &timeline{}
		h := &SiteHandler{Sites: map[string]string{"google": "https://www.google.com"}, Navigator: tl, Speaker: tl}

		require.NoError(t, h.Handle(context.Background(), "google"))
		assert.Equal(t, []string{"open: https://www.google.com"}, tl.list())
	})

	t.Run("site handler apologizes for navigation failures", func(t *testing.T) {
		tl := &timeline{openErr: errors.New("no browser")}
		h := &SiteHandler{Sites: map[string]string{"google": "https://www.google.com"}, Navigator: tl, Speaker: tl}

		assert.Error(t, h.Handle(context.Background(), "google"))
		assert.Contains(t, tl.list(), "say: "+msgSiteFailed)
	})

	t.Run("headlines are spoken as one response", func(t *testing.T) {
		tl := &timeline{}
		h := &NewsHandler{Client: &fakeNews{titles: []string{"Markets rally", "Rain expected?"}}, Speaker: tl, Logger: zerolog.Nop()}

		require.NoError(t, h.Handle(context.Background(), ""))
		assert.Equal(t, []string{"say: Here are the top headlines. Markets rally. Rain expected?"}, tl.list())
	})

	t.Run("news failures are apologized for once", func(t *testing.T) {
		tl := &timeline{}
		h := &NewsHandler{Client: &fakeNews{err: errors.New("401")}, Speaker: tl, Logger: zerolog.Nop()}

		assert.Error(t, h.Handle(context.Background(), ""))
		assert.Equal(t, []string{"say: Sorry, I could not fetch the news"}, tl.list())
	})

	t.Run("knowledge summaries are spoken", func(t *testing.T) {
		tl := &timeline{}
		wiki := &fakeWiki{summary: "Alan Turing was a mathematician."}
		h := &KnowledgeHandler{Client: wiki, Speaker: tl}

		require.NoError(t, h.Handle(context.Background(), "alan turing"))
		assert.Equal(t, "alan turing", wiki.topic)
		assert.Equal(t, []string{"say: Alan Turing was a mathematician."}, tl.list())
	})

	t.Run("knowledge failures are apologized for", func(t *testing.T) {
		tl := &timeline{}
		h := &KnowledgeHandler{Client: &fakeWiki{err: errors.New("not found")}, Speaker: tl}

		assert.Error(t, h.Handle(context.Background(), "qwxz"))
		assert.Equal(t, []string{"say: " + msgTopicFailed}, tl.list())
	})

	t.Run("general answers are spoken and empty ones apologized for", func(t *testing.T) {
		tl := &timeline{}

		require.NoError(t, (&GeneralHandler{Bot: &fakeBot{answer: "Forty two."}, Speaker: tl}).Handle(context.Background(), "meaning of life"))
		assert.Error(t, (&GeneralHandler{Bot: &fakeBot{answer: " "}, Speaker: tl}).Handle(context.Background(), "hmm"))

		assert.Equal(t, []string{"say: Forty two.", "say: " + msgAnswerFailed}, tl.list())
	})
}

type handlerFunc func(ctx context.Context, payload string) error

func (f handlerFunc) Handle(ctx context.Context, payload string) error {
	return f(ctx, payload)
}

func newDispatcher(t *testing.T, tl *timeline, general Handler, rec *metrics.Recorder) Interface {
	t.Helper()

	record := func(name string) Handler {
		return handlerFunc(func(_ context.Context, payload string) error {
			tl.Submit(name + "(" + payload + ")")

			return nil
		})
	}

	d, err := New(&Config{
		Site:      record("site"),
		Media:     record("media"),
		News:      &NewsHandler{Client: &fakeNews{err: errors.New("down")}, Speaker: tl, Logger: zerolog.Nop()},
		Knowledge: record("knowledge"),
		General:   general,
		Speaker:   tl,
		Metrics:   rec,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	return d
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Run("intents reach their handler", func(t *testing.T) {
		tl := &timeline{}
		d := newDispatcher(t, tl, nil, nil)

		d.Dispatch(context.Background(), command_router.Intent{Kind: command_router.KindOpenSite, Payload: "google"})
		d.Dispatch(context.Background(), command_router.Intent{Kind: command_router.KindPlayMedia, Payload: "skyfall"})
		d.Dispatch(context.Background(), command_router.Intent{Kind: command_router.KindKnowledgeQuery, Payload: "mars"})

		assert.Equal(t, []string{"say: site(google)", "say: media(skyfall)", "say: knowledge(mars)"}, tl.list())
	})

	t.Run("handler failures are counted and apologized for once", func(t *testing.T) {
		tl := &timeline{}
		rec := metrics.New(prometheus.NewRegistry())
		d := newDispatcher(t, tl, nil, rec)

		d.Dispatch(context.Background(), command_router.Intent{Kind: command_router.KindFetchNews})

		assert.Equal(t, []string{"say: Sorry, I could not fetch the news"}, tl.list())
		assert.Equal(t, 1.0, testutil.ToFloat64(rec.HandlerFailures.WithLabelValues("fetch_news")))
	})

	t.Run("general queries without a general handler are not understood", func(t *testing.T) {
		tl := &timeline{}
		d := newDispatcher(t, tl, nil, nil)

		d.Dispatch(context.Background(), command_router.Intent{Kind: command_router.KindGeneralQuery, Payload: "tell a joke"})
		d.Dispatch(context.Background(), command_router.Intent{Kind: command_router.KindUnrecognized})

		assert.Equal(t, []string{"say: " + msgUnrecognized, "say: " + msgUnrecognized}, tl.list())
	})

	t.Run("panicking handlers are recovered", func(t *testing.T) {
		tl := &timeline{}
		rec := metrics.New(prometheus.NewRegistry())
		d := newDispatcher(t, tl, handlerFunc(func(context.Context, string) error {
			panic("boom")
		}), rec)

		assert.NotPanics(t, func() {
			d.Dispatch(context.Background(), command_router.Intent{Kind: command_router.KindGeneralQuery, Payload: "x"})
		})

		assert.Equal(t, []string{"say: " + msgPanic}, tl.list())
		assert.Equal(t, 1.0, testutil.ToFloat64(rec.HandlerFailures.WithLabelValues("general_query")))
	})

	t.Run("new requires the core handlers", func(t *testing.T) {
		_, err := New(&Config{Speaker: &timeline{}})
		assert.Error(t, err)

		_, err = New(nil)
		assert.Error(t, err)
	})
}
