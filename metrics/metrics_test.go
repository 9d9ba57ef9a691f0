package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	t.Run("counters record by label", func(t *testing.T) {
		r := New(prometheus.NewRegistry())

		r.WakeTriggered()
		r.WakeTriggered()
		r.CommandOutcome("no_speech")
		r.Intent("play_media")
		r.HandlerFailed("fetch_news")
		r.SynthesisJob("dropped")
		r.SetCommandMode(true)

		assert.Equal(t, 2.0, testutil.ToFloat64(r.WakeTriggers))
		assert.Equal(t, 1.0, testutil.ToFloat64(r.CommandOutcomes.WithLabelValues("no_speech")))
		assert.Equal(t, 1.0, testutil.ToFloat64(r.Intents.WithLabelValues("play_media")))
		assert.Equal(t, 1.0, testutil.ToFloat64(r.HandlerFailures.WithLabelValues("fetch_news")))
		assert.Equal(t, 1.0, testutil.ToFloat64(r.SynthesisJobs.WithLabelValues("dropped")))
		assert.Equal(t, 1.0, testutil.ToFloat64(r.CommandMode))

		r.SetCommandMode(false)
		assert.Equal(t, 0.0, testutil.ToFloat64(r.CommandMode))
	})

	t.Run("a nil recorder is a no-op", func(t *testing.T) {
		var r *Recorder

		assert.NotPanics(t, func() {
			r.WakeTriggered()
			r.CommandOutcome("text")
			r.Intent("open_site")
			r.HandlerFailed("open_site")
			r.SynthesisJob("played")
			r.ObserveTranscription(time.Second)
			r.SetCommandMode(true)
		})
	})
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).WakeTriggered()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- Serve(ctx, addr, reg, zerolog.Nop())
	}()

	var body string

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}

		body = string(data)

		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, body, "voice_dispatcher_wake_triggers_total 1")

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
