package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "voice_dispatcher"

// Recorder holds every collector of the process. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	WakeTriggers          prometheus.Counter
	CommandOutcomes       *prometheus.CounterVec
	Intents               *prometheus.CounterVec
	HandlerFailures       *prometheus.CounterVec
	SynthesisJobs         *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	CommandMode           prometheus.Gauge
}

func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		WakeTriggers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_triggers_total",
			Help:      "Total number of accepted wake phrase detections",
		}),
		CommandOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_outcomes_total",
			Help:      "Total number of command captures by transcription outcome",
		}, []string{"outcome"}),
		Intents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Total number of dispatched intents",
		}, []string{"intent"}),
		HandlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_failures_total",
			Help:      "Total number of intent handlers that failed or panicked",
		}, []string{"intent"}),
		SynthesisJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_jobs_total",
			Help:      "Total number of synthesis jobs by final status",
		}, []string{"status"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Time spent transcribing one command utterance",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		}),
		CommandMode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_mode",
			Help:      "1 while capturing a command, 0 while waiting for the wake phrase",
		}),
	}
}

func (r *Recorder) WakeTriggered() {
	if r == nil {
		return
	}

	r.WakeTriggers.Inc()
}

func (r *Recorder) CommandOutcome(outcome string) {
	if r == nil {
		return
	}

	r.CommandOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Intent(intent string) {
	if r == nil {
		return
	}

	r.Intents.WithLabelValues(intent).Inc()
}

func (r *Recorder) HandlerFailed(intent string) {
	if r == nil {
		return
	}

	r.HandlerFailures.WithLabelValues(intent).Inc()
}

func (r *Recorder) SynthesisJob(status string) {
	if r == nil {
		return
	}

	r.SynthesisJobs.WithLabelValues(status).Inc()
}

func (r *Recorder) ObserveTranscription(d time.Duration) {
	if r == nil {
		return
	}

	r.TranscriptionDuration.Observe(d.Seconds())
}

func (r *Recorder) SetCommandMode(active bool) {
	if r == nil {
		return
	}

	if active {
		r.CommandMode.Set(1)
	} else {
		r.CommandMode.Set(0)
	}
}

// Serve exposes the gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
