package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted    prometheus.Counter
	SessionsConnected  prometheus.Counter
	SessionsEnded      *prometheus.CounterVec
	SessionsDropped    prometheus.Counter
	CallsSaved         prometheus.Counter
	CallSaveFailures   prometheus.Counter
	SessionDuration    prometheus.Histogram
	ChunksCaptured     prometheus.Counter
	ChunkSize          prometheus.Histogram
	TranscriptMessages *prometheus.CounterVec
	ActiveSession      prometheus.Gauge
}

// New registers every collector on its own registry so several managers can
// coexist in one process.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicedesk_sessions_started_total",
			Help: "Total number of accepted start requests",
		}),
		SessionsConnected: f.NewCounter(prometheus.CounterOpts{
			Name: "voicedesk_sessions_connected_total",
			Help: "Total number of sessions whose transport reported connected",
		}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicedesk_sessions_ended_total",
			Help: "Total number of sessions that left the active states, by result",
		}, []string{"result"}),
		SessionsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voicedesk_sessions_dropped_total",
			Help: "Total number of empty sessions discarded without persistence",
		}),
		CallsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "voicedesk_calls_saved_total",
			Help: "Total number of call records accepted by the persistence service",
		}),
		CallSaveFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "voicedesk_call_save_failures_total",
			Help: "Total number of call records the persistence service rejected",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicedesk_session_duration_seconds",
			Help:    "Connected duration of ended sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ChunksCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "voicedesk_audio_chunks_captured_total",
			Help: "Total number of encoded audio chunks captured",
		}),
		ChunkSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicedesk_audio_chunk_size_bytes",
			Help:    "Size of encoded audio chunks",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
		}),
		TranscriptMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicedesk_transcript_messages_total",
			Help: "Total number of transcript messages appended, by role",
		}, []string{"role"}),
		ActiveSession: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicedesk_active_session",
			Help: "1 while a session is connecting or connected",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
