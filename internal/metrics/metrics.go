// Package metrics exposes an optional Prometheus endpoint: credential
// pool health and ledger counters, additive instrumentation with no
// effect on batch behavior when never started.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookeating/novelcondenser-go/credential"
)

// Registry groups the gauges/counters one batch run updates.
type Registry struct {
	reg *prometheus.Registry

	CredentialsCooling *prometheus.GaugeVec
	CredentialsSkipped *prometheus.GaugeVec
	ConcurrencyCeiling *prometheus.GaugeVec
	ChaptersProcessed  prometheus.Counter
	ChaptersFailed     prometheus.Counter
	RetriesTotal       prometheus.Counter
}

// New builds a fresh, isolated Registry (never the global default, so
// multiple batches in a single process — e.g. tests — never collide).
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		CredentialsCooling: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "novelcondenser_credentials_cooling",
			Help: "Number of credentials currently in a cooldown window, by family.",
		}, []string{"family"}),
		CredentialsSkipped: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "novelcondenser_credentials_skipped",
			Help: "Number of credentials permanently skipped for the session, by family.",
		}, []string{"family"}),
		ConcurrencyCeiling: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "novelcondenser_max_concurrency",
			Help: "Computed worker ceiling, by family.",
		}, []string{"family"}),
		ChaptersProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "novelcondenser_chapters_processed_total",
			Help: "Chapters that reached a successful outcome.",
		}),
		ChaptersFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "novelcondenser_chapters_failed_total",
			Help: "Chapters that reached a failed or errored outcome.",
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "novelcondenser_pipeline_retries_total",
			Help: "Outer pipeline-level retries (fresh-credential reattempts), excluding adapter-internal transport retries.",
		}),
	}
}

// ObservePool samples one family's pool into the cooling/skipped/ceiling gauges.
func (r *Registry) ObservePool(family credential.Family, pool *credential.Pool) {
	if pool == nil {
		return
	}
	cooling := 0
	now := time.Now()
	for _, s := range pool.Snapshot() {
		if s.CoolingUntil.After(now) {
			cooling++
		}
	}
	skipped := 0
	for _, s := range pool.Snapshot() {
		if s.Skipped {
			skipped++
		}
	}
	r.CredentialsCooling.WithLabelValues(string(family)).Set(float64(cooling))
	r.CredentialsSkipped.WithLabelValues(string(family)).Set(float64(skipped))
	r.ConcurrencyCeiling.WithLabelValues(string(family)).Set(float64(pool.MaxConcurrency()))
}

// Serve starts a promhttp endpoint on addr and blocks until ctx is
// cancelled, then shuts the server down gracefully.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
