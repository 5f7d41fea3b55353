package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"stellarexporter/internal/core"
	"stellarexporter/internal/match"
	"stellarexporter/internal/metrics"
)

// Scrape phases, in execution order.
const (
	PhaseMetrics = "metrics"
	PhaseInfo    = "info"
	PhaseCursors = "cursors"
)

// Source fetches raw node snapshots.
// *core.Client is the production implementation.
type Source interface {
	Metrics(ctx context.Context) ([]byte, error)
	Info(ctx context.Context) ([]byte, error)
	Cursors(ctx context.Context) ([]byte, bool, error)
}

// Options configures an Exporter.
type Options struct {
	Namespace       string
	Filter          []string
	Drop            []string
	Strict          bool
	SelfMetricsPath string
	Logger          *slog.Logger
}

// PhaseError is a failed scrape phase.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// StatusCode maps the phase failure to an HTTP status: 504 for fetch failures, 500 otherwise.
func (e *PhaseError) StatusCode() int {
	var fetchErr *core.FetchError
	if errors.As(e.Err, &fetchErr) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing error text.
func (e *PhaseError) Message() string {
	var fetchErr *core.FetchError
	if errors.As(e.Err, &fetchErr) {
		return "Error retrieving data from " + fetchErr.URL
	}
	return fmt.Sprintf("Error parsing %s JSON data: %v", e.Phase, e.Err)
}

// Exporter serves node metrics in Prometheus text format, fetching and translating on every request.
// Requests share no mutable state besides self-metrics counters.
type Exporter struct {
	source          Source
	translator      *metrics.Translator
	strict          bool
	selfMetricsPath string
	logger          *slog.Logger
	self            *selfMetrics
}

// New creates an exporter over src.
// Params: src node snapshot source; opts naming/filter/failure settings.
// Returns: exporter instance.
func New(src Source, opts Options) *Exporter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	self := newSelfMetrics()

	return &Exporter{
		source: src,
		translator: metrics.NewTranslator(metrics.TranslatorOptions{
			Namespace: opts.Namespace,
			Filter:    match.NewNameFilter(opts.Filter, opts.Drop),
			OnDrop: func(_ string, err error) {
				self.observeDrop(err)
			},
			Logger: logger,
		}),
		strict:          opts.Strict,
		selfMetricsPath: opts.SelfMetricsPath,
		logger:          logger,
		self:            self,
	}
}

// Handler returns the HTTP handler: self-metrics on its path, node scrape everywhere else.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	if e.selfMetricsPath != "" {
		mux.Handle(e.selfMetricsPath, e.self.handler())
	}
	mux.Handle("/", e)
	return mux
}

// Scrape runs the metrics, info and cursors phases into a fresh registry.
// Params: ctx request context.
// Returns: registry with every record translated so far and the failed phases.
// In strict mode the scrape stops at the first failed phase.
func (e *Exporter) Scrape(ctx context.Context) (*metrics.Registry, []*PhaseError) {
	infoPayload, infoErr := e.source.Info(ctx)
	var labels metrics.LabelSet
	if infoErr != nil {
		labels = metrics.UnknownLabels()
	} else {
		labels = metrics.DefaultLabelsFromInfo(infoPayload)
	}
	reg := metrics.NewRegistry(labels)

	phases := []struct {
		name string
		run  func() error
	}{
		{name: PhaseMetrics, run: func() error { return e.scrapeMetrics(ctx, reg) }},
		{name: PhaseInfo, run: func() error {
			if infoErr != nil {
				return infoErr
			}
			return e.translator.TranslateInfo(infoPayload, reg)
		}},
		{name: PhaseCursors, run: func() error { return e.scrapeCursors(ctx, reg) }},
	}

	var failed []*PhaseError
	for _, phase := range phases {
		if err := phase.run(); err != nil {
			phaseErr := &PhaseError{Phase: phase.name, Err: err}
			e.self.observePhaseError(phase.name, err)
			e.logger.Warn("scrape phase failed", slog.String("phase", phase.name), slog.String("error", err.Error()))
			failed = append(failed, phaseErr)
			if e.strict {
				break
			}
		}
	}
	return reg, failed
}

func (e *Exporter) scrapeMetrics(ctx context.Context, reg *metrics.Registry) error {
	payload, err := e.source.Metrics(ctx)
	if err != nil {
		return err
	}
	translated, err := e.translator.TranslateMetrics(payload, reg)
	if err != nil {
		return err
	}
	e.logger.Debug("node metrics translated", slog.Int("metrics", translated))
	return nil
}

func (e *Exporter) scrapeCursors(ctx context.Context, reg *metrics.Registry) error {
	payload, supported, err := e.source.Cursors(ctx)
	if err != nil {
		return err
	}
	if !supported {
		e.logger.Debug("node does not support getcursor")
		return nil
	}
	return e.translator.TranslateCursors(payload, reg)
}

// ServeHTTP serves one scrape.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reg, failed := e.Scrape(r.Context())

	if e.strict && len(failed) > 0 {
		e.self.observeScrape(started, 0, true)
		e.writeError(w, failed[0].StatusCode(), failed[0].Message())
		return
	}

	payload := reg.Render()
	if len(payload) == 0 {
		e.self.observeScrape(started, 0, true)
		e.writeError(w, http.StatusInternalServerError, "Error - no metrics were generated")
		return
	}

	e.self.observeScrape(started, reg.Len(), false)
	w.Header().Set("Content-Type", metrics.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		e.logger.Debug("write scrape response", slog.String("error", err.Error()))
	}
}

func (e *Exporter) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", metrics.ContentType)
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "%s\n", msg)
}
