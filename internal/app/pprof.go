package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	pprofhttp "net/http/pprof"
	"sync"

	"stellarexporter/internal/config"
	"stellarexporter/internal/exporter"
)

// startPprofServer starts optional pprof HTTP endpoint on its own listener.
// Params: ctx controls lifecycle; cfg provides enabled/listen options; logger reports runtime events.
// Returns: stop function (idempotent, waits for shutdown) and startup error.
func startPprofServer(ctx context.Context, cfg config.PprofConfig, logger *slog.Logger) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	pprofLogger := logger.With(slog.String("component", "pprof"))
	server, err := exporter.NewServer(cfg.Listen, pprofMux(), pprofLogger)
	if err != nil {
		return nil, fmt.Errorf("pprof: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Run(runCtx); err != nil {
			pprofLogger.Error("pprof server failed", slog.String("addr", cfg.Listen), slog.String("error", err.Error()))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprofhttp.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprofhttp.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprofhttp.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprofhttp.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprofhttp.Trace)
	return mux
}
