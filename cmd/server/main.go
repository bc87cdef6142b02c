package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/tategaki/internal/api"
	"github.com/dgallion1/tategaki/internal/config"
	"github.com/dgallion1/tategaki/internal/session"
	"github.com/dgallion1/tategaki/internal/stats"
	"github.com/dgallion1/tategaki/internal/store"
	"github.com/dgallion1/tategaki/internal/surface"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage.
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Error("opening store", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}

	measurer, err := surface.NewFontMeasurer(cfg.FontPath)
	if err != nil {
		log.Error("loading font", "path", cfg.FontPath, "error", err)
		os.Exit(1)
	}

	// Initialize live sessions.
	timings := stats.NewSet(10 * time.Minute)
	sessions := session.NewManager(st, session.Config{
		PageWidth:       cfg.PageWidth,
		ReferenceHeight: cfg.ReferenceHeight,
		Settle:          cfg.PaginationSettle,
		SaveDebounce:    cfg.SaveDebounce,
		Viewport:        surface.Viewport{FontSize: cfg.FontSize, LineHeight: cfg.LineHeight},
		Measurer:        measurer,
		Stats:           timings,
		Logger:          log,
	}, cfg.SessionIdleTimeout)
	sessions.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(st, sessions, timings, measurer, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: live sessions set their own write deadlines.
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown. Sessions save pending edits before the store closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		sessions.Stop()
		st.Close()
	}()

	log.Info("starting tategaki", "port", cfg.Port, "database", cfg.DatabasePath)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
