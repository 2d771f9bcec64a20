package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"decide-ai/internal/api"
	"decide-ai/internal/audit"
	"decide-ai/internal/config"
	"decide-ai/internal/credential"
	"decide-ai/internal/db"
	"decide-ai/internal/flow"
	"decide-ai/internal/generation"
)

func main() {
	cfg := config.Load()
	config.InitLogger(cfg.LogLevel)
	cfg.LogWarnings()
	log := config.Logger

	opts := api.Options{Backend: cfg.Backend}
	recorder := audit.Recorder(audit.NopRecorder{})
	if cfg.DiagnosticsDB != "" {
		conn, err := db.Open(cfg.DiagnosticsDB)
		if err != nil {
			log.Fatalf("open diagnostics database: %v", err)
		}
		defer conn.Close()
		sqliteRecorder := audit.NewSQLiteRecorder(conn)
		recorder = sqliteRecorder
		opts.Diagnostics = sqliteRecorder
	}

	store := credential.NewStore(cfg.APIKey())
	selector := credential.NewPendingSelector(store)
	opts.Credentials = selector

	client := generation.NewClient(
		generation.NewBackend(cfg, nil),
		credential.NewGate(store, selector),
		generation.Options{
			QuestionCount:  cfg.QuestionCount,
			RequestTimeout: cfg.RequestTimeout,
			Recorder:       recorder,
		},
	)

	server := api.NewServer(func() *flow.Controller { return flow.NewController(client) }, opts)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infof("listening on :%s (backend %s)", cfg.Port, cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
