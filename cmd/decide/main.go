package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"

	"decide-ai/internal/audit"
	"decide-ai/internal/cli"
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

	recorder := audit.Recorder(audit.NopRecorder{})
	if cfg.DiagnosticsDB != "" {
		conn, err := db.Open(cfg.DiagnosticsDB)
		if err != nil {
			log.Fatalf("open diagnostics database: %v", err)
		}
		defer conn.Close()
		recorder = audit.NewSQLiteRecorder(conn)
	}

	in := bufio.NewReader(os.Stdin)
	store := credential.NewStore(cfg.APIKey())

	client := generation.NewClient(
		generation.NewBackend(cfg, nil),
		credential.NewGate(store, credential.NewPromptSelector(in, os.Stdout, store)),
		generation.Options{
			QuestionCount:  cfg.QuestionCount,
			RequestTimeout: cfg.RequestTimeout,
			Recorder:       recorder,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := cli.New(in, os.Stdout, flow.NewController(client))
	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("decide exited with an error")
		os.Exit(1)
	}
}
