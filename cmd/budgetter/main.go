package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rumor-ml/commons.systems/budgetter/internal/app"
	"github.com/rumor-ml/commons.systems/budgetter/internal/config"
	"github.com/rumor-ml/commons.systems/budgetter/internal/logger"
	"github.com/rumor-ml/commons.systems/budgetter/internal/server"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")
	envFile     = flag.String("env", ".env", "dotenv file loaded before the environment")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("budgetter version %s\n", version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}

	log, err := logger.Build(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log, app.ModeServer)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.Close()

	a.Queue.Start()

	srv := server.New(a.APIHandler(), a.Hub, server.Options{
		APIPrefix:       cfg.Server.APIPrefix,
		CORSOrigins:     cfg.Server.CORSOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Verifier:        a.Verifier(),
	}, log)

	serveErr := srv.ListenAndServe(ctx, cfg.Server.Addr)

	// Let pending dashboard events reach subscribers before the hub closes.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Queue.Stop(drainCtx); err != nil {
		log.Warn().Err(err).Int64("dropped", a.Queue.Dropped()).Msg("dashboard queue stopped early")
	}

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	log.Info().Msg("server stopped")
	return nil
}
