// Package app wires the store, the categorizer, the import pipeline and the
// dashboard from configuration. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/archive"
	"github.com/rumor-ml/commons.systems/budgetter/internal/classify"
	"github.com/rumor-ml/commons.systems/budgetter/internal/config"
	"github.com/rumor-ml/commons.systems/budgetter/internal/dashboard"
	"github.com/rumor-ml/commons.systems/budgetter/internal/firestore"
	"github.com/rumor-ml/commons.systems/budgetter/internal/handlers"
	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
	"github.com/rumor-ml/commons.systems/budgetter/internal/pipeline"
	"github.com/rumor-ml/commons.systems/budgetter/internal/reconcile"
	"github.com/rumor-ml/commons.systems/budgetter/internal/registry"
	"github.com/rumor-ml/commons.systems/budgetter/internal/rules"
	"github.com/rumor-ml/commons.systems/budgetter/internal/store"
	"github.com/rumor-ml/commons.systems/budgetter/internal/streaming"
	"github.com/rumor-ml/commons.systems/budgetter/internal/transform"
)

// archivePrefix is the object prefix of archived statements.
const archivePrefix = "statements"

// Mode selects how dashboard events are handled.
type Mode int

const (
	// ModeServer publishes every committed transaction to the event queue.
	ModeServer Mode = iota
	// ModeCLI publishes nothing; callers refresh the dashboard once with
	// RefreshDashboard when they are done.
	ModeCLI
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config      config.Config
	Log         zerolog.Logger
	Store       *store.Store
	Categorizer *rules.Categorizer
	Hub         *streaming.StreamHub
	Aggregator  *dashboard.Aggregator
	Queue       *dashboard.Queue
	Pipeline    *pipeline.Pipeline
	Firebase    *firestore.Client

	classifier classify.Classifier
	closers    []func() error
}

// New opens the database and builds every collaborator cfg enables. On
// error everything already opened is closed.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger, mode Mode) (a *App, err error) {
	a = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Store, err = store.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)

	if err := a.setupClassifier(ctx); err != nil {
		return nil, err
	}
	a.Categorizer = rules.NewCategorizer(a.classifier, cfg.Classifier.Threshold, log)

	if cfg.Firebase.ProjectID != "" {
		a.Firebase, err = firestore.NewClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Firebase.Close)
	}

	a.Hub = streaming.NewStreamHub(log)
	a.closers = append(a.closers, func() error { a.Hub.Close(); return nil })

	a.Aggregator = dashboard.NewAggregator(a.Store, log)
	sinks := []dashboard.Sink{dashboard.HubSink{Hub: a.Hub, Room: cfg.Dashboard.Room}}
	if cfg.Firebase.MirrorCollection != "" {
		sinks = append(sinks, firestore.NewMirror(a.Firebase, cfg.Firebase.MirrorCollection))
	}
	a.Queue = dashboard.NewQueue(a.Aggregator, cfg.Dashboard.QueueSize, log, sinks...)

	var publisher reconcile.Publisher
	if mode == ModeServer {
		publisher = a.Queue
	}

	opts := reconcile.Options{BalancePolicy: cfg.Import.BalancePolicy}
	if len(cfg.Import.InternalTransferPatterns) > 0 {
		opts.Transfers, err = transform.NewTransferMatcher(cfg.Import.InternalTransferPatterns)
		if err != nil {
			return nil, err
		}
	}

	pipeOpts := []pipeline.Option{
		pipeline.WithOptions(opts),
		pipeline.WithMaxBytes(cfg.Import.MaxUploadBytes),
	}
	if cfg.Archive.Bucket != "" {
		objects, err := archive.NewGCS(ctx, cfg.Archive.Bucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, objects.Close)
		pipeOpts = append(pipeOpts, pipeline.WithArchiver(archive.New(objects, archivePrefix, log)))
	}

	engine := reconcile.New(a.Store, a.Categorizer, publisher, log)
	a.Pipeline = pipeline.New(registry.New(log), engine, log, pipeOpts...)
	return a, nil
}

// setupClassifier builds the configured fallback classifier behind an
// Isolated worker. The Bayes model trains in the background; until it is
// ready it answers NotLoaded.
func (a *App) setupClassifier(ctx context.Context) error {
	cfg := a.Config.Classifier
	var inner classify.Classifier
	switch cfg.Provider {
	case config.ProviderBayes:
		b := classify.NewBayes(a.Log)
		go func() {
			if err := b.TrainFrom(context.WithoutCancel(ctx), a.Store); err != nil {
				a.Log.Warn().Err(err).Msg("bayes training failed")
			}
		}()
		inner = b
	case config.ProviderGemini:
		g, err := classify.NewGemini(ctx, cfg.Model, cfg.Timeout, a.Log)
		if err != nil {
			return err
		}
		inner = g
	default:
		return nil
	}

	isolated := classify.NewIsolated(inner)
	a.classifier = isolated
	a.closers = append(a.closers, isolated.Close)
	a.Log.Info().Str("provider", cfg.Provider).Float64("threshold", cfg.Threshold).Msg("classifier enabled")
	return nil
}

// Verifier returns the Firebase token verifier when auth is enabled.
func (a *App) Verifier() middleware.TokenVerifier {
	if !a.Config.Firebase.AuthEnabled || a.Firebase == nil {
		return nil
	}
	return a.Firebase.Auth
}

// APIHandler builds the HTTP handler set over the app's collaborators.
func (a *App) APIHandler() *handlers.APIHandler {
	return handlers.NewAPIHandler(handlers.Deps{
		Store:       a.Store,
		Categorizer: a.Categorizer,
		Publisher:   a.Queue,
		Aggregator:  a.Aggregator,
		Pipeline:    a.Pipeline,
		MaxUpload:   a.Config.Import.MaxUploadBytes,
	})
}

// RefreshDashboard builds the dashboard once and delivers it to the sinks.
func (a *App) RefreshDashboard(ctx context.Context) (*dashboard.Payload, error) {
	latest, err := a.Store.LatestTransaction(ctx)
	if err != nil {
		return nil, err
	}
	p, err := a.Aggregator.Build(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("build dashboard: %w", err)
	}
	a.Queue.Deliver(ctx, p)
	return p, nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
