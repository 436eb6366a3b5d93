package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/shone114/alternate-history/internal/config"
	"github.com/shone114/alternate-history/internal/events"
	"github.com/shone114/alternate-history/internal/gateway"
	"github.com/shone114/alternate-history/internal/metrics"
	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/pipeline"
	"github.com/shone114/alternate-history/internal/prompt"
	"github.com/shone114/alternate-history/internal/store"
	"github.com/shone114/alternate-history/internal/store/memory"
	"github.com/shone114/alternate-history/internal/store/postgres"
	althistsync "github.com/shone114/alternate-history/internal/sync"
)

// app holds the components shared by `serve` and `run`.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     store.Store
	publisher events.Publisher
	metrics   *metrics.Collector
	pipeline  *pipeline.Orchestrator
	exporter  *althistsync.Exporter
}

// newApp opens the store, bootstraps the universe and wires the pipeline.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: st, metrics: metrics.New()}

	if err := bootstrapUniverse(ctx, st, cfg, log); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
		log.Info("events enabled", zap.String("nats_url", cfg.NATSURL))
	} else {
		a.publisher = &events.NoopPublisher{}
		log.Info("events disabled (ALTHIST_NATS_URL not set)")
	}

	providers, err := buildProviders(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	router, err := gateway.NewRouter(providers, cfg.Routes, gateway.Options{
		Timeout: cfg.ModelTimeout,
		Logger:  log.Named("gateway"),
		Metrics: a.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.pipeline = pipeline.New(pipelineConfig(cfg), st, router, prompt.NewDirRenderer(cfg.PromptDir, log.Named("prompt")),
		pipeline.WithLogger(log.Named("pipeline")),
		pipeline.WithPublisher(a.publisher),
		pipeline.WithMetrics(a.metrics),
	)
	a.exporter = althistsync.NewExporter(st, cfg.UniverseID, exportDestinations(ctx, cfg, log), a.publisher, log.Named("export"))
	return a, nil
}

// Close releases the publisher and the store.
func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Error("error closing publisher", zap.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Error("error closing store", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.UsesMemoryStore() {
		return memory.New(), nil
	}
	pg, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.DefaultPool)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// bootstrapUniverse inserts the configured universe unless it exists. A
// missing seed file leaves the seed empty.
func bootstrapUniverse(ctx context.Context, st store.Store, cfg *config.Config, log *zap.Logger) error {
	seed, err := config.LoadSeed(cfg.SeedPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn("universe seed not found; continuing without one", zap.String("path", cfg.SeedPath))
	case err != nil:
		return err
	}

	u, err := st.EnsureUniverse(ctx, &model.Universe{
		ID:    cfg.UniverseID,
		Title: cfg.UniverseTitle,
		Seed:  seed,
	})
	if err != nil {
		return fmt.Errorf("bootstrapping universe: %w", err)
	}
	log.Info("universe ready", zap.String("universe_id", u.ID), zap.String("title", u.Title))
	return nil
}

// buildProviders registers every known provider. Providers without an API
// key are registered as unconfigured so routes to them fail per call.
func buildProviders(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]gateway.Provider, error) {
	var providers []gateway.Provider

	if cfg.OpenRouterAPIKey != "" {
		providers = append(providers, gateway.NewOpenRouter(cfg.OpenRouterAPIKey))
	} else {
		providers = append(providers, gateway.Unconfigured{ProviderName: gateway.ProviderOpenRouter})
	}
	if cfg.GroqAPIKey != "" {
		providers = append(providers, gateway.NewGroq(cfg.GroqAPIKey))
	} else {
		providers = append(providers, gateway.Unconfigured{ProviderName: gateway.ProviderGroq})
	}
	if cfg.GeminiAPIKey != "" {
		g, err := gateway.NewGemini(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		providers = append(providers, g)
	} else {
		providers = append(providers, gateway.Unconfigured{ProviderName: gateway.ProviderGemini})
	}

	for _, p := range providers {
		if _, ok := p.(gateway.Unconfigured); ok {
			log.Warn("model provider has no API key", zap.String("provider", p.Name()))
		}
	}
	return providers, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig(cfg.UniverseID)
	pc.RecentLimit = cfg.RecentLimit
	pc.Subtopic = pipeline.RetryPolicy{Attempts: cfg.SubtopicAttempts, Delay: cfg.RetryDelay}
	pc.ProposalA = pipeline.RetryPolicy{Attempts: cfg.ProposalAAttempts, Delay: cfg.RetryDelay}
	pc.ProposalB = pipeline.RetryPolicy{Attempts: cfg.ProposalBAttempts, Delay: cfg.RetryDelay}
	pc.ParallelProposals = cfg.ParallelProposals
	pc.CycleTimeout = cfg.CycleTimeout
	return pc
}

// exportDestinations builds the configured export targets. An S3
// destination that fails to initialise is logged and skipped.
func exportDestinations(ctx context.Context, cfg *config.Config, log *zap.Logger) []althistsync.Destination {
	var dests []althistsync.Destination
	if cfg.ExportS3Bucket != "" {
		s3Dest, err := althistsync.NewS3Destination(ctx, althistsync.S3Options{
			Bucket:   cfg.ExportS3Bucket,
			Key:      cfg.ExportS3Key,
			Region:   cfg.ExportS3Region,
			Endpoint: cfg.ExportS3Endpoint,
		})
		if err != nil {
			log.Error("failed to create S3 export destination", zap.Error(err))
		} else {
			dests = append(dests, s3Dest)
			log.Info("S3 export destination enabled", zap.String("bucket", cfg.ExportS3Bucket), zap.String("key", cfg.ExportS3Key))
		}
	}
	if cfg.ExportFile != "" {
		dests = append(dests, althistsync.NewFileDestination(cfg.ExportFile))
		log.Info("file export destination enabled", zap.String("path", cfg.ExportFile))
	}
	return dests
}

// newLogger builds the process logger for the given format.
func newLogger(format string) (*zap.Logger, error) {
	if format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
