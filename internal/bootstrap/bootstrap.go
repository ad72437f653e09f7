// Package bootstrap wires configuration, storage, transport and the
// pipeline into a runnable worker application.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/sekretar-core/internal/config"
	"github.com/kirillkom/sekretar-core/internal/core/domain"
	"github.com/kirillkom/sekretar-core/internal/core/pending"
	"github.com/kirillkom/sekretar-core/internal/core/ports"
	"github.com/kirillkom/sekretar-core/internal/core/registry"
	"github.com/kirillkom/sekretar-core/internal/core/usecase"
	"github.com/kirillkom/sekretar-core/internal/gateway"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/ai/gemini"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/ai/openai"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/enrich/filetext"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/enrich/linkmeta"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/resilience"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/seed"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/sekretar-core/internal/infrastructure/transport/natsbus"
	"github.com/kirillkom/sekretar-core/internal/observability/metrics"
	"github.com/kirillkom/sekretar-core/internal/taskengine"
)

const serviceName = "sekretar-core"

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Registry

	Bus      *natsbus.Bus
	Engine   *taskengine.Engine
	Pipeline *usecase.Pipeline
	Pendings *pending.Store
	Topics   *registry.TopicRegistry

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	topicRepo := postgres.NewTopicRepository(db)
	seeded, err := seed.EnsureTopics(ctx, topicRepo, cfg.TopicSeedPath)
	if err != nil {
		return nil, fmt.Errorf("ensure topics: %w", err)
	}
	if seeded {
		logger.Info("topics_seeded", "path", cfg.TopicSeedPath)
	}

	media, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init media storage: %w", err)
	}

	bus, err := natsbus.New(cfg.NATSURL, natsbus.Subjects{
		Content:  cfg.NATSContentSubject,
		Decision: cfg.NATSDecisionSubject,
		Notify:   cfg.NATSNotifySubject,
	}, natsbus.Options{
		Retrier: resilience.NewRetrier(resilience.DefaultRetryConfig()),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message bus: %w", err)
	}

	obs := metrics.New(serviceName)

	backends, err := orderedBackends(cfg)
	if err != nil {
		bus.Close()
		_ = db.Close()
		return nil, err
	}
	gw := gateway.New(gateway.Config{
		Service:     serviceName,
		CallTimeout: cfg.ProviderCallTimeout,
		RateLimit:   cfg.ProviderRateLimit,
		RateBurst:   cfg.ProviderRateBurst,
	}, backends, resilience.NewBreakers(resilience.DefaultBreakerConfig()), logger, obs.Gateway)

	engine := taskengine.New(taskengine.Config{
		Service:     serviceName,
		Workers:     cfg.WorkerPoolSize,
		MaxAttempts: cfg.JobMaxAttempts,
		BackoffBase: cfg.JobBackoffBase,
		BackoffCap:  cfg.JobBackoffCap,
	}, postgres.NewJobRepository(db), logger, obs.Engine)

	enricher := usecase.NewEnricher(gw, media, linkmeta.New(cfg.LinkFetchTimeout), filetext.NewExtractor(media))
	engine.RegisterHandler(domain.JobKindTranscribe, enricher.TranscribeJob)
	engine.RegisterHandler(domain.JobKindFetchLinkMeta, enricher.FetchLinkJob)
	engine.RegisterHandler(domain.JobKindExtractFileText, enricher.ExtractFileJob)

	topics := registry.New(topicRepo)
	pendings := pending.New(pending.Options{})

	pipeline := usecase.NewPipeline(usecase.Config{
		Service:               serviceName,
		AutoCommitThreshold:   cfg.AutoCommitThreshold,
		TopKCandidates:        cfg.TopKCandidates,
		ConfirmationTTL:       cfg.ConfirmationTTL,
		EnrichmentTimeout:     cfg.EnrichmentTimeout,
		ExpireAutoCommitTopic: cfg.ExpireAutoCommitTopic,
	}, gw, engine, topics, pendings, postgres.NewNoteRepository(db), bus, logger, obs.Pipeline)

	engine.OnResult(pipeline.HandleJobResult)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  obs,
		Bus:      bus,
		Engine:   engine,
		Pipeline: pipeline,
		Pendings: pendings,
		Topics:   topics,
		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// orderedBackends builds the fallback chain from configuration. Backends
// without credentials are skipped; an empty chain is a startup error.
func orderedBackends(cfg config.Config) ([]ports.AIBackend, error) {
	out := make([]ports.AIBackend, 0, len(cfg.BackendOrder))
	for _, name := range cfg.BackendOrder {
		switch name {
		case "gemini":
			if cfg.GeminiAPIKey == "" {
				continue
			}
			out = append(out, gemini.New(gemini.Config{
				APIKey:  cfg.GeminiAPIKey,
				BaseURL: cfg.GeminiURL,
				Model:   cfg.GeminiModel,
			}))
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				continue
			}
			out = append(out, openai.New(openai.Config{
				APIKey:          cfg.OpenAIAPIKey,
				ChatModel:       cfg.OpenAIChatModel,
				TranscribeModel: cfg.OpenAISTTModel,
			}))
		default:
			return nil, fmt.Errorf("unknown ai backend %q in AI_BACKEND_ORDER", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no ai backend configured: set GEMINI_API_KEY or OPENAI_API_KEY")
	}
	return out, nil
}
