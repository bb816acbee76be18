package app

import (
	"context"
	"fmt"
	"log/slog"

	"autoblogger/internal/config"
	"autoblogger/internal/domain"
	"autoblogger/internal/extract"
	"autoblogger/internal/infrastructure/images"
	"autoblogger/internal/infrastructure/llm"
	"autoblogger/internal/infrastructure/storage"
	"autoblogger/internal/infrastructure/wordpress"
	"autoblogger/internal/logging"
	"autoblogger/internal/retry"
	"autoblogger/internal/rules"
	"autoblogger/internal/seo"
	"autoblogger/internal/server"
	"autoblogger/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	store  *storage.SQLiteStore
	engine *usecase.Engine
	srv    *server.Server
	logger *slog.Logger
}

// New builds a runnable application instance. A broken rule table or
// an unreachable job database is a startup failure, not a degraded
// mode.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	rs, err := rules.Load(cfg.Rules.Dir)
	if err != nil {
		return nil, fmt.Errorf("load rule tables: %w", err)
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	pool := extract.NewSessionPool(cfg.Extract.Sessions, cfg.Extract.Timeout())
	registry := extract.NewRegistry()
	registry.Register(extract.NewURLStrategy(pool, cfg.Extract.MinContent, baseLogger.With("component", "extract.url")))
	registry.Register(extract.NewRawTextStrategy(cfg.Extract.MinContent))

	rewriter := llm.NewRewriter(llm.Config{
		Endpoint:  cfg.LLM.Endpoint,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MinLength: cfg.LLM.MinLength,
		Timeout:   cfg.LLM.Timeout(),
	}, rs)

	enricher := seo.Bind(seo.New(seo.Options{
		TopTags:              cfg.SEO.TopTags,
		TitleWeight:          cfg.SEO.TitleWeight,
		LeadWeight:           cfg.SEO.LeadWeight,
		MaxLinks:             cfg.SEO.MaxLinks,
		MetaDescriptionLimit: cfg.SEO.MetaDescriptionLimit,
	}), rs)

	imageClient := images.NewClient(images.Config{
		Endpoint: cfg.Images.Endpoint,
		APIKey:   cfg.Images.APIKey,
		PerPage:  cfg.Images.PerPage,
		Timeout:  cfg.Images.Timeout(),
	})

	publisher := wordpress.NewPublisher(wordpress.Config{
		BaseURL:  cfg.CMS.BaseURL,
		Username: cfg.CMS.Username,
		Password: cfg.CMS.Password,
		Timeout:  cfg.CMS.Timeout(),
	}, store)

	engine := usecase.NewEngine(usecase.Deps{
		Extractor: registry,
		Rewriter:  rewriter,
		Enricher:  enricher,
		Images:    imageClient,
		Publisher: publisher,
		Store:     store,
		Logger:    baseLogger.With("component", "engine"),
		Workers:   cfg.Pipeline.Workers,
		QueueSize: cfg.Pipeline.QueueSize,
		Budgets:   stageBudgets(cfg.Pipeline),
	})

	srv := server.New(engine, cfg.Server.Addr, baseLogger.With("component", "http"))

	return &Application{
		cfg:    cfg,
		store:  store,
		engine: engine,
		srv:    srv,
		logger: baseLogger,
	}, nil
}

// Run starts the engine and serves HTTP until the context ends.
func (a *Application) Run(ctx context.Context) error {
	defer a.store.Close()

	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline engine: %w", err)
	}

	err := a.srv.Run(ctx)
	a.engine.Wait()
	return err
}

// stageBudgets applies one retry policy across all stages. Stages
// where retrying cannot help still stop early through error
// classification.
func stageBudgets(cfg config.PipelineConfig) map[domain.Stage]retry.Config {
	budget := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		budget.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay() > 0 {
		budget.BaseDelay = cfg.BaseDelay()
	}
	if cfg.MaxDelay() > 0 {
		budget.MaxDelay = cfg.MaxDelay()
	}

	budgets := make(map[domain.Stage]retry.Config, len(domain.PipelineStages))
	for _, stage := range domain.PipelineStages {
		budgets[stage] = budget
	}
	return budgets
}
