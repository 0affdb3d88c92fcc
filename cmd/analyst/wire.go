package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/easeaico/marketing-analyst/internal/agentcache"
	"github.com/easeaico/marketing-analyst/internal/config"
	"github.com/easeaico/marketing-analyst/internal/database"
	"github.com/easeaico/marketing-analyst/internal/engine"
	"github.com/easeaico/marketing-analyst/internal/llm"
	"github.com/easeaico/marketing-analyst/internal/memory"
	"github.com/easeaico/marketing-analyst/internal/service"
	"github.com/easeaico/marketing-analyst/internal/tabular"
)

// app holds the wired components of one process.
type app struct {
	cache   *agentcache.Cache
	analyst *service.Analyst
	durable agentcache.Durable
	closers []func()
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// storage is what a relational backend contributes.
type storage struct {
	source  tabular.Source
	durable agentcache.Durable
	index   memory.Index
}

func openStorage(ctx context.Context, cfg config.Config, a *app) (storage, error) {
	switch cfg.DBType {
	case config.DBSQLite:
		db, err := database.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return storage{}, err
		}
		a.closers = append(a.closers, func() { db.Close() })

		src := tabular.NewSQLiteSource(db)
		if err := src.InitSchema(ctx); err != nil {
			return storage{}, err
		}
		idx := memory.NewSQLiteIndex(db)
		if err := idx.InitSchema(ctx); err != nil {
			return storage{}, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		return storage{source: src, durable: agentcache.NewSQLiteDurable(db), index: idx}, nil
	default:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return storage{}, err
		}
		a.closers = append(a.closers, pool.Close)
		return storage{
			source:  tabular.NewPostgresSource(pool),
			durable: agentcache.NewPostgresDurable(pool),
			index:   memory.NewPostgresIndex(pool),
		}, nil
	}
}

func newEmbedder(ctx context.Context, cfg config.Config, a *app) (memory.Embedder, error) {
	client, err := llm.NewGeminiClient(ctx, cfg.GoogleAPIKey)
	if err != nil {
		return nil, err
	}
	var embedder llm.Embedder = llm.NewGenAIEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	if cfg.EmbeddingCacheSize > 0 {
		cached, err := llm.NewCachedEmbedder(embedder, cfg.EmbeddingCacheSize)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cached.Close)
		embedder = cached
	}
	return embedder, nil
}

func newBuilder(ctx context.Context, cfg config.Config, store *memory.Store) (engine.Builder, error) {
	limits := engine.Limits{MaxIterations: cfg.MaxIterations, MaxExecutionTime: cfg.MaxExecutionTime}
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return engine.NewAnthropicBuilder(cfg.AnthropicAPIKey, cfg.LLMModel, cfg.LLMTemperature, limits)
	default:
		m, err := engine.NewGeminiModel(ctx, cfg.GoogleAPIKey, cfg.LLMModel)
		if err != nil {
			return nil, err
		}
		return engine.NewADKBuilder(m, cfg.LLMTemperature, limits, memory.NewService(store)), nil
	}
}

// wire connects every component described by cfg and migrates the durable
// cache tier.
func wire(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	st, err := openStorage(ctx, cfg, a)
	if err != nil {
		return fail(err)
	}
	if cfg.VectorBackend == config.VectorChromem {
		idx, err := memory.NewChromemIndex(cfg.ChromemPath)
		if err != nil {
			return fail(err)
		}
		st.index = idx
	}
	a.closers = append(a.closers, func() { st.index.Close() })

	embedder, err := newEmbedder(ctx, cfg, a)
	if err != nil {
		return fail(err)
	}
	store := memory.NewStore(st.index, embedder, memory.Options{
		K:       cfg.RetrievalK,
		FetchK:  cfg.RetrievalFetchK,
		Lambda:  cfg.RetrievalLambda,
		Timeout: cfg.RetrievalTimeout,
	}, logger)

	builder, err := newBuilder(ctx, cfg, store)
	if err != nil {
		return fail(fmt.Errorf("failed to create reasoning engine: %w", err))
	}

	if err := st.durable.Migrate(ctx); err != nil {
		return fail(fmt.Errorf("failed to migrate agent cache: %w", err))
	}

	a.durable = st.durable
	a.cache = agentcache.New(agentcache.Config{
		Source:  st.source,
		Memory:  store,
		Builder: builder,
		Durable: st.durable,
		Logger:  logger,
	})
	a.analyst = service.NewAnalyst(a.cache, store, logger)

	logger.Info().
		Str("db", cfg.DBType).
		Str("vectors", cfg.VectorBackend).
		Str("provider", cfg.LLMProvider).
		Str("model", cfg.LLMModel).
		Msg("analyst ready")
	return a, nil
}
