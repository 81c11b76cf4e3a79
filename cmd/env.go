package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/config"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/pipeline"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/resilience"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
	anthropicpkg "github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/anthropic"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/jina"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/perplexity"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/stageapi"
)

// appEnv holds the store and the pipeline collaborators needed by the
// serve and analyze commands.
type appEnv struct {
	Store     store.Store
	Scheduler *pipeline.Scheduler
	Status    *pipeline.StatusReader
	Research  *pipeline.GuardedResearcher // nil unless research.mode=web
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv opens and migrates the store and builds the scheduler. Callers
// should defer env.Close() after shutting the scheduler down.
func initEnv(ctx context.Context, c *config.Config, metrics pipeline.Metrics) (*appEnv, error) {
	st, err := openStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &appEnv{Store: st}

	var researcher pipeline.Researcher
	researcher, env.Research = buildResearcher(c)
	generator := buildGenerator(c)

	opts := pipeline.OptionsFromConfig(c.Pipeline, c.Retry)
	if metrics != nil {
		opts.Metrics = metrics
	}
	env.Scheduler = pipeline.NewScheduler(st, researcher, generator, opts)

	env.Status = pipeline.NewStatusReader(st, c.Pipeline.GraceWindow())
	return env, nil
}

// initStore opens the configured store for the read-only job commands.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func openStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "dealscore.db"
		}
		return store.NewSQLite(dsn)
	case "badger":
		dir := c.DatabaseURL
		if dir == "" {
			dir = "dealscore.badger"
		}
		return store.NewBadger(dir)
	case "postgres":
		return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{
			MaxConns: c.MaxConns,
			MinConns: c.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
}

// buildResearcher returns the research stage for the configured mode. The
// guarded researcher is returned separately so /health can report it.
func buildResearcher(c *config.Config) (pipeline.Researcher, *pipeline.GuardedResearcher) {
	switch c.Research.Mode {
	case config.ResearchModeOff:
		zap.L().Info("research disabled, analyses run without evidence")
		return pipeline.NoResearch, nil
	case config.ResearchModeHTTP:
		return stageapi.NewResearchClient(c.Research.URL), nil
	}

	if c.Perplexity.Key == "" && c.Jina.Key == "" {
		zap.L().Warn("no research provider keys set (DEALSCORE_PERPLEXITY_KEY, DEALSCORE_JINA_KEY), research disabled")
		return pipeline.NoResearch, nil
	}

	var pplx perplexity.Client
	if c.Perplexity.Key != "" {
		pplx = perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model))
	}
	var jc jina.Client
	if c.Jina.Key != "" {
		jc = jina.NewClient(c.Jina.Key, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}

	var opts []pipeline.WebOption
	if c.Research.RatePerSec > 0 {
		opts = append(opts, pipeline.WithRateLimit(c.Research.RatePerSec))
	}
	guarded := pipeline.NewGuardedResearcher(
		pipeline.NewWebResearcher(pplx, jc, opts...),
		resilience.CircuitFromConfig(c.Research),
	)
	return guarded, guarded
}

func buildGenerator(c *config.Config) pipeline.Generator {
	switch c.Generation.Mode {
	case config.GenerationModeHTTP:
		return pipeline.HTTPGenerator{Client: stageapi.NewGenerationClient(c.Generation.URL)}
	case config.GenerationModeFallback:
		return pipeline.FallbackGenerator{}
	}

	if c.Anthropic.Key == "" {
		zap.L().Warn("DEALSCORE_ANTHROPIC_KEY not set, using the deterministic scorer")
		return pipeline.NewModelGenerator(nil, c.Anthropic.Model, c.Anthropic.MaxTokens)
	}
	return pipeline.NewModelGenerator(
		anthropicpkg.NewClient(c.Anthropic.Key),
		c.Anthropic.Model,
		c.Anthropic.MaxTokens,
	)
}

func shutdownTimeout(c *config.Config) time.Duration {
	if c.Server.ShutdownTimeoutSecs <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSecs) * time.Second
}
