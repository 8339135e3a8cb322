package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/harmonize-cli/internal/pipeline"
	"github.com/sells-group/harmonize-cli/internal/quality"
	"github.com/sells-group/harmonize-cli/internal/semantic"
	"github.com/sells-group/harmonize-cli/internal/store"
	"github.com/sells-group/harmonize-cli/internal/vocab"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "harmonize.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initVocab(ctx context.Context) (*vocab.Store, error) {
	vs, err := vocab.Open(cfg.Vocab.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := vs.Migrate(ctx); err != nil {
		vs.Close()
		return nil, err
	}
	if cfg.Vocab.SeedPath != "" {
		if err := vs.Seed(ctx, cfg.Vocab.SeedPath); err != nil {
			vs.Close()
			return nil, err
		}
	}
	return vs, nil
}

func loadRuleset() (*semantic.Ruleset, error) {
	if cfg.Semantic.RulesPath != "" {
		return semantic.LoadRuleset(cfg.Semantic.RulesPath)
	}
	rs := semantic.DefaultRuleset()
	rs.AmbiguityGap = cfg.Semantic.AmbiguityGap
	rs.MinConfidence = cfg.Semantic.MinConfidence
	if len(cfg.Semantic.GenericTokens) > 0 {
		rs.GenericTokens = cfg.Semantic.GenericTokens
	}
	return rs, nil
}

func loadQualityRules() ([]quality.Rule, error) {
	if cfg.Quality.RulesPath != "" {
		return quality.LoadRules(cfg.Quality.RulesPath)
	}
	return quality.DefaultRules(cfg.Quality.DefaultCurrency), nil
}

// env bundles everything a pipeline-running command needs.
type env struct {
	Store    store.Store
	Vocab    *vocab.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	if e.Vocab != nil {
		e.Vocab.Close()
	}
	if e.Store != nil {
		e.Store.Close()
	}
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	vs, err := initVocab(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}

	ruleset, err := loadRuleset()
	if err != nil {
		vs.Close()
		st.Close()
		return nil, err
	}
	rules, err := loadQualityRules()
	if err != nil {
		vs.Close()
		st.Close()
		return nil, err
	}

	return &env{
		Store:    st,
		Vocab:    vs,
		Pipeline: pipeline.New(cfg, st, vs, ruleset, rules),
	}, nil
}
