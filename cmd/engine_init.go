package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/coaching-engine/internal/analyzer"
	"github.com/sells-group/coaching-engine/internal/goals"
	"github.com/sells-group/coaching-engine/internal/matcher"
	"github.com/sells-group/coaching-engine/internal/recommend"
	"github.com/sells-group/coaching-engine/internal/store"
	"github.com/sells-group/coaching-engine/internal/tracker"
)

// engineEnv holds the store and every engine component the commands use.
type engineEnv struct {
	Store    store.Store
	Analyzer *analyzer.Analyzer
	Matcher  *matcher.Matcher
	Goals    *goals.Engine
	Tracker  *tracker.Tracker
	Partners *recommend.PartnerRecommender
	Timeline *recommend.TimelinePredictor
	Content  *recommend.ContentRecommender
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// initEngine opens the store, runs migrations, and wires every component.
// Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	m := matcher.New(st, cfg.Engine.MatchRelevanceFloor)
	return &engineEnv{
		Store:    st,
		Analyzer: analyzer.New(st, cfg.Engine.TransitionList(), cfg.Engine.MinCohortSize),
		Matcher:  m,
		Goals:    goals.New(st, m, cfg.Engine.PriorityBoostConfidence),
		Tracker: tracker.New(st, cfg.Engine.UnderperformThreshold,
			cfg.Engine.UnderperformMinAttempts, cfg.Engine.LibraryConcurrency),
		Partners: recommend.NewPartnerRecommender(st),
		Timeline: recommend.NewTimelinePredictor(st),
		Content:  recommend.NewContentRecommender(st),
	}, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
