// Package app wires the pipeline's collaborators from the environment for
// the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/db"
	"github.com/yourorg/lifedb/internal/extract"
	"github.com/yourorg/lifedb/internal/graph"
	"github.com/yourorg/lifedb/internal/notify"
	"github.com/yourorg/lifedb/internal/outbox"
	"github.com/yourorg/lifedb/internal/pipeline"
)

type App struct {
	Log      *zap.Logger
	Store    *db.Store
	Pipeline *pipeline.Pipeline
	// Events is nil when REDIS_ADDR is unset.
	Events *notify.Redis

	graph  *graph.Client
	outbox outbox.Outbox
}

// New opens every store named by the environment. Neo4j and Redis are
// optional; the relational store and the outbox are not. Each process gets
// its own outbox directory under OUTBOX_DIR, named by process, because badger
// holds an exclusive lock on it.
func New(ctx context.Context, log *zap.Logger, process string) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Log: log}

	store, err := db.Open(ctx, db.FromEnv(), log)
	if err != nil {
		return nil, err
	}
	a.Store = store

	dir := outbox.DirFromEnv()
	if dir != "" && process != "" {
		dir = filepath.Join(dir, process)
	}
	box, err := outbox.OpenBadger(dir)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("open outbox %q: %w", dir, err)
	}
	a.outbox = box

	deps := pipeline.Deps{
		Store:     store,
		Extractor: extract.NewHTMLExtractor(extract.FromEnv()),
		Outbox:    box,
		Log:       log,
	}

	gc, err := graph.NewFromEnv(log)
	if err != nil {
		// the graph is a derived view; run without it and let the outbox catch up
		log.Warn("neo4j unavailable, graph projection disabled", zap.Error(err))
	}
	if gc != nil {
		gc.EnsureSchema(ctx)
		a.graph = gc
		n := graph.NewNeo4j(gc)
		deps.Projector, deps.Graph = n, n
	}

	ev, err := notify.NewRedisFromEnv(log)
	if err != nil {
		log.Warn("redis unavailable, events disabled", zap.Error(err))
	}
	if ev != nil {
		a.Events = ev
		deps.Notifier = ev
	}

	a.Pipeline = pipeline.New(deps, pipeline.ConfigFromEnv())
	return a, nil
}

// Close releases everything New opened. Safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.Events != nil {
		_ = a.Events.Close()
	}
	if a.graph != nil {
		_ = a.graph.Close(ctx)
	}
	if a.outbox != nil {
		if err := a.outbox.Close(); err != nil {
			a.Log.Warn("close outbox", zap.Error(err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("close store", zap.Error(err))
		}
	}
}

// DrainOutbox replays queued projections every interval until ctx is done.
func (a *App) DrainOutbox(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Pipeline.ReplayOutbox(ctx, 500)
			if err != nil {
				a.Log.Warn("outbox drain failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.Log.Info("outbox drained", zap.Int("projected", n))
			}
		}
	}
}

// TemporalFromEnv returns client options and the task queue.
func TemporalFromEnv() (client.Options, string) {
	// TEMPORAL_TARGET_HOST is accepted for older deployments
	addr := getenv("TEMPORAL_ADDRESS", getenv("TEMPORAL_TARGET_HOST", "localhost:7233"))
	opts := client.Options{
		HostPort:  addr,
		Namespace: getenv("TEMPORAL_NAMESPACE", "default"),
	}
	return opts, getenv("TEMPORAL_TASK_QUEUE", "lifedb")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
