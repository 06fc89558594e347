package main

import (
	"context"
	"log"

	tactivity "go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/activities"
	"github.com/yourorg/lifedb/internal/app"
	"github.com/yourorg/lifedb/internal/logging"
	"github.com/yourorg/lifedb/internal/metrics"
	"github.com/yourorg/lifedb/internal/workflow"
)

func main() {
	zl := logging.FromEnv()
	defer zl.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, zl, "worker")
	if err != nil {
		log.Fatal("init:", err)
	}
	defer a.Close(ctx)

	metrics.Init()
	go func() {
		addr := metrics.AddrFromEnv()
		_ = metrics.Serve(addr)
	}()

	topts, q := app.TemporalFromEnv()
	c, err := client.Dial(topts)
	if err != nil {
		log.Fatal("temporal client:", err)
	}
	defer c.Close()

	w := worker.New(c, q, worker.Options{})
	acts := activities.New(a.Pipeline)
	// Register activities with explicit names matching workflow.ExecuteActivity calls
	w.RegisterActivityWithOptions(acts.ListItemIDs, tactivity.RegisterOptions{Name: "Activities.ListItemIDs"})
	w.RegisterActivityWithOptions(acts.ProjectItems, tactivity.RegisterOptions{Name: "Activities.ProjectItems"})
	w.RegisterActivityWithOptions(acts.ReplayOutbox, tactivity.RegisterOptions{Name: "Activities.ReplayOutbox"})
	w.RegisterActivityWithOptions(acts.ImportFile, tactivity.RegisterOptions{Name: "Activities.ImportFile"})
	w.RegisterWorkflow(workflow.GraphRebuildWorkflow)
	w.RegisterWorkflow(workflow.ImportItemsWorkflow)

	zl.Info("worker started", zap.String("namespace", topts.Namespace), zap.String("taskQueue", q), zap.String("metrics", metrics.AddrFromEnv()))
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker failed:", err)
	}
}
