package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/api"
	"github.com/yourorg/lifedb/internal/app"
	"github.com/yourorg/lifedb/internal/logging"
	"github.com/yourorg/lifedb/internal/metrics"
)

func main() {
	zl := logging.FromEnv()
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, zl, "api")
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close(context.Background())

	metrics.Init()
	go func() {
		addr := metrics.AddrFromEnv()
		if err := metrics.Serve(addr); err != nil {
			zl.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	go a.DrainOutbox(ctx, drainInterval())

	// Temporal is optional; workflow routes answer 503 without it.
	topts, queue := app.TemporalFromEnv()
	var workflows api.WorkflowClient
	tc, err := client.Dial(topts)
	if err != nil {
		zl.Warn("temporal unavailable, workflow routes disabled", zap.String("host", topts.HostPort), zap.Error(err))
	} else {
		defer tc.Close()
		workflows = tc
	}

	r := api.NewRouter(api.RouterConfig{
		Pipeline:  a.Pipeline,
		Workflows: workflows,
		TaskQueue: queue,
		APIToken:  os.Getenv("API_TOKEN"),
		Log:       zl,
	})

	port := getEnv("PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zl.Info("server starting", zap.String("port", port), zap.String("dialect", a.Store.Dialect()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zl.Error("server failed", zap.Error(err))
	}
}

func drainInterval() time.Duration {
	if d, err := time.ParseDuration(os.Getenv("OUTBOX_DRAIN_INTERVAL")); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
