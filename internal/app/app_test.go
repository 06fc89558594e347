package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNewFromEnvWithSQLite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "app.sqlite"))
	t.Setenv("OUTBOX_DIR", filepath.Join(dir, "outbox"))
	t.Setenv("NEO4J_URI", "")
	t.Setenv("REDIS_ADDR", "")

	ctx := context.Background()
	a, err := New(ctx, nil, "api")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close(ctx)

	if a.Events != nil {
		t.Fatalf("events enabled without REDIS_ADDR")
	}
	if err := a.Pipeline.EnsureCategory(ctx, "Reading"); err != nil {
		t.Fatalf("ensure category: %v", err)
	}
	st, err := a.Pipeline.Stats(ctx)
	if err != nil || st.Categories != 1 {
		t.Fatalf("stats = %+v, %v", st, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "outbox", "api")); err != nil {
		t.Fatalf("outbox dir: %v", err)
	}
}

func TestTemporalFromEnv(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_TARGET_HOST", "temporal:7233")
	t.Setenv("TEMPORAL_NAMESPACE", "")
	t.Setenv("TEMPORAL_TASK_QUEUE", "")
	opts, q := TemporalFromEnv()
	if opts.HostPort != "temporal:7233" || opts.Namespace != "default" || q != "lifedb" {
		t.Fatalf("got %+v %q", opts, q)
	}
}
