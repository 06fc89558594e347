package activities

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync/atomic"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"golang.org/x/sync/errgroup"

	iopkg "github.com/yourorg/lifedb/internal/iopkg"
	"github.com/yourorg/lifedb/internal/pipeline"
	"github.com/yourorg/lifedb/internal/transfer"
	"github.com/yourorg/lifedb/internal/types"
)

// Activities exposes pipeline operations to Temporal workflows.
type Activities struct {
	p *pipeline.Pipeline
}

func New(p *pipeline.Pipeline) *Activities { return &Activities{p: p} }

func (a *Activities) ListItemIDs(ctx context.Context, p types.ListItemIDsParams) ([]int64, error) {
	ids, err := a.p.ItemIDsAfter(ctx, p.AfterID, p.Limit)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// ProjectItems re-projects ids using up to p.Parallel workers, each taking a
// contiguous chunk. Per-item failures are queued in the outbox by the pipeline
// and only counted here.
func (a *Activities) ProjectItems(ctx context.Context, p types.ProjectItemsParams) (types.ProjectItemsResult, error) {
	if len(p.IDs) == 0 {
		return types.ProjectItemsResult{}, nil
	}
	workers := p.Parallel
	if workers <= 0 {
		workers = 4
	}
	if workers > len(p.IDs) {
		workers = len(p.IDs)
	}
	size := (len(p.IDs) + workers - 1) / workers

	var projected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(p.IDs); start += size {
		end := min(start+size, len(p.IDs))
		chunk := p.IDs[start:end]
		g.Go(func() error {
			n, err := a.p.Reproject(gctx, chunk)
			if err != nil {
				return err
			}
			done := projected.Add(int64(n))
			activity.RecordHeartbeat(ctx, done)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.ProjectItemsResult{}, err
	}
	n := int(projected.Load())
	if failed := len(p.IDs) - n; failed > 0 {
		activity.GetLogger(ctx).Warn("some items were not projected", "failed", failed, "batch", len(p.IDs))
		return types.ProjectItemsResult{Projected: n, Failed: failed}, nil
	}
	return types.ProjectItemsResult{Projected: n}, nil
}

func (a *Activities) ReplayOutbox(ctx context.Context, p types.ReplayOutboxParams) (int, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 1000
	}
	return a.p.ReplayOutbox(ctx, limit)
}

// ImportFile parses the file at p.FileURI and imports its records. Files that
// cannot be parsed fail without retry.
func (a *Activities) ImportFile(ctx context.Context, p types.ImportItemsParams) (types.ImportItemsResult, error) {
	log := activity.GetLogger(ctx)
	log.Info("import file", "fileURI", p.FileURI)

	rc, size, err := iopkg.Open(ctx, p.FileURI)
	if err != nil {
		return types.ImportItemsResult{}, fmt.Errorf("open %s: %w", p.FileURI, err)
	}
	defer rc.Close()

	records, err := transfer.ParseRecords(rc, path.Base(p.FileURI))
	if err != nil {
		if errors.Is(err, transfer.ErrMalformed) {
			return types.ImportItemsResult{}, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("parse %s", p.FileURI), "InvalidInput", err)
		}
		return types.ImportItemsResult{}, fmt.Errorf("parse %s: %w", p.FileURI, err)
	}
	activity.RecordHeartbeat(ctx, len(records))

	res, err := a.p.Import(ctx, records)
	if err != nil {
		return types.ImportItemsResult{}, err
	}
	log.Info("import file done", "fileURI", p.FileURI, "bytes", size, "records", len(records), "imported", res.Imported)
	return types.ImportItemsResult{Records: len(records), Imported: res.Imported, Skipped: res.Skipped}, nil
}
