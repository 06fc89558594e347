package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yourorg/lifedb/internal/types"
)

const (
	defaultPageSize    = 500
	defaultParallel    = 4
	defaultPagesPerRun = 50
)

// GraphRebuildWorkflow pages through every item id and re-projects each page
// into the graph. After PagesPerRun pages it continues as new to bound history.
// When the last page is done it drains the projection outbox.
func GraphRebuildWorkflow(ctx workflow.Context, p types.GraphRebuildParams) (types.GraphRebuildResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    1 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	// projection of a page can run long between heartbeats on a slow graph
	projectAO := ao
	projectAO.StartToCloseTimeout = 1 * time.Hour
	projectAO.HeartbeatTimeout = 5 * time.Minute
	projectCtx := workflow.WithActivityOptions(ctx, projectAO)

	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.Parallel <= 0 {
		p.Parallel = defaultParallel
	}
	if p.PagesPerRun <= 0 {
		p.PagesPerRun = defaultPagesPerRun
	}
	logger := workflow.GetLogger(ctx)

	res := types.GraphRebuildResult{Pages: p.Pages, Projected: p.Projected, Failed: p.Failed, LastID: p.AfterID}
	for run := 0; run < p.PagesPerRun; run++ {
		var ids []int64
		lp := types.ListItemIDsParams{AfterID: res.LastID, Limit: p.PageSize}
		if err := workflow.ExecuteActivity(ctx, "Activities.ListItemIDs", lp).Get(ctx, &ids); err != nil {
			return res, err
		}
		if len(ids) == 0 {
			var replayed int
			if err := workflow.ExecuteActivity(ctx, "Activities.ReplayOutbox", types.ReplayOutboxParams{}).Get(ctx, &replayed); err != nil {
				return res, err
			}
			res.Replayed = replayed
			logger.Info("graph rebuild finished", "pages", res.Pages, "projected", res.Projected, "failed", res.Failed)
			return res, nil
		}

		var pr types.ProjectItemsResult
		pp := types.ProjectItemsParams{IDs: ids, Parallel: p.Parallel}
		if err := workflow.ExecuteActivity(projectCtx, "Activities.ProjectItems", pp).Get(ctx, &pr); err != nil {
			return res, err
		}
		res.Pages++
		res.Projected += pr.Projected
		res.Failed += pr.Failed
		res.LastID = ids[len(ids)-1]
	}

	next := p
	next.AfterID = res.LastID
	next.Pages = res.Pages
	next.Projected = res.Projected
	next.Failed = res.Failed
	return res, workflow.NewContinueAsNewError(ctx, GraphRebuildWorkflow, next)
}
