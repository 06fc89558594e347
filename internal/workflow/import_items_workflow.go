package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yourorg/lifedb/internal/types"
)

// ImportItemsWorkflow imports the URLs listed in an uploaded file, then
// retries any projections that failed along the way.
func ImportItemsWorkflow(ctx workflow.Context, params types.ImportItemsParams) (types.ImportItemsResult, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{"InvalidInput"},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var res types.ImportItemsResult
	if err := workflow.ExecuteActivity(ctx, "Activities.ImportFile", params).Get(ctx, &res); err != nil {
		return types.ImportItemsResult{}, err
	}

	var replayed int
	if err := workflow.ExecuteActivity(ctx, "Activities.ReplayOutbox", types.ReplayOutboxParams{}).Get(ctx, &replayed); err != nil {
		// the import itself is committed; a later drain picks the queue up
		workflow.GetLogger(ctx).Warn("outbox replay after import failed", "error", err)
		return res, nil
	}
	res.Replayed = replayed
	return res, nil
}
