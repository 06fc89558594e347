package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/graph"
	"github.com/yourorg/lifedb/internal/metrics"
	"github.com/yourorg/lifedb/internal/outbox"
)

// projectIDs projects items from relational truth. Failures are logged,
// counted and recorded in the outbox; they never reach the caller.
func (p *Pipeline) projectIDs(ctx context.Context, ids []int64) (projected, failed []int64) {
	if len(ids) == 0 {
		return nil, nil
	}
	pctx, cancel := p.detached(ctx)
	defer cancel()

	projections, err := p.loadProjections(pctx, ids)
	if err != nil {
		p.log.Error("load items for projection failed", zap.Int("items", len(ids)), zap.Error(err))
		for _, id := range ids {
			p.recordFailure(pctx, id, err)
		}
		return nil, ids
	}
	for _, pr := range projections {
		if err := p.projector.Project(pctx, pr); err != nil {
			p.log.Warn("graph projection failed", zap.Int64("item_id", pr.ID), zap.Error(err))
			p.recordFailure(pctx, pr.ID, err)
			failed = append(failed, pr.ID)
			continue
		}
		projected = append(projected, pr.ID)
	}
	return projected, failed
}

func (p *Pipeline) recordFailure(ctx context.Context, id int64, cause error) {
	metrics.ProjectionFailures.Inc()
	if err := p.outbox.Record(ctx, id, cause); err != nil {
		p.log.Error("outbox record failed", zap.Int64("item_id", id), zap.Error(err))
	}
}

func (p *Pipeline) loadProjections(ctx context.Context, ids []int64) ([]graph.ItemProjection, error) {
	items, err := p.store.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	tags, err := p.store.TagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]graph.ItemProjection, 0, len(items))
	for _, it := range items {
		t := tags[it.ID]
		if t == nil {
			t = []string{}
		}
		out = append(out, graph.ItemProjection{
			ID:       it.ID,
			URL:      it.URL,
			Title:    it.Title,
			Domain:   it.Domain,
			Category: it.Category,
			Tags:     t,
		})
	}
	return out, nil
}

// Reproject projects the given items again. It returns how many succeeded;
// failures are queued in the outbox.
func (p *Pipeline) Reproject(ctx context.Context, ids []int64) (int, error) {
	projected, _ := p.projectIDs(ctx, ids)
	return len(projected), nil
}

// ReplayOutbox re-projects up to limit queued items and acknowledges the
// ones that succeed.
func (p *Pipeline) ReplayOutbox(ctx context.Context, limit int) (int, error) {
	pending, err := p.outbox.Pending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.ItemID)
	}
	projected, _ := p.projectIDs(ctx, ids)

	// Items deleted from the store since they were queued have nothing to
	// project; drop them along with the successes.
	done := make(map[int64]bool, len(projected))
	for _, id := range projected {
		done[id] = true
	}
	existing, err := p.store.GetItems(ctx, ids)
	if err == nil {
		known := make(map[int64]bool, len(existing))
		for _, it := range existing {
			known[it.ID] = true
		}
		for _, id := range ids {
			if !known[id] {
				done[id] = true
			}
		}
	}
	ack := make([]outbox.Entry, 0, len(done))
	for _, e := range pending {
		if done[e.ItemID] {
			ack = append(ack, e)
		}
	}
	if err := p.outbox.Ack(ctx, ack...); err != nil {
		return len(projected), fmt.Errorf("outbox ack: %w", err)
	}
	metrics.OutboxReplayed.Add(float64(len(projected)))
	return len(projected), nil
}

// ItemIDsAfter pages item ids for a full graph rebuild.
func (p *Pipeline) ItemIDsAfter(ctx context.Context, after int64, limit int) ([]int64, error) {
	ids, err := p.store.ItemIDsAfter(ctx, after, limit)
	if err != nil {
		return nil, storeErr("list item ids", err)
	}
	return ids, nil
}

// ProjectedGraph reads the item/domain/category graph.
func (p *Pipeline) ProjectedGraph(ctx context.Context, f domain.GraphFilter) (domain.Graph, error) {
	g, err := p.reader.Graph(ctx, f)
	if err != nil {
		return domain.Graph{}, fmt.Errorf("projected graph: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return g, nil
}
