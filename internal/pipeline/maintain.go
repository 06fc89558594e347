package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/metrics"
	"github.com/yourorg/lifedb/internal/notify"
)

// EnsureCategory creates the category if missing.
func (p *Pipeline) EnsureCategory(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("ensure category: %w", domain.ErrInvalidInput)
	}
	if err := p.store.EnsureCategory(ctx, name); err != nil {
		return storeErr("ensure category", err)
	}
	return nil
}

// RenameCategory atomically moves every item from oldName to newName and
// removes oldName. The graph follows after commit, best-effort.
func (p *Pipeline) RenameCategory(ctx context.Context, oldName, newName string) error {
	oldName, newName = strings.TrimSpace(oldName), strings.TrimSpace(newName)
	if oldName == "" || newName == "" {
		return fmt.Errorf("rename category: %w", domain.ErrInvalidInput)
	}
	if err := p.store.RenameCategory(ctx, oldName, newName); err != nil {
		return storeErr("rename category", err)
	}
	if oldName == newName {
		return nil
	}

	gctx, cancel := p.detached(ctx)
	defer cancel()
	if err := p.projector.RenameCategory(gctx, oldName, newName); err != nil {
		p.log.Warn("graph category rename failed; queueing items",
			zap.String("old", oldName), zap.String("new", newName), zap.Error(err))
		metrics.ProjectionFailures.Inc()
		p.enqueueAffected(gctx, err, func(c context.Context) ([]int64, error) {
			return p.store.ItemIDsByCategory(c, newName)
		})
	}
	p.publish(ctx, notify.Event{Type: notify.EventCategoryRenamed, From: oldName, To: newName})
	return nil
}

// MergeTags folds src into dst: every item tagged src ends up tagged dst
// exactly once and src disappears.
func (p *Pipeline) MergeTags(ctx context.Context, src, dst string) error {
	src, dst = strings.TrimSpace(src), strings.TrimSpace(dst)
	if src == "" || dst == "" || src == dst {
		return fmt.Errorf("merge tags: %w", domain.ErrInvalidInput)
	}
	if err := p.store.MergeTags(ctx, src, dst); err != nil {
		return storeErr("merge tags", err)
	}

	gctx, cancel := p.detached(ctx)
	defer cancel()
	if err := p.projector.MergeTags(gctx, src, dst); err != nil {
		p.log.Warn("graph tag merge failed; queueing items",
			zap.String("src", src), zap.String("dst", dst), zap.Error(err))
		metrics.ProjectionFailures.Inc()
		p.enqueueAffected(gctx, err, func(c context.Context) ([]int64, error) {
			return p.store.ItemIDsByTag(c, dst)
		})
	}
	p.publish(ctx, notify.Event{Type: notify.EventTagsMerged, From: src, To: dst})
	return nil
}

// SetItemTags replaces the tags of an item and reprojects it.
func (p *Pipeline) SetItemTags(ctx context.Context, itemID int64, names []string) ([]string, error) {
	if itemID <= 0 {
		return nil, fmt.Errorf("set item tags: %w", domain.ErrInvalidInput)
	}
	tags, err := p.store.SetItemTags(ctx, itemID, names)
	if err != nil {
		return nil, storeErr("set item tags", err)
	}
	p.projectIDs(ctx, []int64{itemID})
	p.publish(ctx, notify.Event{Type: notify.EventItemTagsReplaced, ItemID: itemID})
	return tags, nil
}

// enqueueAffected records the ids returned by list in the outbox so a later
// replay reconciles their edges.
func (p *Pipeline) enqueueAffected(ctx context.Context, cause error, list func(context.Context) ([]int64, error)) {
	ids, err := list(ctx)
	if err != nil {
		p.log.Error("list affected items failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if err := p.outbox.Record(ctx, id, cause); err != nil {
			p.log.Error("outbox record failed", zap.Int64("item_id", id), zap.Error(err))
		}
	}
}
