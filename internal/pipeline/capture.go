package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/db"
	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/metrics"
	"github.com/yourorg/lifedb/internal/normalize"
	"github.com/yourorg/lifedb/internal/notify"
)

// Capture extracts metadata for rawURL and upserts the item keyed by its
// normalized URL, filed under category (empty means none). Nothing is
// persisted when extraction fails. Graph projection happens after commit
// and never fails the capture.
func (p *Pipeline) Capture(ctx context.Context, rawURL, category string) (int64, error) {
	raw := strings.TrimSpace(rawURL)
	category = strings.TrimSpace(category)
	if err := normalize.Validate(raw); err != nil {
		metrics.Captures.WithLabelValues("invalid").Inc()
		return 0, fmt.Errorf("capture %q: %w: %w", raw, domain.ErrInvalidInput, err)
	}
	norm := normalize.URL(raw)
	host := normalize.Domain(norm)

	md, err := p.extractMeta(ctx, raw)
	if err != nil {
		metrics.Captures.WithLabelValues("extract_failed").Inc()
		return 0, fmt.Errorf("capture %s: %w: %w", raw, domain.ErrExtractionFailed, err)
	}
	blob, err := json.Marshal(md)
	if err != nil {
		metrics.Captures.WithLabelValues("extract_failed").Inc()
		return 0, fmt.Errorf("capture %s: %w: %w", raw, domain.ErrExtractionFailed, err)
	}

	id, err := p.store.UpsertCapture(ctx, db.CaptureInput{
		URL:         raw,
		URLNorm:     norm,
		Domain:      host,
		Category:    category,
		Title:       md.Title,
		Description: md.Description,
		Meta:        blob,
	})
	if err != nil {
		metrics.Captures.WithLabelValues("store_failed").Inc()
		return 0, storeErr("capture", err)
	}
	metrics.Captures.WithLabelValues("ok").Inc()
	p.log.Info("captured", zap.Int64("item_id", id), zap.String("url_norm", norm))

	p.projectIDs(ctx, []int64{id})
	p.publish(ctx, notify.Event{Type: notify.EventItemCaptured, ItemID: id, URL: raw, Category: category})
	return id, nil
}

func (p *Pipeline) extractMeta(ctx context.Context, url string) (domain.Metadata, error) {
	ectx, cancel := context.WithTimeout(ctx, p.cfg.ExtractTimeout)
	defer cancel()
	start := time.Now()
	md, err := p.extractor.Extract(ectx, url)
	metrics.ExtractDuration.Observe(time.Since(start).Seconds())
	return md, err
}
