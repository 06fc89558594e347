package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/db"
	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/metrics"
	"github.com/yourorg/lifedb/internal/normalize"
	"github.com/yourorg/lifedb/internal/transfer"
)

// ImportResult summarizes one bulk import.
type ImportResult struct {
	Imported int     `json:"imported"`
	Skipped  int     `json:"skipped"`
	IDs      []int64 `json:"ids,omitempty"`
}

// Import inserts records whose URL is not yet known, without fetching
// metadata. Existing items are skipped. URLs are normalized leniently.
func (p *Pipeline) Import(ctx context.Context, records []transfer.Record) (ImportResult, error) {
	rows := make([]db.ImportRow, 0, len(records))
	for _, r := range records {
		raw := strings.TrimSpace(r.URL)
		if raw == "" {
			continue
		}
		norm := normalize.URL(raw)
		rows = append(rows, db.ImportRow{
			URL:      raw,
			URLNorm:  norm,
			Domain:   normalize.Domain(norm),
			Category: strings.TrimSpace(r.Category),
		})
	}
	ids, err := p.store.ImportItems(ctx, rows)
	if err != nil {
		return ImportResult{}, storeErr("import", err)
	}
	metrics.ItemsImported.Add(float64(len(ids)))
	p.log.Info("import finished", zap.Int("records", len(records)), zap.Int("imported", len(ids)))

	p.projectIDs(ctx, ids)
	return ImportResult{Imported: len(ids), Skipped: len(records) - len(ids), IDs: ids}, nil
}

// Export writes up to limit items (newest id first) to w.
func (p *Pipeline) Export(ctx context.Context, w io.Writer, format string, limit int) error {
	format, err := transfer.NormalizeFormat(format)
	if err != nil {
		return fmt.Errorf("export: %w: %w", domain.ErrInvalidInput, err)
	}
	items, err := p.store.ExportItems(ctx, limit)
	if err != nil {
		return storeErr("export", err)
	}
	return transfer.WriteItems(w, format, items)
}
