package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/models"
)

// ItemMetaView is an item's flattened summary plus its raw metadata blob.
type ItemMetaView struct {
	Summary domain.ItemSummary `json:"summary"`
	Raw     json.RawMessage    `json:"raw"`
}

// ListItems returns items newest first.
func (p *Pipeline) ListItems(ctx context.Context, f domain.ItemFilter) ([]models.Item, error) {
	items, err := p.store.ListItems(ctx, f)
	if err != nil {
		return nil, storeErr("list items", err)
	}
	if items == nil {
		items = []models.Item{}
	}
	return items, nil
}

// ItemMeta returns the item with the interesting parts of its metadata blob.
func (p *Pipeline) ItemMeta(ctx context.Context, id int64) (ItemMetaView, error) {
	it, blob, err := p.store.ItemWithMeta(ctx, id)
	if err != nil {
		return ItemMetaView{}, storeErr(fmt.Sprintf("item %d", id), err)
	}
	tags, err := p.store.TagsFor(ctx, []int64{id})
	if err != nil {
		return ItemMetaView{}, storeErr(fmt.Sprintf("item %d tags", id), err)
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	return ItemMetaView{Summary: summarize(it, blob, tags[id]), Raw: json.RawMessage(blob)}, nil
}

// summarize tolerates blobs that do not decode; their fields stay empty.
func summarize(it models.Item, blob []byte, tags []string) domain.ItemSummary {
	var md domain.Metadata
	_ = json.Unmarshal(blob, &md)
	if tags == nil {
		tags = []string{}
	}
	images := md.Images
	if images == nil {
		images = []string{}
	}
	h := md.Headings
	if h.H1 == nil {
		h.H1 = []string{}
	}
	if h.H2 == nil {
		h.H2 = []string{}
	}
	return domain.ItemSummary{
		ID:            it.ID,
		URL:           it.URL,
		URLNorm:       it.URLNorm,
		Title:         it.Title,
		Domain:        it.Domain,
		Category:      it.Category,
		CreatedAt:     it.CreatedAt,
		Published:     md.Meta[domain.MetaPublishedTime],
		Thumb:         md.Meta[domain.MetaOGImage],
		OGTitle:       md.Meta[domain.MetaOGTitle],
		OGDescription: md.Meta[domain.MetaOGDescription],
		Headings:      h,
		Images:        images,
		Tags:          tags,
	}
}

func (p *Pipeline) Stats(ctx context.Context) (domain.Stats, error) {
	st, err := p.store.Stats(ctx)
	if err != nil {
		return domain.Stats{}, storeErr("stats", err)
	}
	return st, nil
}

func (p *Pipeline) ListCategories(ctx context.Context) ([]string, error) {
	names, err := p.store.ListCategories(ctx)
	if err != nil {
		return nil, storeErr("list categories", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (p *Pipeline) ListTags(ctx context.Context) ([]string, error) {
	names, err := p.store.ListTags(ctx)
	if err != nil {
		return nil, storeErr("list tags", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
