package db

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourorg/lifedb/internal/domain"
	"github.com/yourorg/lifedb/internal/models"
)

// CaptureInput is everything one capture writes in its transaction.
type CaptureInput struct {
	URL         string
	URLNorm     string
	Domain      string
	Category    string
	Title       string
	Description string
	// Meta is the JSON metadata blob; empty means "{}".
	Meta []byte
}

// ImportRow is a pre-normalized record for bulk import.
type ImportRow struct {
	URL      string
	URLNorm  string
	Domain   string
	Category string
}

// UpsertCapture ensures the category, updates the item matching the normalized
// (or original) URL in place or inserts a new one, and replaces its metadata
// blob. Returns the item id.
func (s *Store) UpsertCapture(ctx context.Context, in CaptureInput) (int64, error) {
	if strings.TrimSpace(in.URLNorm) == "" {
		return 0, ErrValidation
	}
	var id int64
	err := s.transact(ctx, func(tx *gorm.DB) error {
		if err := ensureCategory(tx, in.Category); err != nil {
			return err
		}
		existing, found, err := findItem(tx, in.URLNorm, in.URL)
		if err != nil {
			return err
		}
		if found {
			id = existing.ID
			err := tx.Model(&models.Item{}).Where("id = ?", id).Updates(map[string]any{
				"url":         in.URL,
				"url_norm":    in.URLNorm,
				"title":       in.Title,
				"description": in.Description,
				"domain":      in.Domain,
				"category":    in.Category,
			}).Error
			if err != nil {
				return err
			}
		} else {
			item := models.Item{
				URL:         in.URL,
				URLNorm:     in.URLNorm,
				Title:       in.Title,
				Description: in.Description,
				Domain:      in.Domain,
				Category:    in.Category,
			}
			// A racing capture of the same normalized URL lands on the
			// conflict branch and updates the winner's row.
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "url_norm"}},
				DoUpdates: clause.AssignmentColumns([]string{"url", "title", "description", "domain", "category"}),
			}).Create(&item).Error
			if err != nil {
				return err
			}
			if id, err = itemIDByNorm(tx, in.URLNorm); err != nil {
				return err
			}
		}

		meta := in.Meta
		if len(meta) == 0 {
			meta = []byte("{}")
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"meta_json"}),
		}).Create(&models.ItemMeta{ItemID: id, MetaJSON: datatypes.JSON(meta)}).Error
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// findItem looks up by normalized URL first, then by the submitted URL.
func findItem(tx *gorm.DB, norm, raw string) (models.Item, bool, error) {
	var it models.Item
	res := tx.Where("url_norm = ?", norm).Limit(1).Find(&it)
	if res.Error != nil {
		return models.Item{}, false, res.Error
	}
	if res.RowsAffected > 0 {
		return it, true, nil
	}
	if raw == "" {
		return models.Item{}, false, nil
	}
	res = tx.Where("url = ?", raw).Order("id").Limit(1).Find(&it)
	if res.Error != nil {
		return models.Item{}, false, res.Error
	}
	return it, res.RowsAffected > 0, nil
}

func itemIDByNorm(tx *gorm.DB, norm string) (int64, error) {
	var ids []int64
	if err := tx.Model(&models.Item{}).Where("url_norm = ?", norm).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	return ids[0], nil
}

// ListItems returns items newest first, narrowed by the filter.
func (s *Store) ListItems(ctx context.Context, f domain.ItemFilter) ([]models.Item, error) {
	q := s.db.WithContext(ctx).Model(&models.Item{})
	if qs := strings.TrimSpace(f.Query); qs != "" {
		if s.dialect == DriverPostgres {
			q = q.Where(`to_tsvector('simple', coalesce(title,'') || ' ' || coalesce(description,'') || ' ' || url) @@ plainto_tsquery('simple', ?)`, qs)
		} else {
			like := "%" + qs + "%"
			q = q.Where("(title LIKE ? OR description LIKE ? OR url LIKE ?)", like, like, like)
		}
	}
	if f.Domain != "" {
		q = q.Where("domain = ?", f.Domain)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Tag != "" {
		q = q.Where(`EXISTS (SELECT 1 FROM item_tags it JOIN tags t ON t.id = it.tag_id WHERE it.item_id = items.id AND t.name = ?)`, f.Tag)
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	var out []models.Item
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(clampLimit(f.Limit, 20, 200)).Offset(offset).
		Find(&out).Error
	return out, mapErr(err)
}

// ItemWithMeta returns the item row and its raw metadata blob (nil when none was stored).
func (s *Store) ItemWithMeta(ctx context.Context, id int64) (models.Item, []byte, error) {
	var it models.Item
	if err := s.db.WithContext(ctx).First(&it, id).Error; err != nil {
		return models.Item{}, nil, mapErr(err)
	}
	var meta models.ItemMeta
	res := s.db.WithContext(ctx).Where("item_id = ?", id).Limit(1).Find(&meta)
	if res.Error != nil {
		return models.Item{}, nil, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return it, nil, nil
	}
	return it, []byte(meta.MetaJSON), nil
}

// GetItems loads items by id, ordered by id. Unknown ids are skipped.
func (s *Store) GetItems(ctx context.Context, ids []int64) ([]models.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Item
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&out).Error
	return out, mapErr(err)
}

// ItemIDsAfter pages through item ids in ascending order (keyset pagination).
func (s *Store) ItemIDsAfter(ctx context.Context, after int64, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Item{}).
		Where("id > ?", after).Order("id").Limit(clampLimit(limit, 500, 5000)).
		Pluck("id", &ids).Error
	return ids, mapErr(err)
}

// Stats returns row counts and the creation time of the newest item.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	g := s.db.WithContext(ctx)
	if err := g.Model(&models.Item{}).Count(&st.Items).Error; err != nil {
		return st, mapErr(err)
	}
	if err := g.Model(&models.Tag{}).Count(&st.Tags).Error; err != nil {
		return st, mapErr(err)
	}
	if err := g.Model(&models.Category{}).Count(&st.Categories).Error; err != nil {
		return st, mapErr(err)
	}
	var last models.Item
	res := g.Order("created_at DESC").Order("id DESC").Limit(1).Find(&last)
	if res.Error != nil {
		return st, mapErr(res.Error)
	}
	if res.RowsAffected > 0 {
		ts := last.CreatedAt
		st.LastCreatedAt = &ts
	}
	return st, nil
}

// ImportItems inserts rows whose URL is not yet known, in one transaction.
// Existing items are left untouched. Returns the ids of inserted items.
func (s *Store) ImportItems(ctx context.Context, rows []ImportRow) ([]int64, error) {
	var ids []int64
	err := s.transact(ctx, func(tx *gorm.DB) error {
		for _, r := range rows {
			if strings.TrimSpace(r.URLNorm) == "" {
				continue
			}
			if err := ensureCategory(tx, r.Category); err != nil {
				return err
			}
			_, found, err := findItem(tx, r.URLNorm, r.URL)
			if err != nil {
				return err
			}
			if found {
				continue
			}
			item := models.Item{URL: r.URL, URLNorm: r.URLNorm, Domain: r.Domain, Category: r.Category}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&item)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			id, err := itemIDByNorm(tx, r.URLNorm)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ExportItems returns up to limit items, newest id first.
func (s *Store) ExportItems(ctx context.Context, limit int) ([]models.Item, error) {
	var out []models.Item
	err := s.db.WithContext(ctx).Order("id DESC").Limit(clampLimit(limit, 1000, 100000)).Find(&out).Error
	return out, mapErr(err)
}

func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
