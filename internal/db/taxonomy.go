package db

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourorg/lifedb/internal/models"
)

// EnsureCategory creates the category if it does not exist. Empty names are ignored.
func (s *Store) EnsureCategory(ctx context.Context, name string) error {
	return s.transact(ctx, func(tx *gorm.DB) error {
		return ensureCategory(tx, strings.TrimSpace(name))
	})
}

// RenameCategory moves every item from old to new and removes old, atomically.
// Renaming a category to itself only ensures it exists.
func (s *Store) RenameCategory(ctx context.Context, oldName, newName string) error {
	if oldName == "" || newName == "" {
		return ErrValidation
	}
	return s.transact(ctx, func(tx *gorm.DB) error {
		if err := ensureCategory(tx, newName); err != nil {
			return err
		}
		if oldName == newName {
			return nil
		}
		if err := tx.Model(&models.Item{}).Where("category = ?", oldName).Update("category", newName).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", oldName).Delete(&models.Category{}).Error
	})
}

// MergeTags repoints every association of src to dst, collapsing duplicates,
// and deletes src. An unknown src only ensures dst.
func (s *Store) MergeTags(ctx context.Context, src, dst string) error {
	if src == "" || dst == "" || src == dst {
		return ErrValidation
	}
	return s.transact(ctx, func(tx *gorm.DB) error {
		dstID, err := ensureTag(tx, dst)
		if err != nil {
			return err
		}
		var from models.Tag
		res := tx.Where("name = ?", src).Limit(1).Find(&from)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		const q = `INSERT INTO item_tags (item_id, tag_id)
SELECT item_id, ? FROM item_tags WHERE tag_id = ?
ON CONFLICT DO NOTHING`
		if err := tx.Exec(q, dstID, from.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("tag_id = ?", from.ID).Delete(&models.ItemTag{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Tag{}, from.ID).Error
	})
}

// SetItemTags replaces the tags of an item. Names are trimmed and
// de-duplicated; the resulting sorted set is returned.
func (s *Store) SetItemTags(ctx context.Context, itemID int64, names []string) ([]string, error) {
	clean := cleanNames(names)
	err := s.transact(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Item{}).Where("id = ?", itemID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := tx.Where("item_id = ?", itemID).Delete(&models.ItemTag{}).Error; err != nil {
			return err
		}
		for _, name := range clean {
			tagID, err := ensureTag(tx, name)
			if err != nil {
				return err
			}
			err = tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&models.ItemTag{ItemID: itemID, TagID: tagID}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clean, nil
}

// TagsFor returns tag names per item id, each list sorted by name.
func (s *Store) TagsFor(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	type row struct {
		ItemID int64
		Name   string
	}
	var rows []row
	err := s.db.WithContext(ctx).Table("item_tags").
		Select("item_tags.item_id AS item_id, tags.name AS name").
		Joins("JOIN tags ON tags.id = item_tags.tag_id").
		Where("item_tags.item_id IN ?", ids).
		Order("tags.name").
		Scan(&rows).Error
	if err != nil {
		return nil, mapErr(err)
	}
	for _, r := range rows {
		out[r.ItemID] = append(out[r.ItemID], r.Name)
	}
	return out, nil
}

// ItemTags returns the sorted tag names of one item.
func (s *Store) ItemTags(ctx context.Context, itemID int64) ([]string, error) {
	m, err := s.TagsFor(ctx, []int64{itemID})
	if err != nil {
		return nil, err
	}
	return m[itemID], nil
}

// ItemIDsByCategory returns the ids of items filed under name.
func (s *Store) ItemIDsByCategory(ctx context.Context, name string) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Item{}).Where("category = ?", name).Order("id").Pluck("id", &ids).Error
	return ids, mapErr(err)
}

// ItemIDsByTag returns the ids of items carrying the tag.
func (s *Store) ItemIDsByTag(ctx context.Context, name string) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Table("item_tags").
		Joins("JOIN tags ON tags.id = item_tags.tag_id").
		Where("tags.name = ?", name).
		Order("item_tags.item_id").
		Pluck("item_tags.item_id", &ids).Error
	return ids, mapErr(err)
}

// ListCategories returns all category names, sorted.
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.Category{}).Order("name").Pluck("name", &names).Error
	return names, mapErr(err)
}

// ListTags returns all tag names, sorted.
func (s *Store) ListTags(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&models.Tag{}).Order("name").Pluck("name", &names).Error
	return names, mapErr(err)
}

// ensureCategory inserts the category unless it exists; the empty name means
// "no category" and is never stored.
func ensureCategory(tx *gorm.DB, name string) error {
	if name == "" {
		return nil
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Category{Name: name}).Error
}

func ensureTag(tx *gorm.DB, name string) (int64, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Tag{Name: name}).Error; err != nil {
		return 0, err
	}
	var ids []int64
	if err := tx.Model(&models.Tag{}).Where("name = ?", name).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, ErrNotFound
	}
	return ids[0], nil
}

func cleanNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
