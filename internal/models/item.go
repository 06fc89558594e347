package models

import (
	"time"

	"gorm.io/datatypes"
)

// Item is a captured page. URLNorm is the deduplication key and carries the
// unique index concurrent captures rely on.
type Item struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	URL         string    `json:"url" gorm:"not null;index"`
	URLNorm     string    `json:"url_norm" gorm:"column:url_norm;uniqueIndex;not null"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Domain      string    `json:"domain" gorm:"index"`
	Category    string    `json:"category" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
}

type Category struct {
	ID   int64  `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

type Tag struct {
	ID   int64  `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// ItemTag is the item/tag association; the composite key makes each pair unique.
type ItemTag struct {
	ItemID int64 `gorm:"primaryKey;autoIncrement:false"`
	TagID  int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (ItemTag) TableName() string { return "item_tags" }

// ItemMeta holds the metadata blob of an item's last successful extraction.
type ItemMeta struct {
	ItemID   int64          `gorm:"primaryKey;autoIncrement:false"`
	MetaJSON datatypes.JSON `gorm:"column:meta_json"`
}

func (ItemMeta) TableName() string { return "item_meta" }

// All lists the models migrated at startup.
func All() []any {
	return []any{&Item{}, &Category{}, &Tag{}, &ItemTag{}, &ItemMeta{}}
}
