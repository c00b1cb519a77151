package models

import (
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// DiscussionsPath is the URL prefix discussion pages are served under.
const DiscussionsPath = "/api/v1/discussions"

// Discussion groups posts under a named, orderable topic. A discussion may be
// attached to a related object (ContentType + ObjectID) whose subscribers are
// notified of new posts and comments.
type Discussion struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SortOrder   int       `gorm:"index;not null;default:0" json:"sort_order"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Slug        string    `gorm:"size:50;not null;uniqueIndex" json:"slug"`
	Image       string    `gorm:"size:255" json:"image,omitempty"`
	Description string    `gorm:"type:text" json:"description"`
	ContentType string    `gorm:"size:100;index:idx_discussions_related" json:"content_type,omitempty"`
	ObjectID    uint      `gorm:"index:idx_discussions_related" json:"object_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	User        User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"creator"`
	Posts       []Post    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"posts,omitempty"`
}

// String returns the discussion name.
func (d Discussion) String() string { return d.Name }

// URL is the path of the discussion page.
func (d Discussion) URL() string {
	return DiscussionsPath + "/" + d.Slug
}

// HasRelatedObject reports whether the discussion is attached to a related object.
func (d Discussion) HasRelatedObject() bool {
	return d.ContentType != "" && d.ObjectID != 0
}

// BeforeCreate appends the discussion at the end of the sort order and derives
// a unique slug from the name when none was given.
func (d *Discussion) BeforeCreate(tx *gorm.DB) error {
	q := tx.Session(&gorm.Session{NewDB: true})

	if d.SortOrder == 0 {
		var last int
		if err := q.Model(&Discussion{}).Select("COALESCE(MAX(sort_order), 0)").Scan(&last).Error; err != nil {
			return fmt.Errorf("next sort order: %w", err)
		}
		d.SortOrder = last + 1
	}

	if d.Slug == "" {
		slug, err := uniqueSlug(q, Slugify(d.Name))
		if err != nil {
			return err
		}
		d.Slug = slug
	}
	if !ValidSlug(d.Slug) {
		return ErrInvalidSlug
	}
	return nil
}

func uniqueSlug(q *gorm.DB, base string) (string, error) {
	if base == "" {
		base = "discussion"
	}
	candidate := base
	for i := 2; ; i++ {
		var n int64
		if err := q.Model(&Discussion{}).Where("slug = ?", candidate).Count(&n).Error; err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if n == 0 {
			return candidate, nil
		}
		suffix := "-" + strconv.Itoa(i)
		trimmed := base
		if len(trimmed)+len(suffix) > SlugMaxLength {
			trimmed = trimmed[:SlugMaxLength-len(suffix)]
		}
		candidate = trimmed + suffix
	}
}

// Ordered sorts discussions by their explicit sort order.
func Ordered(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC").Order("id ASC")
}
