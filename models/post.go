package models

import (
	"fmt"
	"path"
	"strconv"
	"time"

	"gorm.io/gorm"
)

const (
	// PostUploadDir prefixes the object keys of post attachments.
	PostUploadDir = "uploads/posts"

	timeLayout = "15:04"
	dateLayout = "Jan 2, 2006"
)

// Post is a message in a discussion. Posts are listed newest first.
type Post struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DiscussionID uint      `gorm:"not null;index:idx_posts_discussion_time" json:"discussion_id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	Body         string    `gorm:"type:text;not null" json:"body"`
	Attachment   string    `gorm:"size:255" json:"-"`
	Time         time.Time `gorm:"not null;index:idx_posts_discussion_time" json:"time"`

	AttachmentFilename string `gorm:"-" json:"attachment_filename,omitempty"`
	Prefix             string `gorm:"-" json:"prefix"`

	User       User        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Discussion *Discussion `json:"-"`
	Comments   []Comment   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments"`
}

// BeforeCreate stamps the creation time.
func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	return nil
}

// AfterCreate fills the derived fields once the id is known.
func (p *Post) AfterCreate(tx *gorm.DB) error {
	p.fill()
	return nil
}

// AfterFind fills the derived fields of loaded rows.
func (p *Post) AfterFind(tx *gorm.DB) error {
	p.fill()
	return nil
}

func (p *Post) fill() {
	p.AttachmentFilename = attachmentFilename(p.Attachment)
	p.Prefix = "post-" + strconv.FormatUint(uint64(p.ID), 10)
}

// String describes the post by author and time; User must be loaded.
func (p Post) String() string {
	return fmt.Sprintf("Post by %s at %s on %s", p.User.FullName(), p.Time.Format(timeLayout), p.Time.Format(dateLayout))
}

// URL is the path of the post page within the discussion identified by slug.
func (p Post) URL(slug string) string {
	return DiscussionsPath + "/" + slug + "/posts/" + strconv.FormatUint(uint64(p.ID), 10)
}

// NewestFirst orders posts by descending creation time.
func NewestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("time DESC").Order("id DESC")
}

func attachmentFilename(key string) string {
	if key == "" {
		return ""
	}
	return path.Base(key)
}
