package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CommentUploadDir prefixes the object keys of comment attachments.
const CommentUploadDir = "uploads/comments"

// Comment is a reply to a post. Comments are listed oldest first.
type Comment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PostID     uint      `gorm:"not null;index:idx_comments_post_time" json:"post_id"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	Attachment string    `gorm:"size:255" json:"-"`
	Time       time.Time `gorm:"not null;index:idx_comments_post_time" json:"time"`

	AttachmentFilename string `gorm:"-" json:"attachment_filename,omitempty"`

	User User  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Post *Post `json:"-"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.Time.IsZero() {
		c.Time = time.Now()
	}
	return nil
}

func (c *Comment) AfterCreate(tx *gorm.DB) error {
	c.AttachmentFilename = attachmentFilename(c.Attachment)
	return nil
}

func (c *Comment) AfterFind(tx *gorm.DB) error {
	c.AttachmentFilename = attachmentFilename(c.Attachment)
	return nil
}

// String describes the comment by author and time; User must be loaded.
func (c Comment) String() string {
	return fmt.Sprintf("Comment by %s at %s on %s", c.User.FullName(), c.Time.Format(timeLayout), c.Time.Format(dateLayout))
}

// OldestFirst orders comments by ascending creation time.
func OldestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("time ASC").Order("id ASC")
}
