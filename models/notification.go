package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification labels.
const (
	LabelDiscussionPost    = "discussion_post"
	LabelDiscussionComment = "discussion_comment"
)

// Related types a notification can point at.
const (
	RelatedPost    = "post"
	RelatedComment = "comment"
)

// Notification is a notice delivered to a user about a new post or comment.
type Notification struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       uint              `gorm:"not null;index:idx_notifications_user_read" json:"user_id"`
	Label        string            `gorm:"size:64;not null;index" json:"label"`
	DiscussionID uint              `gorm:"not null" json:"discussion_id"`
	RelatedType  string            `gorm:"size:32;not null" json:"related_type"`
	RelatedID    uint              `gorm:"not null" json:"related_id"`
	Context      datatypes.JSONMap `json:"context"`
	ReadAt       *time.Time        `gorm:"index:idx_notifications_user_read" json:"read_at"`
	CreatedAt    time.Time         `json:"created_at"`
	User         User              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// Unread reports whether the notice has not been marked read.
func (n Notification) Unread() bool { return n.ReadAt == nil }
