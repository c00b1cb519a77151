package models

import "time"

// Subscription holds a user's notification settings for one related object.
// Post notices are opt-in (Posts must be true); comment notices are opt-out
// (only Comments == false suppresses them).
type Subscription struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_subscriptions_target" json:"user_id"`
	ContentType string    `gorm:"size:100;not null;uniqueIndex:idx_subscriptions_target;index:idx_subscriptions_related" json:"content_type"`
	ObjectID    uint      `gorm:"not null;uniqueIndex:idx_subscriptions_target;index:idx_subscriptions_related" json:"object_id"`
	Posts       bool      `gorm:"not null" json:"posts"`
	Comments    bool      `gorm:"not null" json:"comments"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	User        User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}
