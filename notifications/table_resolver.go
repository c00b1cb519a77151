package notifications

import (
	"context"
	"fmt"
	"regexp"

	"gorm.io/gorm"

	"github.com/cppla/discussion/models"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// TableResolver resolves related objects stored as rows of table, keyed by id.
// Their subscribers come from the subscriptions table: post notices are opt-in
// (posts = true), comment notices are opt-out (suppressed by comments = false).
type TableResolver struct {
	db          *gorm.DB
	contentType string
	table       string
}

// NewTableResolver validates table and returns a resolver for contentType.
func NewTableResolver(db *gorm.DB, contentType, table string) (*TableResolver, error) {
	if contentType == "" {
		return nil, fmt.Errorf("empty content type")
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q for content type %q", table, contentType)
	}
	return &TableResolver{db: db, contentType: contentType, table: table}, nil
}

// RegisterTables registers a TableResolver for each content type -> table entry.
func RegisterTables(r *Registry, db *gorm.DB, tables map[string]string) error {
	for contentType, table := range tables {
		res, err := NewTableResolver(db, contentType, table)
		if err != nil {
			return err
		}
		r.Register(contentType, res)
	}
	return nil
}

func (t *TableResolver) Resolve(ctx context.Context, objectID uint) (RelatedObject, error) {
	var n int64
	if err := t.db.WithContext(ctx).Table(t.table).Where("id = ?", objectID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("look up %s %d: %w", t.contentType, objectID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s %d: %w", t.contentType, objectID, ErrRelatedNotFound)
	}
	return &tableObject{db: t.db, contentType: t.contentType, objectID: objectID}, nil
}

type tableObject struct {
	db          *gorm.DB
	contentType string
	objectID    uint
}

func (o *tableObject) subscribers(ctx context.Context, column string, value bool) *gorm.DB {
	return o.db.WithContext(ctx).Model(&models.Subscription{}).
		Select("user_id").
		Where("content_type = ? AND object_id = ?", o.contentType, o.objectID).
		Where(column+" = ?", value)
}

func (o *tableObject) PostSubscriptions(ctx context.Context, _ *models.Post, candidates *gorm.DB) ([]Subscription, error) {
	var users []models.User
	err := candidates.WithContext(ctx).
		Where("id IN (?)", o.subscribers(ctx, "posts", true)).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("post subscribers of %s %d: %w", o.contentType, o.objectID, err)
	}
	return []Subscription{{Label: models.LabelDiscussionPost, Users: users}}, nil
}

func (o *tableObject) CommentSubscriptions(ctx context.Context, _ *models.Comment, candidates *gorm.DB) ([]Subscription, error) {
	var users []models.User
	err := candidates.WithContext(ctx).
		Where("id NOT IN (?)", o.subscribers(ctx, "comments", false)).
		Order("id").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("comment subscribers of %s %d: %w", o.contentType, o.objectID, err)
	}
	return []Subscription{{Label: models.LabelDiscussionComment, Users: users}}, nil
}
