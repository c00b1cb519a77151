package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/notifications"
	"github.com/cppla/discussion/utils"
)

// NotificationController serves a user's notices and subscription settings.
type NotificationController struct {
	db       *gorm.DB
	registry *notifications.Registry
}

func NewNotificationController(db *gorm.DB, registry *notifications.Registry) *NotificationController {
	return &NotificationController{db: db, registry: registry}
}

// ListNotifications returns the caller's notices newest first. unread=1
// restricts the page to unread ones.
func (n *NotificationController) ListNotifications(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	db := n.db.WithContext(ctx.Request.Context())

	mine := func() *gorm.DB {
		return db.Model(&models.Notification{}).Where("user_id = ?", userID)
	}
	var unread int64
	if err := mine().Where("read_at IS NULL").Count(&unread).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to count notifications")
		return
	}

	q := mine()
	if onlyUnread(ctx.Query("unread")) {
		q = q.Where("read_at IS NULL")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to count notifications")
		return
	}
	items := []models.Notification{}
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&items).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to list notifications")
		return
	}

	utils.Success(ctx, gin.H{
		"items":        items,
		"unread_count": unread,
		"pagination":   pagination(page, pageSize, total),
	})
}

// MarkRead marks one of the caller's notices read.
func (n *NotificationController) MarkRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40440, "notification not found")
		return
	}

	var notice models.Notification
	db := n.db.WithContext(ctx.Request.Context())
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&notice).Error; err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40440, "notification not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to load notification")
		return
	}
	if notice.Unread() {
		now := time.Now()
		if err := db.Model(&notice).Update("read_at", now).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to update notification")
			return
		}
		notice.ReadAt = &now
	}
	utils.Success(ctx, notice)
}

// MarkAllRead marks every unread notice of the caller read.
func (n *NotificationController) MarkAllRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	res := n.db.WithContext(ctx.Request.Context()).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to update notifications")
		return
	}
	utils.Success(ctx, gin.H{"updated": res.RowsAffected})
}

type subscriptionRequest struct {
	ContentType string `json:"content_type" binding:"required"`
	ObjectID    uint   `json:"object_id" binding:"required"`
	Posts       *bool  `json:"posts"`
	Comments    *bool  `json:"comments"`
}

// ListSubscriptions returns the caller's subscriptions.
func (n *NotificationController) ListSubscriptions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	subs := []models.Subscription{}
	if err := n.db.WithContext(ctx.Request.Context()).
		Where("user_id = ?", userID).
		Order("content_type").Order("object_id").
		Find(&subs).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to list subscriptions")
		return
	}
	utils.Success(ctx, gin.H{"items": subs})
}

// UpsertSubscription creates or replaces the caller's settings for a related
// object. Omitted flags default to true.
func (n *NotificationController) UpsertSubscription(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req subscriptionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	req.ContentType = strings.TrimSpace(req.ContentType)
	if _, err := n.registry.Resolve(ctx.Request.Context(), req.ContentType, req.ObjectID); err != nil {
		if errors.Is(err, notifications.ErrRelatedNotFound) {
			utils.Error(ctx, http.StatusBadRequest, 40036, "related object not found")
			return
		}
		utils.Sugar.Errorf("resolve %s %d: %v", req.ContentType, req.ObjectID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to resolve related object")
		return
	}

	sub := models.Subscription{
		UserID:      userID,
		ContentType: req.ContentType,
		ObjectID:    req.ObjectID,
		Posts:       req.Posts == nil || *req.Posts,
		Comments:    req.Comments == nil || *req.Comments,
	}
	db := n.db.WithContext(ctx.Request.Context())
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_type"}, {Name: "object_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"posts", "comments", "updated_at"}),
	}).Create(&sub).Error
	if err != nil {
		utils.Sugar.Errorf("upsert subscription user=%d %s %d: %v", userID, sub.ContentType, sub.ObjectID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50045, "failed to save subscription")
		return
	}
	// The upsert does not report the id of an existing row.
	if err := db.Where("user_id = ? AND content_type = ? AND object_id = ?", userID, sub.ContentType, sub.ObjectID).
		First(&sub).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50045, "failed to save subscription")
		return
	}
	utils.Success(ctx, sub)
}

// DeleteSubscription removes the caller's subscription named by the
// content_type and object_id query parameters.
func (n *NotificationController) DeleteSubscription(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	contentType := strings.TrimSpace(ctx.Query("content_type"))
	objectID, err := strconv.ParseUint(ctx.Query("object_id"), 10, 64)
	if contentType == "" || err != nil || objectID == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40051, "content_type and object_id are required")
		return
	}
	res := n.db.WithContext(ctx.Request.Context()).
		Where("user_id = ? AND content_type = ? AND object_id = ?", userID, contentType, uint(objectID)).
		Delete(&models.Subscription{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50046, "failed to delete subscription")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40450, "subscription not found")
		return
	}
	utils.Success(ctx, gin.H{"deleted": res.RowsAffected})
}

func onlyUnread(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
