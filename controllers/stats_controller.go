package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/utils"
)

// StatsController provides counts and page views for the whole site and per discussion.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate statistics.
func (s *StatsController) GetStats(ctx *gin.Context) {
	db := s.db.WithContext(ctx.Request.Context())
	var discussionCount, postCount, commentCount, userCount, todayViews int64

	// Fall back to 0 instead of failing the whole endpoint.
	if err := db.Model(&models.Discussion{}).Count(&discussionCount).Error; err != nil {
		discussionCount = 0
	}
	if err := db.Model(&models.Post{}).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := db.Model(&models.Comment{}).Count(&commentCount).Error; err != nil {
		commentCount = 0
	}
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}

	if err := db.Model(&models.PageView{}).
		Where("date = ?", today()).
		Select("COALESCE(SUM(count),0)").
		Scan(&todayViews).Error; err != nil {
		todayViews = 0
	}

	utils.Success(ctx, gin.H{
		"discussion_count": discussionCount,
		"post_count":       postCount,
		"comment_count":    commentCount,
		"user_count":       userCount,
		"page_views_today": todayViews,
	})
}

// GetDiscussionStats returns post, comment and page view totals for one discussion.
func (s *StatsController) GetDiscussionStats(ctx *gin.Context) {
	discussion, err := discussionBySlug(ctx.Request.Context(), s.db, ctx.Param("slug"))
	if err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40401, "discussion not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to load discussion")
		return
	}
	db := s.db.WithContext(ctx.Request.Context())

	var postCount, commentCount, views int64
	if err := db.Model(&models.Post{}).Where("discussion_id = ?", discussion.ID).Count(&postCount).Error; err != nil {
		postCount = 0
	}
	if err := db.Model(&models.Comment{}).
		Where("post_id IN (?)", db.Model(&models.Post{}).Select("id").Where("discussion_id = ?", discussion.ID)).
		Count(&commentCount).Error; err != nil {
		commentCount = 0
	}
	if err := db.Model(&models.PageView{}).
		Where("path = ? OR path LIKE ? ESCAPE '!'", discussion.URL(), escapeLike(discussion.URL()+"/posts/")+"%").
		Select("COALESCE(SUM(count),0)").
		Scan(&views).Error; err != nil {
		views = 0
	}

	var last models.Post
	var lastPostAt *time.Time
	err = db.Scopes(models.NewestFirst).Where("discussion_id = ?", discussion.ID).Limit(1).Find(&last).Error
	if err == nil && last.ID != 0 {
		lastPostAt = &last.Time
	}

	utils.Success(ctx, gin.H{
		"slug":          discussion.Slug,
		"post_count":    postCount,
		"comment_count": commentCount,
		"page_views":    views,
		"last_post_at":  lastPostAt,
	})
}

// today is local midnight, the key page views are recorded under.
func today() time.Time {
	now := time.Now().In(time.Local)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
