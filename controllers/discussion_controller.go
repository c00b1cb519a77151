package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/discussion/config"
	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/notifications"
	"github.com/cppla/discussion/storage"
	"github.com/cppla/discussion/utils"
)

const searchLimit = 50

// DiscussionController serves discussions, their posts and comments.
type DiscussionController struct {
	db       *gorm.DB
	files    uploader
	notifier Notifier
	registry *notifications.Registry
}

// NewDiscussionController wires the public and authenticated discussion endpoints.
// store may be nil, in which case requests carrying files are refused.
func NewDiscussionController(db *gorm.DB, store storage.Storage, notifier Notifier, registry *notifications.Registry, cfg config.AppConfig) *DiscussionController {
	return &DiscussionController{
		db: db,
		files: uploader{
			store:    store,
			maxBytes: int64(cfg.App.MaxAttachmentMB) << 20,
			expiry:   time.Duration(max(cfg.MinIO.PresignExpiryMin, 1)) * time.Minute,
		},
		notifier: notifier,
		registry: registry,
	}
}

// ListDiscussions returns discussions in their explicit sort order.
func (d *DiscussionController) ListDiscussions(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	key := cacheKey(utils.CacheListPrefix, page, pageSize)
	if b, ok := utils.CacheGetBytes(ctx.Request.Context(), key); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	db := d.db.WithContext(ctx.Request.Context())
	var total int64
	if err := db.Model(&models.Discussion{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to count discussions")
		return
	}
	var discussions []models.Discussion
	if err := db.Scopes(models.Ordered).Preload("User").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&discussions).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to list discussions")
		return
	}

	payload := gin.H{
		"items":      discussions,
		"pagination": pagination(page, pageSize, total),
	}
	utils.CacheSetJSON(ctx.Request.Context(), key, utils.Envelope(payload), 0)
	utils.Success(ctx, payload)
}

type postHit struct {
	models.Post
	DiscussionSlug string `json:"discussion_slug"`
	URL            string `json:"url"`
}

// Search matches discussions by name or description and posts by body.
// An empty query returns empty results.
func (d *DiscussionController) Search(ctx *gin.Context) {
	q := strings.TrimSpace(ctx.Query("q"))
	discussions := []models.Discussion{}
	hits := []postHit{}
	if q == "" {
		utils.Success(ctx, gin.H{"query": q, "discussions": discussions, "posts": hits})
		return
	}

	db := d.db.WithContext(ctx.Request.Context())
	pattern := likePattern(q)
	if err := db.Scopes(models.Ordered).
		Where("name LIKE ? ESCAPE '!' OR description LIKE ? ESCAPE '!'", pattern, pattern).
		Limit(searchLimit).Find(&discussions).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "search failed")
		return
	}

	var posts []models.Post
	if err := db.Scopes(models.NewestFirst).Preload("User").Preload("Discussion").
		Where("body LIKE ? ESCAPE '!'", pattern).
		Limit(searchLimit).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "search failed")
		return
	}
	for _, p := range posts {
		if p.Discussion == nil {
			continue
		}
		hits = append(hits, postHit{Post: p, DiscussionSlug: p.Discussion.Slug, URL: p.URL(p.Discussion.Slug)})
	}

	utils.Success(ctx, gin.H{"query": q, "discussions": discussions, "posts": hits})
}

// GetDiscussion returns a discussion with a page of its posts, newest first,
// each carrying its comments oldest first.
func (d *DiscussionController) GetDiscussion(ctx *gin.Context) {
	slug := ctx.Param("slug")
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	key := cacheKey(utils.CacheDetailPrefix+slug+":", page, pageSize)
	if b, ok := utils.CacheGetBytes(ctx.Request.Context(), key); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	discussion, err := discussionBySlug(ctx.Request.Context(), d.db, slug)
	if err != nil {
		d.discussionError(ctx, err)
		return
	}

	db := d.db.WithContext(ctx.Request.Context())
	var total int64
	if err := db.Model(&models.Post{}).Where("discussion_id = ?", discussion.ID).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to count posts")
		return
	}
	var posts []models.Post
	if err := withThread(db).Scopes(models.NewestFirst).
		Where("discussion_id = ?", discussion.ID).
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50005, "failed to load posts")
		return
	}
	if err := db.Model(&discussion).Association("User").Find(&discussion.User); err != nil {
		utils.Sugar.Warnf("load creator of discussion %d: %v", discussion.ID, err)
	}

	payload := gin.H{
		"discussion": discussion,
		"posts":      posts,
		"pagination": pagination(page, pageSize, total),
	}
	utils.CacheSetJSON(ctx.Request.Context(), key, utils.Envelope(payload), 0)
	utils.Success(ctx, payload)
}

// RedirectToDiscussion sends the bare posts index back to the discussion page.
func (d *DiscussionController) RedirectToDiscussion(ctx *gin.Context) {
	ctx.Redirect(http.StatusMovedPermanently, models.Discussion{Slug: ctx.Param("slug")}.URL())
}

type bodyRequest struct {
	Body string `json:"body" form:"body" binding:"required"`
}

// CreatePost adds a post to a discussion, optionally with an attachment, and
// notifies the related object's subscribers.
func (d *DiscussionController) CreatePost(ctx *gin.Context) {
	body, ok := bindBody(ctx)
	if !ok {
		return
	}
	user, ok := d.currentUser(ctx)
	if !ok {
		return
	}
	discussion, err := discussionBySlug(ctx.Request.Context(), d.db, ctx.Param("slug"))
	if err != nil {
		d.discussionError(ctx, err)
		return
	}

	post := models.Post{DiscussionID: discussion.ID, UserID: user.ID, Body: body}
	if fh := formFile(ctx, "attachment"); fh != nil {
		key, err := d.files.put(ctx.Request.Context(), models.PostUploadDir, fh)
		if err != nil {
			uploadError(ctx, err)
			return
		}
		post.Attachment = key
	}

	if err := d.db.WithContext(ctx.Request.Context()).Create(&post).Error; err != nil {
		d.files.discard(ctx.Request.Context(), post.Attachment)
		utils.Sugar.Errorf("create post in %s: %v", discussion.Slug, err)
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}
	post.User = user

	utils.InvalidateByPrefix(ctx.Request.Context(), utils.CacheDetailPrefix+discussion.Slug+":")
	d.notifier.PostCreated(ctx.Request.Context(), post)

	utils.Created(ctx, gin.H{"post": post, "url": post.URL(discussion.Slug)})
}

// GetPost returns one post of a discussion with its comments oldest first.
func (d *DiscussionController) GetPost(ctx *gin.Context) {
	discussion, post, ok := d.loadPost(ctx, true)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"discussion": discussion, "post": post, "url": post.URL(discussion.Slug)})
}

// CreateComment replies to a post and notifies the thread's participants.
func (d *DiscussionController) CreateComment(ctx *gin.Context) {
	body, ok := bindBody(ctx)
	if !ok {
		return
	}
	user, ok := d.currentUser(ctx)
	if !ok {
		return
	}
	discussion, post, ok := d.loadPost(ctx, false)
	if !ok {
		return
	}

	comment := models.Comment{PostID: post.ID, UserID: user.ID, Body: body}
	if fh := formFile(ctx, "attachment"); fh != nil {
		key, err := d.files.put(ctx.Request.Context(), models.CommentUploadDir, fh)
		if err != nil {
			uploadError(ctx, err)
			return
		}
		comment.Attachment = key
	}

	if err := d.db.WithContext(ctx.Request.Context()).Create(&comment).Error; err != nil {
		d.files.discard(ctx.Request.Context(), comment.Attachment)
		utils.Sugar.Errorf("create comment on post %d: %v", post.ID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to create comment")
		return
	}
	comment.User = user

	utils.InvalidateByPrefix(ctx.Request.Context(), utils.CacheDetailPrefix+discussion.Slug+":")
	d.notifier.CommentCreated(ctx.Request.Context(), comment)

	utils.Created(ctx, gin.H{"comment": comment, "url": post.URL(discussion.Slug)})
}

// PostAttachment redirects to a download URL for the post's attachment.
func (d *DiscussionController) PostAttachment(ctx *gin.Context) {
	_, post, ok := d.loadPost(ctx, false)
	if !ok {
		return
	}
	d.files.redirectToObject(ctx, post.Attachment)
}

// CommentAttachment redirects to a download URL for a comment's attachment.
func (d *DiscussionController) CommentAttachment(ctx *gin.Context) {
	_, post, ok := d.loadPost(ctx, false)
	if !ok {
		return
	}
	commentID, ok := parseID(ctx, "commentId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40403, "comment not found")
		return
	}
	var comment models.Comment
	err := d.db.WithContext(ctx.Request.Context()).
		Where("id = ? AND post_id = ?", commentID, post.ID).First(&comment).Error
	if err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40403, "comment not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to load comment")
		return
	}
	d.files.redirectToObject(ctx, comment.Attachment)
}

// loadPost resolves :slug and :id, answering 404 when the post is not part of the discussion.
func (d *DiscussionController) loadPost(ctx *gin.Context, withComments bool) (models.Discussion, models.Post, bool) {
	var post models.Post
	discussion, err := discussionBySlug(ctx.Request.Context(), d.db, ctx.Param("slug"))
	if err != nil {
		d.discussionError(ctx, err)
		return discussion, post, false
	}
	postID, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
		return discussion, post, false
	}

	q := d.db.WithContext(ctx.Request.Context())
	if withComments {
		q = withThread(q)
	}
	if err := q.Where("id = ? AND discussion_id = ?", postID, discussion.ID).First(&post).Error; err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40402, "post not found")
			return discussion, post, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load post")
		return discussion, post, false
	}
	return discussion, post, true
}

// currentUser loads the authenticated account; tokens for unknown users get 401.
func (d *DiscussionController) currentUser(ctx *gin.Context) (models.User, bool) {
	var user models.User
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return user, false
	}
	if err := d.db.WithContext(ctx.Request.Context()).First(&user, userID).Error; err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusUnauthorized, 40111, "unknown user")
			return user, false
		}
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load user")
		return user, false
	}
	return user, true
}

func (d *DiscussionController) discussionError(ctx *gin.Context, err error) {
	if isNotFound(err) {
		utils.Error(ctx, http.StatusNotFound, 40401, "discussion not found")
		return
	}
	utils.Error(ctx, http.StatusInternalServerError, 50006, "failed to load discussion")
}

// bindBody reads and sanitizes the body field from JSON or a multipart form.
func bindBody(ctx *gin.Context) (string, bool) {
	var req bodyRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return "", false
	}
	body := strings.TrimSpace(utils.Sanitize(req.Body))
	if body == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "body cannot be empty")
		return "", false
	}
	return body, true
}

func withThread(db *gorm.DB) *gorm.DB {
	return db.Preload("User").
		Preload("Comments", func(tx *gorm.DB) *gorm.DB { return tx.Scopes(models.OldestFirst) }).
		Preload("Comments.User")
}
