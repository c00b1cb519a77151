package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/notifications"
	"github.com/cppla/discussion/storage"
	"github.com/cppla/discussion/utils"
)

var errUnknownSlug = errors.New("unknown slug")

type createDiscussionRequest struct {
	Name        string `json:"name" form:"name" binding:"required"`
	Slug        string `json:"slug" form:"slug"`
	Description string `json:"description" form:"description"`
	ContentType string `json:"content_type" form:"content_type"`
	ObjectID    uint   `json:"object_id" form:"object_id"`
}

type updateDiscussionRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
	ContentType *string `json:"content_type"`
	ObjectID    *uint   `json:"object_id"`
}

type reorderRequest struct {
	Slugs []string `json:"slugs" binding:"required,min=1"`
}

// CreateDiscussion adds a discussion at the end of the sort order. Admin only.
func (d *DiscussionController) CreateDiscussion(ctx *gin.Context) {
	var req createDiscussionRequest
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	discussion := models.Discussion{
		Name:        utils.SanitizeText(req.Name),
		Slug:        strings.TrimSpace(req.Slug),
		Description: strings.TrimSpace(utils.Sanitize(req.Description)),
		ContentType: strings.TrimSpace(req.ContentType),
		ObjectID:    req.ObjectID,
	}
	if discussion.Name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40031, "name cannot be empty")
		return
	}
	if discussion.Slug != "" && !models.ValidSlug(discussion.Slug) {
		utils.Error(ctx, http.StatusBadRequest, 40032, models.ErrInvalidSlug.Error())
		return
	}
	if !d.checkRelated(ctx, discussion) {
		return
	}
	user, ok := d.currentUser(ctx)
	if !ok {
		return
	}
	discussion.UserID = user.ID

	if fh := formFile(ctx, "image"); fh != nil {
		key, err := d.files.put(ctx.Request.Context(), storage.DiscussionImageDir, fh)
		if err != nil {
			uploadError(ctx, err)
			return
		}
		discussion.Image = key
	}

	if err := d.db.WithContext(ctx.Request.Context()).Create(&discussion).Error; err != nil {
		d.files.discard(ctx.Request.Context(), discussion.Image)
		d.saveError(ctx, err)
		return
	}
	discussion.User = user

	utils.InvalidateByPrefix(ctx.Request.Context(), utils.CacheDiscussionPrefix)
	utils.Sugar.Infof("discussion %q created by %s", discussion.Slug, user.Username)
	utils.Created(ctx, gin.H{"discussion": discussion, "url": discussion.URL()})
}

// UpdateDiscussion changes the name, slug, description or related object of a
// discussion. An empty content_type detaches it. Admin only.
func (d *DiscussionController) UpdateDiscussion(ctx *gin.Context) {
	var req updateDiscussionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	discussion, err := discussionBySlug(ctx.Request.Context(), d.db, ctx.Param("slug"))
	if err != nil {
		d.discussionError(ctx, err)
		return
	}

	if req.Name != nil {
		discussion.Name = utils.SanitizeText(*req.Name)
		if discussion.Name == "" {
			utils.Error(ctx, http.StatusBadRequest, 40031, "name cannot be empty")
			return
		}
	}
	if req.Slug != nil {
		discussion.Slug = strings.TrimSpace(*req.Slug)
		if !models.ValidSlug(discussion.Slug) {
			utils.Error(ctx, http.StatusBadRequest, 40032, models.ErrInvalidSlug.Error())
			return
		}
	}
	if req.Description != nil {
		discussion.Description = strings.TrimSpace(utils.Sanitize(*req.Description))
	}
	if req.ContentType != nil {
		discussion.ContentType = strings.TrimSpace(*req.ContentType)
		if discussion.ContentType == "" {
			discussion.ObjectID = 0
		}
	}
	if req.ObjectID != nil && discussion.ContentType != "" {
		discussion.ObjectID = *req.ObjectID
	}
	if !d.checkRelated(ctx, discussion) {
		return
	}

	err = d.db.WithContext(ctx.Request.Context()).Model(&discussion).
		Select("name", "slug", "description", "content_type", "object_id", "updated_at").
		Updates(&discussion).Error
	if err != nil {
		d.saveError(ctx, err)
		return
	}

	utils.InvalidateByPrefix(ctx.Request.Context(), utils.CacheDiscussionPrefix)
	utils.Success(ctx, gin.H{"discussion": discussion, "url": discussion.URL()})
}

// ReorderDiscussions puts the listed discussions first, in the given order,
// followed by the rest in their previous order. Admin only.
func (d *DiscussionController) ReorderDiscussions(ctx *gin.Context) {
	var req reorderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	var ordered []models.Discussion
	err := d.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var all []models.Discussion
		if err := tx.Scopes(models.Ordered).Find(&all).Error; err != nil {
			return err
		}
		bySlug := make(map[string]int, len(all))
		for i, disc := range all {
			bySlug[disc.Slug] = i
		}

		placed := make([]bool, len(all))
		for _, slug := range req.Slugs {
			i, ok := bySlug[slug]
			if !ok || placed[i] {
				return errUnknownSlug
			}
			placed[i] = true
			ordered = append(ordered, all[i])
		}
		for i, disc := range all {
			if !placed[i] {
				ordered = append(ordered, disc)
			}
		}

		for i := range ordered {
			pos := i + 1
			if ordered[i].SortOrder == pos {
				continue
			}
			if err := tx.Model(&ordered[i]).UpdateColumn("sort_order", pos).Error; err != nil {
				return err
			}
			ordered[i].SortOrder = pos
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errUnknownSlug) {
			utils.Error(ctx, http.StatusBadRequest, 40033, "slugs must name distinct existing discussions")
			return
		}
		utils.Sugar.Errorf("reorder discussions: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to reorder discussions")
		return
	}

	utils.InvalidateByPrefix(ctx.Request.Context(), utils.CacheDiscussionPrefix)
	utils.Success(ctx, gin.H{"items": ordered})
}

// DiscussionImage redirects to a download URL for the discussion image.
func (d *DiscussionController) DiscussionImage(ctx *gin.Context) {
	discussion, err := discussionBySlug(ctx.Request.Context(), d.db, ctx.Param("slug"))
	if err != nil {
		d.discussionError(ctx, err)
		return
	}
	d.files.redirectToObject(ctx, discussion.Image)
}

// checkRelated requires a registered content type and an existing object
// whenever a discussion names one.
func (d *DiscussionController) checkRelated(ctx *gin.Context, discussion models.Discussion) bool {
	if discussion.ContentType == "" {
		if discussion.ObjectID != 0 {
			utils.Error(ctx, http.StatusBadRequest, 40034, "object_id requires content_type")
			return false
		}
		return true
	}
	if d.registry == nil || !d.registry.Has(discussion.ContentType) {
		utils.Error(ctx, http.StatusBadRequest, 40035, "unknown content type")
		return false
	}
	if _, err := d.registry.Resolve(ctx.Request.Context(), discussion.ContentType, discussion.ObjectID); err != nil {
		if errors.Is(err, notifications.ErrRelatedNotFound) {
			utils.Error(ctx, http.StatusBadRequest, 40036, "related object not found")
			return false
		}
		utils.Sugar.Errorf("resolve %s %d: %v", discussion.ContentType, discussion.ObjectID, err)
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to resolve related object")
		return false
	}
	return true
}

func (d *DiscussionController) saveError(ctx *gin.Context, err error) {
	switch {
	case isDuplicate(err):
		utils.Error(ctx, http.StatusConflict, 40901, "slug already in use")
	case errors.Is(err, models.ErrInvalidSlug):
		utils.Error(ctx, http.StatusBadRequest, 40032, err.Error())
	default:
		utils.Sugar.Errorf("save discussion: %v", err)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to save discussion")
	}
}
