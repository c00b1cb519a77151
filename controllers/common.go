package controllers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/discussion/middleware"
	"github.com/cppla/discussion/models"
)

// Notifier is told about new posts and comments. Implementations must not block
// the request on delivery failures.
type Notifier interface {
	PostCreated(ctx context.Context, post models.Post)
	CommentCreated(ctx context.Context, comment models.Comment)
}

// maxPage bounds page so (page-1)*pageSize cannot overflow the offset.
const maxPage = 10000

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = min(p, maxPage)
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func pagination(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id != 0
}

// parseID reads a positive numeric path parameter.
func parseID(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isDuplicate recognises unique violations from both MySQL and sqlite.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint failed")
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike quotes the LIKE wildcards of s for use with ESCAPE '!'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// likePattern wraps q for a LIKE ... ESCAPE '!' match on any position.
func likePattern(q string) string {
	return "%" + escapeLike(q) + "%"
}

func discussionBySlug(ctx context.Context, db *gorm.DB, slug string) (models.Discussion, error) {
	var d models.Discussion
	if !models.ValidSlug(slug) {
		return d, gorm.ErrRecordNotFound
	}
	if err := db.WithContext(ctx).Where("slug = ?", slug).First(&d).Error; err != nil {
		return d, err
	}
	return d, nil
}

func cacheKey(prefix string, parts ...any) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i, p := range parts {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
