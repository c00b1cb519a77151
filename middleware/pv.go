package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/utils"
)

// Routes whose successful GETs count as page views.
var pageRoutes = map[string]bool{
	models.DiscussionsPath + "/:slug":           true,
	models.DiscussionsPath + "/:slug/posts/:id": true,
}

// PageViewRecorder counts successful views of discussion and post pages per day and path.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet || !pageRoutes[c.FullPath()] {
			return
		}
		if status := c.Writer.Status(); status < 200 || status >= 300 {
			return
		}

		// Local midnight to align with the DATE column.
		now := time.Now().In(time.Local)
		localMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		err := db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
		}).Create(&models.PageView{Date: localMidnight, Path: c.Request.URL.Path, Count: 1}).Error
		if err != nil {
			utils.Sugar.Warnf("record page view %s: %v", c.Request.URL.Path, err)
		}
	}
}
