package routes

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/cppla/discussion/config"
	"github.com/cppla/discussion/controllers"
	"github.com/cppla/discussion/middleware"
	"github.com/cppla/discussion/notifications"
	"github.com/cppla/discussion/storage"
	"github.com/cppla/discussion/utils"
)

// Deps are the services the HTTP layer is built on. Storage may be nil when
// attachments are disabled; Metrics may be nil to skip the /metrics endpoint.
type Deps struct {
	DB       *gorm.DB
	Storage  storage.Storage
	Notifier controllers.Notifier
	Registry *notifications.Registry
	Metrics  *prometheus.Registry
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Deps) (*gin.Engine, error) {
	switch strings.ToLower(cfg.App.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	// Access log goes to its own rolling file.
	gl, err := utils.NewRollingFileLogger(cfg.App.GinPath, cfg.Log)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		utils.Sugar.Warnf("gin access log disabled: %v", err)
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.App.AllowedOrigins) == 0 || (len(cfg.App.AllowedOrigins) == 1 && cfg.App.AllowedOrigins[0] == "*") {
		// AllowCredentials cannot be combined with a wildcard origin.
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.App.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if deps.Metrics != nil {
		pm, err := middleware.NewPrometheusMiddleware(deps.Metrics)
		if err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
		r.Use(pm.Handler())
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	r.Use(middleware.PageViewRecorder(deps.DB))

	sqlDB, err := deps.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	r.GET("/health", controllers.HealthCheck(sqlDB))
	r.GET("/healthz", controllers.LivenessProbe())

	discussionController := controllers.NewDiscussionController(deps.DB, deps.Storage, deps.Notifier, deps.Registry, cfg)
	notificationController := controllers.NewNotificationController(deps.DB, deps.Registry)
	statsController := controllers.NewStatsController(deps.DB)

	api := r.Group("/api/v1")
	api.GET("/search", discussionController.Search)
	api.GET("/stats", statsController.GetStats)

	discussions := api.Group("/discussions")
	discussions.GET("", discussionController.ListDiscussions)
	discussions.GET("/:slug", discussionController.GetDiscussion)
	discussions.GET("/:slug/image", discussionController.DiscussionImage)
	discussions.GET("/:slug/stats", statsController.GetDiscussionStats)
	discussions.GET("/:slug/posts", discussionController.RedirectToDiscussion)
	discussions.GET("/:slug/posts/:id", discussionController.GetPost)
	discussions.GET("/:slug/posts/:id/attachment", discussionController.PostAttachment)
	discussions.GET("/:slug/posts/:id/comments/:commentId/attachment", discussionController.CommentAttachment)

	limit := middleware.RateLimitMiddleware(cfg.App.RateLimitPerMinute)
	writes := discussions.Group("", middleware.AuthRequired(), limit)
	writes.POST("/:slug/posts", discussionController.CreatePost)
	writes.POST("/:slug/posts/:id/comments", discussionController.CreateComment)

	admin := discussions.Group("", middleware.AuthRequired(), middleware.AdminRequired(), limit)
	admin.POST("", discussionController.CreateDiscussion)
	admin.PATCH("/:slug", discussionController.UpdateDiscussion)
	admin.PUT("/order", discussionController.ReorderDiscussions)

	protected := api.Group("", middleware.AuthRequired())
	protected.GET("/notifications", notificationController.ListNotifications)
	protected.POST("/notifications/read-all", limit, notificationController.MarkAllRead)
	protected.POST("/notifications/:id/read", limit, notificationController.MarkRead)
	protected.GET("/subscriptions", notificationController.ListSubscriptions)
	protected.PUT("/subscriptions", limit, notificationController.UpsertSubscription)
	protected.DELETE("/subscriptions", limit, notificationController.DeleteSubscription)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r, nil
}
