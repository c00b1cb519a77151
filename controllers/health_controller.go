package controllers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/discussion/utils"
)

// HealthCheck pings the database and answers 503 when it is unreachable.
func HealthCheck(db *sql.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			utils.Sugar.Warnf("health check: database ping failed: %v", err)
			utils.Respond(ctx, http.StatusServiceUnavailable, 50300, "database unavailable", gin.H{"status": "unhealthy"})
			return
		}
		utils.Success(ctx, gin.H{"status": "healthy"})
	}
}

// LivenessProbe reports that the process is serving.
func LivenessProbe() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	}
}
