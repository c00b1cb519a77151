package routes

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/discussion/config"
	"github.com/cppla/discussion/dbtest"
	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/notifications"
	"github.com/cppla/discussion/utils"
)

func newRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	cfg := config.AppConfig{
		App: config.AppSection{
			JWTSecret:          "test-secret",
			AdminUsernames:     []string{"admin"},
			GinMode:            "test",
			GinPath:            filepath.Join(t.TempDir(), "gin.log"),
			RateLimitPerMinute: 600,
			AllowedOrigins:     []string{"*"},
		},
		Log: config.LogSection{Level: "silent"},
	}
	config.Set(cfg)

	db := dbtest.NewDB(t)
	r, err := SetupRouter(cfg, Deps{
		DB:       db,
		Registry: notifications.NewRegistry(),
		Metrics:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return r, db
}

func serve(r http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProbesAndMetrics(t *testing.T) {
	r, _ := newRouter(t)

	w := serve(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", "").Code)

	w = serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestNoRoute(t *testing.T) {
	r, _ := newRouter(t)
	w := serve(r, http.MethodGet, "/api/v1/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":40400`)
}

func TestRouteGuards(t *testing.T) {
	r, db := newRouter(t)
	ada := dbtest.SeedUser(t, db, "ada")
	token, err := utils.GenerateToken(ada.ID, ada.Username, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		auth   string
		want   int
	}{
		{http.MethodPost, models.DiscussionsPath + "/general/posts", "", http.StatusUnauthorized},
		{http.MethodPost, models.DiscussionsPath, "Bearer " + token, http.StatusForbidden},
		{http.MethodPut, models.DiscussionsPath + "/order", "Bearer " + token, http.StatusForbidden},
		{http.MethodPatch, models.DiscussionsPath + "/general", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/notifications", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/subscriptions", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(r, tt.method, tt.path, tt.auth).Code)
		})
	}
}

func TestDiscussionPagesRecordViews(t *testing.T) {
	r, db := newRouter(t)
	owner := dbtest.SeedUser(t, db, "owner")
	d := dbtest.SeedDiscussion(t, db, owner, "General", "", 0)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, d.URL(), "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, d.URL(), "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, models.DiscussionsPath, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, models.DiscussionsPath+"/missing", "").Code)

	var views []models.PageView
	require.NoError(t, db.Find(&views).Error)
	require.Len(t, views, 1)
	assert.Equal(t, d.URL(), views[0].Path)
	assert.Equal(t, int64(2), views[0].Count)

	w := serve(r, http.MethodGet, d.URL()+"/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"page_views":2`), w.Body.String())
}
