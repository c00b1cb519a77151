package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/discussion/config"
	"github.com/cppla/discussion/dbtest"
	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setConfig(t *testing.T) {
	t.Helper()
	config.Set(config.AppConfig{App: config.AppSection{JWTSecret: "test-secret", AdminUsernames: []string{"admin"}}})
}

func bearer(t *testing.T, id uint, username string) string {
	t.Helper()
	token, err := utils.GenerateToken(id, username, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthRequired(t *testing.T) {
	setConfig(t)
	r := gin.New()
	r.GET("/me", AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetUint(ContextUserIDKey), "username": c.GetString(ContextUsernameKey)})
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "missing", wantStatus: http.StatusUnauthorized, wantCode: `"code":40101`},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: `"code":40102`},
		{name: "empty token", header: "Bearer  ", wantStatus: http.StatusUnauthorized, wantCode: `"code":40103`},
		{name: "garbage", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized, wantCode: `"code":40105`},
		{name: "valid", header: bearer(t, 7, "ada"), wantStatus: http.StatusOK, wantCode: `"username":"ada"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestAdminRequired(t *testing.T) {
	setConfig(t)
	r := gin.New()
	r.POST("/admin", AuthRequired(), AdminRequired(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for username, want := range map[string]int{"admin": http.StatusNoContent, "ada": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", bearer(t, 1, username))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, username)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(4)) // burst of 2
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients have their own bucket")
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(utils.RequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestPrometheusMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPrometheusMiddleware(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/discussions/:slug", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/discussions/a", "/discussions/b", "/metrics", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "/discussions/:slug", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestCount.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestCount))

	_, err = NewPrometheusMiddleware(reg)
	assert.Error(t, err, "registering twice on one registry fails")
}

func TestPageViewRecorder(t *testing.T) {
	db := dbtest.NewDB(t)
	r := gin.New()
	r.Use(PageViewRecorder(db))
	r.GET(models.DiscussionsPath+"/:slug", func(c *gin.Context) {
		if c.Param("slug") == "missing" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Status(http.StatusOK)
	})
	r.GET(models.DiscussionsPath, func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{
		models.DiscussionsPath + "/general",
		models.DiscussionsPath + "/general",
		models.DiscussionsPath + "/missing",
		models.DiscussionsPath,
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	var views []models.PageView
	require.NoError(t, db.Find(&views).Error)
	require.Len(t, views, 1)
	assert.Equal(t, models.DiscussionsPath+"/general", views[0].Path)
	assert.Equal(t, int64(2), views[0].Count)
}
