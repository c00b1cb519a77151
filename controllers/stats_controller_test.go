package controllers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/discussion/dbtest"
	"github.com/cppla/discussion/models"
)

func TestGetStats(t *testing.T) {
	e := newEnv(t, false)
	d := dbtest.SeedDiscussion(t, e.db, e.admin, "General", "", 0)
	p := dbtest.SeedPost(t, e.db, d, e.ada, "hello")
	dbtest.SeedComment(t, e.db, p, e.admin, "hi")
	require.NoError(t, e.db.Create(&models.PageView{Date: today(), Path: d.URL(), Count: 4}).Error)

	w := e.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]int64
	decode(t, w, &data)
	assert.Equal(t, map[string]int64{
		"discussion_count": 1,
		"post_count":       1,
		"comment_count":    1,
		"user_count":       2,
		"page_views_today": 4,
	}, data)
}

func TestGetDiscussionStats(t *testing.T) {
	e := newEnv(t, false)
	d := dbtest.SeedDiscussion(t, e.db, e.admin, "General", "", 0)
	other := dbtest.SeedDiscussion(t, e.db, e.admin, "General 2", "", 0)
	p := dbtest.SeedPost(t, e.db, d, e.ada, "hello")
	last := dbtest.SeedPost(t, e.db, d, e.ada, "again")
	dbtest.SeedComment(t, e.db, p, e.admin, "hi")
	dbtest.SeedComment(t, e.db, p, e.ada, "there")
	dbtest.SeedPost(t, e.db, other, e.ada, "elsewhere")

	for _, pv := range []models.PageView{
		{Date: today(), Path: d.URL(), Count: 3},
		{Date: today(), Path: p.URL(d.Slug), Count: 2},
		{Date: today(), Path: other.URL(), Count: 5},
	} {
		require.NoError(t, e.db.Create(&pv).Error)
	}

	w := e.do(t, http.MethodGet, d.URL()+"/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		PostCount    int64  `json:"post_count"`
		CommentCount int64  `json:"comment_count"`
		PageViews    int64  `json:"page_views"`
		LastPostAt   string `json:"last_post_at"`
	}
	decode(t, w, &data)
	assert.Equal(t, int64(2), data.PostCount)
	assert.Equal(t, int64(2), data.CommentCount)
	assert.Equal(t, int64(5), data.PageViews)
	assert.NotEmpty(t, data.LastPostAt)
	assert.True(t, last.Time.After(p.Time))

	w = e.do(t, http.MethodGet, models.DiscussionsPath+"/missing/stats", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	r := gin.New()
	r.GET("/health", HealthCheck(db))
	r.GET("/healthz", LivenessProbe())

	mock.ExpectPing()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
