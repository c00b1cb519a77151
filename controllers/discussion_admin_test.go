package controllers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cppla/discussion/dbtest"
	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/storage"
)

func TestCreateDiscussion(t *testing.T) {
	e := newEnv(t, false)
	admin := e.token(t, e.admin)
	existing := dbtest.SeedDiscussion(t, e.db, e.admin, "General", "", 0)

	w := e.do(t, http.MethodPost, models.DiscussionsPath, admin, gin.H{
		"name":         "Apollo <b>launch</b>",
		"description":  "<p>Countdown</p>",
		"content_type": "project",
		"object_id":    1,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		Discussion models.Discussion `json:"discussion"`
		URL        string            `json:"url"`
	}
	decode(t, w, &data)
	assert.Equal(t, "Apollo launch", data.Discussion.Name)
	assert.Equal(t, "apollo-launch", data.Discussion.Slug)
	assert.Equal(t, existing.SortOrder+1, data.Discussion.SortOrder)
	assert.Equal(t, e.admin.ID, data.Discussion.UserID)
	assert.Equal(t, models.DiscussionsPath+"/apollo-launch", data.URL)

	tests := []struct {
		name   string
		auth   string
		body   gin.H
		status int
		code   int
	}{
		{"not admin", e.token(t, e.ada), gin.H{"name": "x"}, http.StatusForbidden, 40310},
		{"missing name", admin, gin.H{"slug": "x"}, http.StatusBadRequest, 40030},
		{"markup name", admin, gin.H{"name": "<i></i>"}, http.StatusBadRequest, 40031},
		{"invalid slug", admin, gin.H{"name": "x", "slug": "no spaces"}, http.StatusBadRequest, 40032},
		{"duplicate slug", admin, gin.H{"name": "x", "slug": existing.Slug}, http.StatusConflict, 40901},
		{"object without type", admin, gin.H{"name": "x", "object_id": 1}, http.StatusBadRequest, 40034},
		{"unknown type", admin, gin.H{"name": "x", "content_type": "crowd", "object_id": 1}, http.StatusBadRequest, 40035},
		{"missing object", admin, gin.H{"name": "x", "content_type": "project", "object_id": 2}, http.StatusBadRequest, 40036},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, models.DiscussionsPath, tt.auth, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w, nil).Code)
		})
	}

	var n int64
	require.NoError(t, e.db.Model(&models.Discussion{}).Count(&n).Error)
	assert.Equal(t, int64(2), n)
}

func TestCreateDiscussionWithImage(t *testing.T) {
	e := newEnv(t, true)
	e.store.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, storage.DiscussionImageDir+"/") && strings.HasSuffix(key, "/cover.png")
	}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil).Once()

	w := e.upload(t, models.DiscussionsPath, e.token(t, e.admin), map[string]string{"name": "Gallery"}, "image", "cover.png", []byte("png"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var d models.Discussion
	require.NoError(t, e.db.Where("slug = ?", "gallery").First(&d).Error)
	assert.True(t, strings.HasPrefix(d.Image, storage.DiscussionImageDir+"/"))

	e.store.On("PresignGet", mock.Anything, d.Image, mock.Anything).Return("https://files.example.com/cover", nil).Once()
	w = e.do(t, http.MethodGet, d.URL()+"/image", "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://files.example.com/cover", w.Header().Get("Location"))
}

func TestCreateDiscussionDiscardsImageOnConflict(t *testing.T) {
	e := newEnv(t, true)
	dbtest.SeedDiscussion(t, e.db, e.admin, "Gallery", "", 0)

	var key string
	e.store.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { key = args.String(1) }).
		Return(storage.ObjectInfo{}, nil).Once()
	e.store.On("Delete", mock.Anything, mock.MatchedBy(func(k string) bool { return k == key })).Return(nil).Once()

	w := e.upload(t, models.DiscussionsPath, e.token(t, e.admin), map[string]string{"name": "Gallery", "slug": "gallery"}, "image", "cover.png", []byte("png"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateDiscussion(t *testing.T) {
	e := newEnv(t, false)
	admin := e.token(t, e.admin)
	d := dbtest.SeedDiscussion(t, e.db, e.admin, "General", "project", 1)
	other := dbtest.SeedDiscussion(t, e.db, e.admin, "Other", "", 0)
	stale := time.Now().Add(-24 * time.Hour)
	require.NoError(t, e.db.Model(&d).UpdateColumn("updated_at", stale).Error)

	w := e.do(t, http.MethodPatch, d.URL(), admin, gin.H{"name": "Lobby", "slug": "lobby", "content_type": ""})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got models.Discussion
	require.NoError(t, e.db.First(&got, d.ID).Error)
	assert.True(t, got.UpdatedAt.After(stale.Add(time.Hour)), "updated_at moves on edit")
	assert.Equal(t, "Lobby", got.Name)
	assert.Equal(t, "lobby", got.Slug)
	assert.False(t, got.HasRelatedObject())
	assert.Zero(t, got.ObjectID)

	w = e.do(t, http.MethodPatch, got.URL(), admin, gin.H{"slug": other.Slug})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPatch, got.URL(), admin, gin.H{"content_type": "project", "object_id": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPatch, got.URL(), admin, gin.H{"content_type": "project", "object_id": 1})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, e.db.First(&got, d.ID).Error)
	assert.True(t, got.HasRelatedObject())

	w = e.do(t, http.MethodPatch, models.DiscussionsPath+"/missing", admin, gin.H{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReorderDiscussions(t *testing.T) {
	e := newEnv(t, false)
	admin := e.token(t, e.admin)
	a := dbtest.SeedDiscussion(t, e.db, e.admin, "A", "", 0)
	b := dbtest.SeedDiscussion(t, e.db, e.admin, "B", "", 0)
	c := dbtest.SeedDiscussion(t, e.db, e.admin, "C", "", 0)

	w := e.do(t, http.MethodPut, models.DiscussionsPath+"/order", admin, gin.H{"slugs": []string{c.Slug, a.Slug}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ordered []models.Discussion
	require.NoError(t, e.db.Scopes(models.Ordered).Find(&ordered).Error)
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{c.Slug, a.Slug, b.Slug}, []string{ordered[0].Slug, ordered[1].Slug, ordered[2].Slug})
	assert.Equal(t, []int{1, 2, 3}, []int{ordered[0].SortOrder, ordered[1].SortOrder, ordered[2].SortOrder})

	for _, slugs := range [][]string{{"missing"}, {a.Slug, a.Slug}} {
		w = e.do(t, http.MethodPut, models.DiscussionsPath+"/order", admin, gin.H{"slugs": slugs})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 40033, decode(t, w, nil).Code)
	}
	w = e.do(t, http.MethodPut, models.DiscussionsPath+"/order", admin, gin.H{"slugs": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.NoError(t, e.db.Scopes(models.Ordered).Find(&ordered).Error)
	assert.Equal(t, c.Slug, ordered[0].Slug, "failed reorders leave the order untouched")
}
