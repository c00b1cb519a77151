package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/discussion/dbtest"
	"github.com/cppla/discussion/models"
)

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", models.User{Username: "ada", FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Ada", models.User{Username: "ada", FirstName: "Ada"}.FullName())
	assert.Equal(t, "ada", models.User{Username: "ada"}.FullName())
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"General Chat", "general-chat"},
		{"  Q&A: Release 2.0!  ", "q-a-release-2-0"},
		{"snake_case_name", "snake_case_name"},
		{"Ünïcode only ñ", "n-code-only"},
		{"---", ""},
		{strings.Repeat("ab ", 40), strings.TrimRight(strings.Repeat("ab-", 17), "-")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := models.Slugify(tt.in)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), models.SlugMaxLength)
		})
	}
}

func TestValidSlug(t *testing.T) {
	assert.True(t, models.ValidSlug("general-chat_2"))
	assert.False(t, models.ValidSlug(""))
	assert.False(t, models.ValidSlug("has space"))
	assert.False(t, models.ValidSlug("a/b"))
	assert.False(t, models.ValidSlug(strings.Repeat("a", 51)))
}

func TestDiscussionCreateAppendsAndDerivesSlug(t *testing.T) {
	db := dbtest.NewDB(t)
	owner := dbtest.SeedUser(t, db, "owner")

	first := dbtest.SeedDiscussion(t, db, owner, "General Chat", "", 0)
	second := dbtest.SeedDiscussion(t, db, owner, "General Chat", "", 0)
	third := models.Discussion{UserID: owner.ID, Name: "Pinned", Slug: "pinned", SortOrder: 10}
	require.NoError(t, db.Create(&third).Error)
	fourth := dbtest.SeedDiscussion(t, db, owner, "Later", "", 0)

	assert.Equal(t, 1, first.SortOrder)
	assert.Equal(t, 2, second.SortOrder)
	assert.Equal(t, 10, third.SortOrder)
	assert.Equal(t, 11, fourth.SortOrder)

	assert.Equal(t, "general-chat", first.Slug)
	assert.Equal(t, "general-chat-2", second.Slug)
	assert.Equal(t, "pinned", third.Slug)

	var ordered []models.Discussion
	require.NoError(t, db.Scopes(models.Ordered).Find(&ordered).Error)
	require.Len(t, ordered, 4)
	assert.Equal(t, []string{"general-chat", "general-chat-2", "pinned", "later"},
		[]string{ordered[0].Slug, ordered[1].Slug, ordered[2].Slug, ordered[3].Slug})
}

func TestDiscussionRejectsInvalidSlug(t *testing.T) {
	db := dbtest.NewDB(t)
	owner := dbtest.SeedUser(t, db, "owner")

	err := db.Create(&models.Discussion{UserID: owner.ID, Name: "x", Slug: "not valid"}).Error
	assert.ErrorIs(t, err, models.ErrInvalidSlug)
}

func TestDiscussionDuplicateSlugViolatesUniqueIndex(t *testing.T) {
	db := dbtest.NewDB(t)
	owner := dbtest.SeedUser(t, db, "owner")

	require.NoError(t, db.Create(&models.Discussion{UserID: owner.ID, Name: "a", Slug: "same"}).Error)
	assert.Error(t, db.Create(&models.Discussion{UserID: owner.ID, Name: "b", Slug: "same"}).Error)
}

func TestDiscussionHelpers(t *testing.T) {
	d := models.Discussion{Name: "Team", Slug: "team"}
	assert.Equal(t, "Team", d.String())
	assert.Equal(t, "/api/v1/discussions/team", d.URL())
	assert.False(t, d.HasRelatedObject())

	d.ContentType = "project"
	assert.False(t, d.HasRelatedObject())
	d.ObjectID = 7
	assert.True(t, d.HasRelatedObject())
}

func TestPostDerivedFields(t *testing.T) {
	db := dbtest.NewDB(t)
	owner := dbtest.SeedUser(t, db, "owner")
	d := dbtest.SeedDiscussion(t, db, owner, "General", "", 0)

	p := models.Post{DiscussionID: d.ID, UserID: owner.ID, Body: "hi", Attachment: "uploads/posts/abc/notes.txt"}
	require.NoError(t, db.Create(&p).Error)
	assert.Equal(t, "post-1", p.Prefix)
	assert.Equal(t, "notes.txt", p.AttachmentFilename)
	assert.False(t, p.Time.IsZero())

	var loaded models.Post
	require.NoError(t, db.Preload("User").First(&loaded, p.ID).Error)
	assert.Equal(t, "post-1", loaded.Prefix)
	assert.Equal(t, "notes.txt", loaded.AttachmentFilename)
	assert.Equal(t, "/api/v1/discussions/general/posts/1", loaded.URL(d.Slug))
}

func TestPostAndCommentString(t *testing.T) {
	at := time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)
	u := models.User{Username: "ada", FirstName: "Ada", LastName: "Lovelace"}

	assert.Equal(t, "Post by Ada Lovelace at 14:07 on Mar 5, 2024", models.Post{User: u, Time: at}.String())
	assert.Equal(t, "Comment by Ada Lovelace at 14:07 on Mar 5, 2024", models.Comment{User: u, Time: at}.String())
}

func TestOrdering(t *testing.T) {
	db := dbtest.NewDB(t)
	owner := dbtest.SeedUser(t, db, "owner")
	d := dbtest.SeedDiscussion(t, db, owner, "General", "", 0)

	p1 := dbtest.SeedPost(t, db, d, owner, "first")
	p2 := dbtest.SeedPost(t, db, d, owner, "second")
	c1 := dbtest.SeedComment(t, db, p1, owner, "one")
	c2 := dbtest.SeedComment(t, db, p1, owner, "two")

	var posts []models.Post
	require.NoError(t, db.Scopes(models.NewestFirst).Where("discussion_id = ?", d.ID).Find(&posts).Error)
	require.Len(t, posts, 2)
	assert.Equal(t, p2.ID, posts[0].ID)
	assert.Equal(t, p1.ID, posts[1].ID)

	var comments []models.Comment
	require.NoError(t, db.Scopes(models.OldestFirst).Where("post_id = ?", p1.ID).Find(&comments).Error)
	require.Len(t, comments, 2)
	assert.Equal(t, c1.ID, comments[0].ID)
	assert.Equal(t, c2.ID, comments[1].ID)
	assert.Equal(t, "", comments[0].AttachmentFilename)
}

func TestDeletingDiscussionCascades(t *testing.T) {
	db := dbtest.NewDB(t)
	owner := dbtest.SeedUser(t, db, "owner")
	d := dbtest.SeedDiscussion(t, db, owner, "General", "", 0)
	p := dbtest.SeedPost(t, db, d, owner, "first")
	dbtest.SeedComment(t, db, p, owner, "one")

	require.NoError(t, db.Delete(&models.Discussion{}, d.ID).Error)

	var posts, comments int64
	require.NoError(t, db.Model(&models.Post{}).Count(&posts).Error)
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	assert.Zero(t, posts)
	assert.Zero(t, comments)
}
