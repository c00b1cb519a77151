// Package dbtest opens throwaway sqlite databases for gorm-backed tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/discussion/models"
)

// NewDB returns an in-memory database with every model migrated. Each call
// gets its own database, closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// SeedUser inserts a user with the given username.
func SeedUser(t testing.TB, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", FirstName: username, LastName: "Tester"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// SeedDiscussion inserts a discussion owned by owner, optionally attached to a related object.
func SeedDiscussion(t testing.TB, db *gorm.DB, owner models.User, name, contentType string, objectID uint) models.Discussion {
	t.Helper()
	d := models.Discussion{UserID: owner.ID, Name: name, ContentType: contentType, ObjectID: objectID}
	require.NoError(t, db.Create(&d).Error)
	return d
}

// SeedPost inserts a post by author into d, spaced one second after the previous one.
func SeedPost(t testing.TB, db *gorm.DB, d models.Discussion, author models.User, body string) models.Post {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Post{}).Count(&n).Error)
	p := models.Post{DiscussionID: d.ID, UserID: author.ID, Body: body, Time: time.Now().Add(time.Duration(n) * time.Second)}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// SeedComment inserts a comment by author on p.
func SeedComment(t testing.TB, db *gorm.DB, p models.Post, author models.User, body string) models.Comment {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&n).Error)
	c := models.Comment{PostID: p.ID, UserID: author.ID, Body: body, Time: time.Now().Add(time.Duration(n) * time.Second)}
	require.NoError(t, db.Create(&c).Error)
	return c
}
