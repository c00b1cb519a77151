package utils

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cppla/discussion/config"
	"github.com/cppla/discussion/dbtest"
	"github.com/cppla/discussion/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, `<b>hi</b> `, Sanitize(`<b>hi</b> <script>alert(1)</script>`))
	assert.Equal(t, "General", SanitizeText(" <i>General</i> "))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "hello world", Excerpt("<p>hello\n\n  world</p>", 20))
	assert.Equal(t, "héllo...", Excerpt("héllo wörld", 5))
}

func TestUniqueUint(t *testing.T) {
	assert.Equal(t, []uint{3, 1, 2}, UniqueUint([]uint{3, 1, 3, 2, 1}))
	assert.Empty(t, UniqueUint(nil))
}

func TestBuildMessage(t *testing.T) {
	msg := string(BuildMessage("", "noreply@example.com", "ada@example.com", "Nouveau message", "line1\nline2"))

	assert.Contains(t, msg, "From: \"Discussions\" <noreply@example.com>\r\n")
	assert.Contains(t, msg, "To: ada@example.com\r\n")
	assert.Contains(t, msg, "Subject: Nouveau message\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nline1\r\nline2"))

	encoded := string(BuildMessage("Forum", "a@example.com", "b@example.com", "Réponse", "x"))
	assert.Contains(t, encoded, "Subject: =?UTF-8?b?")
}

func TestSendMailRequiresConfiguration(t *testing.T) {
	config.Set(config.AppConfig{App: config.AppSection{JWTSecret: "secret"}})
	assert.ErrorIs(t, SendMail("ada@example.com", "s", "b"), ErrSMTPNotConfigured)
}

func TestTokenRoundTrip(t *testing.T) {
	config.Set(config.AppConfig{App: config.AppSection{JWTSecret: "secret"}})

	token, err := GenerateToken(42, "ada", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ada", claims.Username)

	expired, err := GenerateToken(42, "ada", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	config.Set(config.AppConfig{App: config.AppSection{JWTSecret: "rotated"}})
	_, err = ParseToken(token)
	assert.Error(t, err)
}

func TestCacheDisabledIsNoop(t *testing.T) {
	SetRedis(nil)
	ctx := context.Background()

	CacheSetJSON(ctx, CacheListPrefix+"x", map[string]int{"a": 1}, time.Minute)
	_, ok := CacheGetBytes(ctx, CacheListPrefix+"x")
	assert.False(t, ok)
	InvalidateByPrefix(ctx, CacheDiscussionPrefix)
	assert.Nil(t, InitRedis(config.RedisSection{}))
}

func TestPruneReadNotifications(t *testing.T) {
	db := dbtest.NewDB(t)
	u := dbtest.SeedUser(t, db, "ada")

	old := time.Now().Add(-100 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	rows := []models.Notification{
		{UserID: u.ID, Label: models.LabelDiscussionPost, RelatedType: models.RelatedPost, RelatedID: 1, ReadAt: &old},
		{UserID: u.ID, Label: models.LabelDiscussionPost, RelatedType: models.RelatedPost, RelatedID: 2, ReadAt: &recent},
		{UserID: u.ID, Label: models.LabelDiscussionPost, RelatedType: models.RelatedPost, RelatedID: 3},
	}
	require.NoError(t, db.Create(&rows).Error)

	n, err := PruneReadNotifications(context.Background(), db, time.Now().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left []models.Notification
	require.NoError(t, db.Order("related_id").Find(&left).Error)
	require.Len(t, left, 2)
	assert.Equal(t, uint(2), left[0].RelatedID)
	assert.Equal(t, uint(3), left[1].RelatedID)
}

func TestGinzapLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(RequestIDKey, "rid-1"); c.Next() })
	r.Use(Ginzap(zap.New(core), time.RFC3339, true))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, p := range []string{"/ok", "/missing", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "rid-1", entries[0].ContextMap()[RequestIDKey])
}

func TestRecoveryWithZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(RecoveryWithZap(zap.New(core), false))
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":50000,"message":"internal server error"}`, w.Body.String())
	require.Equal(t, 1, logs.Len())
	dump := logs.All()[0].ContextMap()["request"].(string)
	assert.NotContains(t, dump, "secret-token")
}

func TestServerStopRunsHooksAfterDrain(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var order []string
	srv := NewServer(ln.Addr().String(), http.NotFoundHandler(), time.Second,
		func(context.Context) error { order = append(order, "first"); return nil },
		func(context.Context) error { order = append(order, "second"); return nil },
	)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	srv.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, []string{"first", "second"}, order)
}
