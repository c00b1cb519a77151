package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/discussion/models"
	"github.com/cppla/discussion/utils"
)

const excerptLength = 140

// Notifier sends notices about new posts and comments to the subscribers of
// the discussion's related object.
type Notifier struct {
	db       *gorm.DB
	registry *Registry
	sender   Sender
	metrics  *Metrics
	tracer   trace.Tracer
	sync     bool
	timeout  time.Duration
	wg       sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSync delivers inside PostCreated and CommentCreated instead of on a goroutine.
func WithSync(sync bool) Option {
	return func(n *Notifier) { n.sync = sync }
}

// WithTimeout bounds each background fan-out.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithMetrics records delivery counters.
func WithMetrics(m *Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

func NewNotifier(db *gorm.DB, registry *Registry, sender Sender, opts ...Option) *Notifier {
	n := &Notifier{
		db:       db,
		registry: registry,
		sender:   sender,
		tracer:   otel.Tracer("github.com/cppla/discussion/notifications"),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyPost notifies the post subscribers of the discussion's related object,
// excluding the author. It returns the number of notices delivered; a discussion
// without a resolvable related object delivers nothing and is not an error.
func (n *Notifier) NotifyPost(ctx context.Context, post *models.Post) (int, error) {
	ctx, span := n.tracer.Start(ctx, "notifications.NotifyPost",
		trace.WithAttributes(attribute.Int64("post.id", int64(post.ID))))
	defer span.End()

	var d models.Discussion
	if err := n.db.WithContext(ctx).First(&d, post.DiscussionID).Error; err != nil {
		return 0, n.fail(span, fmt.Errorf("load discussion %d: %w", post.DiscussionID, err))
	}
	related, ok, err := n.related(ctx, span, d)
	if err != nil || !ok {
		return 0, err
	}

	candidates := n.db.Model(&models.User{}).Where("id <> ?", post.UserID)
	subs, err := related.PostSubscriptions(ctx, post, candidates)
	if err != nil {
		return 0, n.fail(span, err)
	}

	author := n.author(ctx, post.UserID)
	notice := Notice{
		DiscussionID: d.ID,
		RelatedType:  models.RelatedPost,
		RelatedID:    post.ID,
		Context: map[string]any{
			"discussion": discussionContext(d),
			"post":       postContext(d, *post, author),
		},
		Subject: "New post in " + d.Name,
		Body:    fmt.Sprintf("%s wrote in %s:\n\n%s\n\n%s", author.FullName(), d.Name, utils.Excerpt(post.Body, excerptLength), post.URL(d.Slug)),
	}
	sent, err := n.deliver(ctx, subs, notice)
	span.SetAttributes(attribute.Int("notifications.sent", sent))
	if err != nil {
		return sent, n.fail(span, err)
	}
	return sent, nil
}

// NotifyComment notifies the thread participants (earlier commenters and the
// post author, minus the commenter) that the related object lets through.
func (n *Notifier) NotifyComment(ctx context.Context, comment *models.Comment) (int, error) {
	ctx, span := n.tracer.Start(ctx, "notifications.NotifyComment",
		trace.WithAttributes(attribute.Int64("comment.id", int64(comment.ID))))
	defer span.End()

	var post models.Post
	if err := n.db.WithContext(ctx).First(&post, comment.PostID).Error; err != nil {
		return 0, n.fail(span, fmt.Errorf("load post %d: %w", comment.PostID, err))
	}
	var d models.Discussion
	if err := n.db.WithContext(ctx).First(&d, post.DiscussionID).Error; err != nil {
		return 0, n.fail(span, fmt.Errorf("load discussion %d: %w", post.DiscussionID, err))
	}
	related, ok, err := n.related(ctx, span, d)
	if err != nil || !ok {
		return 0, err
	}

	participants := n.db.Model(&models.Comment{}).Select("user_id").Where("post_id = ?", post.ID)
	candidates := n.db.Model(&models.User{}).
		Where("(id IN (?) OR id = ?)", participants, post.UserID).
		Where("id <> ?", comment.UserID)
	subs, err := related.CommentSubscriptions(ctx, comment, candidates)
	if err != nil {
		return 0, n.fail(span, err)
	}

	author := n.author(ctx, comment.UserID)
	notice := Notice{
		DiscussionID: d.ID,
		RelatedType:  models.RelatedComment,
		RelatedID:    comment.ID,
		Context: map[string]any{
			"discussion": discussionContext(d),
			"post":       postContext(d, post, models.User{}),
			"comment": map[string]any{
				"id":      comment.ID,
				"author":  author.FullName(),
				"excerpt": utils.Excerpt(comment.Body, excerptLength),
			},
		},
		Subject: "New comment in " + d.Name,
		Body:    fmt.Sprintf("%s commented in %s:\n\n%s\n\n%s", author.FullName(), d.Name, utils.Excerpt(comment.Body, excerptLength), post.URL(d.Slug)),
	}
	sent, err := n.deliver(ctx, subs, notice)
	span.SetAttributes(attribute.Int("notifications.sent", sent))
	if err != nil {
		return sent, n.fail(span, err)
	}
	return sent, nil
}

// PostCreated runs NotifyPost and only logs the outcome.
func (n *Notifier) PostCreated(ctx context.Context, post models.Post) {
	n.dispatch(ctx, "post", post.ID, func(ctx context.Context) (int, error) {
		return n.NotifyPost(ctx, &post)
	})
}

// CommentCreated runs NotifyComment and only logs the outcome.
func (n *Notifier) CommentCreated(ctx context.Context, comment models.Comment) {
	n.dispatch(ctx, "comment", comment.ID, func(ctx context.Context) (int, error) {
		return n.NotifyComment(ctx, &comment)
	})
}

// Wait blocks until background deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for notifications: %w", ctx.Err())
	}
}

func (n *Notifier) dispatch(ctx context.Context, kind string, id uint, run func(context.Context) (int, error)) {
	if n.sync {
		sent, err := run(ctx)
		n.report(kind, id, sent, err)
		return
	}
	// Detach from the request so the fan-out outlives it, keeping trace context.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		sent, err := run(bg)
		n.report(kind, id, sent, err)
	}()
}

func (n *Notifier) report(kind string, id uint, sent int, err error) {
	fields := []zap.Field{zap.String("kind", kind), zap.Uint("id", id), zap.Int("sent", sent)}
	if err != nil {
		utils.Logger.Error("notification fan-out failed", append(fields, zap.Error(err))...)
		return
	}
	if sent > 0 {
		utils.Logger.Info("notifications sent", fields...)
	}
}

func (n *Notifier) related(ctx context.Context, span trace.Span, d models.Discussion) (RelatedObject, bool, error) {
	if !d.HasRelatedObject() {
		return nil, false, nil
	}
	span.SetAttributes(
		attribute.String("related.content_type", d.ContentType),
		attribute.Int64("related.object_id", int64(d.ObjectID)),
	)
	obj, err := n.registry.ResolveDiscussion(ctx, d)
	if errors.Is(err, ErrRelatedNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, n.fail(span, err)
	}
	return obj, true, nil
}

func (n *Notifier) deliver(ctx context.Context, subs []Subscription, notice Notice) (int, error) {
	var (
		sent int
		errs []error
	)
	for _, sub := range subs {
		users := uniqueUsers(sub.Users)
		if len(users) == 0 {
			continue
		}
		notice.Label = sub.Label
		err := n.sender.Send(ctx, notice, users)
		n.metrics.observe(sub.Label, len(users), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", sub.Label, err))
		}
		if delivered(err) {
			sent += len(users)
		}
	}
	return sent, errors.Join(errs...)
}

func (n *Notifier) author(ctx context.Context, id uint) models.User {
	var u models.User
	if err := n.db.WithContext(ctx).First(&u, id).Error; err != nil {
		u.Username = "user " + strconv.FormatUint(uint64(id), 10)
	}
	return u
}

func (n *Notifier) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func uniqueUsers(users []models.User) []models.User {
	ids := make([]uint, 0, len(users))
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
		if _, ok := byID[u.ID]; !ok {
			byID[u.ID] = u
		}
	}
	ids = utils.UniqueUint(ids)
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func discussionContext(d models.Discussion) map[string]any {
	return map[string]any{
		"id":   d.ID,
		"name": d.Name,
		"slug": d.Slug,
		"url":  d.URL(),
	}
}

func postContext(d models.Discussion, p models.Post, author models.User) map[string]any {
	ctx := map[string]any{
		"id":      p.ID,
		"url":     p.URL(d.Slug),
		"excerpt": utils.Excerpt(p.Body, excerptLength),
	}
	if author.ID != 0 {
		ctx["author"] = author.FullName()
	}
	return ctx
}
