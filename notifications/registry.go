// Package notifications fans new posts and comments out to the subscribers of
// the object a discussion is attached to.
//
// A discussion may point at any registered related object (a project, a group,
// ...) through its content type and object id. The related object decides who
// is subscribed; the Notifier gathers the candidates, asks the related object,
// and hands the result to a Sender.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/cppla/discussion/models"
)

// ErrRelatedNotFound is returned when a discussion's related object does not
// exist or its content type is not registered.
var ErrRelatedNotFound = errors.New("related object not found")

// Subscription is one group of users to notify under a label.
type Subscription struct {
	Label string
	Users []models.User
}

// RelatedObject is the object a discussion is attached to. Both methods
// narrow candidates (a query over users) down to the interested subscribers.
type RelatedObject interface {
	PostSubscriptions(ctx context.Context, post *models.Post, candidates *gorm.DB) ([]Subscription, error)
	CommentSubscriptions(ctx context.Context, comment *models.Comment, candidates *gorm.DB) ([]Subscription, error)
}

// Resolver loads related objects of one content type.
type Resolver interface {
	Resolve(ctx context.Context, objectID uint) (RelatedObject, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, objectID uint) (RelatedObject, error)

func (f ResolverFunc) Resolve(ctx context.Context, objectID uint) (RelatedObject, error) {
	return f(ctx, objectID)
}

// Registry maps content type names to resolvers. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// Register installs r for contentType, replacing any previous resolver.
func (r *Registry) Register(contentType string, res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[contentType] = res
}

// Has reports whether contentType is registered.
func (r *Registry) Has(contentType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolvers[contentType]
	return ok
}

// ContentTypes lists the registered content types in sorted order.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.resolvers))
	for t := range r.resolvers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Resolve loads the related object identified by contentType and objectID.
func (r *Registry) Resolve(ctx context.Context, contentType string, objectID uint) (RelatedObject, error) {
	r.mu.RLock()
	res, ok := r.resolvers[contentType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("content type %q: %w", contentType, ErrRelatedNotFound)
	}
	obj, err := res.Resolve(ctx, objectID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%s %d: %w", contentType, objectID, ErrRelatedNotFound)
	}
	return obj, nil
}

// ResolveDiscussion resolves the related object of d.
func (r *Registry) ResolveDiscussion(ctx context.Context, d models.Discussion) (RelatedObject, error) {
	if !d.HasRelatedObject() {
		return nil, ErrRelatedNotFound
	}
	return r.Resolve(ctx, d.ContentType, d.ObjectID)
}
