package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/flowctl/console/internal/domain/permission"
)

var (
	decisionAllow = []byte{1}
	decisionDeny  = []byte{0}
)

// CachedFactory wraps another factory and memoises Can decisions per
// subject, action, resource type and namespace for the cache lifetime.
type CachedFactory struct {
	next  permission.AuthorizerFactory
	cache *bigcache.BigCache
}

// NewCachedFactory creates a decision cache with the given entry lifetime.
func NewCachedFactory(ctx context.Context, next permission.AuthorizerFactory, ttl time.Duration) (*CachedFactory, error) {
	config := bigcache.DefaultConfig(ttl)
	config.Verbose = false
	config.CleanWindow = ttl
	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}
	return &CachedFactory{next: next, cache: cache}, nil
}

// NewAuthorizer implements permission.AuthorizerFactory. The wrapped
// authorizer is only created and queried on cache misses.
func (f *CachedFactory) NewAuthorizer(context.Context) (permission.Authorizer, error) {
	return &cachedAuthorizer{factory: f}, nil
}

// Len returns the number of cached decisions.
func (f *CachedFactory) Len() int {
	return f.cache.Len()
}

// Reset drops every cached decision.
func (f *CachedFactory) Reset() error {
	return f.cache.Reset()
}

// Close stops the cache cleanup goroutine.
func (f *CachedFactory) Close() error {
	return f.cache.Close()
}

type cachedAuthorizer struct {
	factory *CachedFactory
	subject string

	// inner is created lazily with the subject applied on the first miss.
	mu           sync.Mutex
	inner        permission.Authorizer
	innerSubject string
}

func (a *cachedAuthorizer) SetUser(_ context.Context, subject string) error {
	a.subject = subject
	return nil
}

func (a *cachedAuthorizer) Can(
	ctx context.Context,
	action permission.Action,
	resourceType, namespaceID string,
) (bool, error) {
	if a.subject == "" {
		return false, ErrNoSubject
	}

	key := strings.Join([]string{a.subject, string(action), resourceType, namespaceID}, "|")
	if v, err := a.factory.cache.Get(key); err == nil {
		return len(v) == 1 && v[0] == 1, nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, fmt.Errorf("decision cache: %w", err)
	}

	inner, err := a.innerFor(ctx)
	if err != nil {
		return false, err
	}
	ok, err := inner.Can(ctx, action, resourceType, namespaceID)
	if err != nil {
		return false, err
	}

	value := decisionDeny
	if ok {
		value = decisionAllow
	}
	// A failed write only costs a future miss.
	_ = a.factory.cache.Set(key, value)
	return ok, nil
}

func (a *cachedAuthorizer) innerFor(ctx context.Context) (permission.Authorizer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.inner == nil {
		inner, err := a.factory.next.NewAuthorizer(ctx)
		if err != nil {
			return nil, err
		}
		a.inner = inner
	}
	if a.innerSubject != a.subject {
		if err := a.inner.SetUser(ctx, a.subject); err != nil {
			return nil, err
		}
		a.innerSubject = a.subject
	}
	return a.inner, nil
}
