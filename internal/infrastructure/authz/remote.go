// Package authz provides Authorizer implementations backed by the flowctl
// permission endpoint, a local casbin enforcer, and a decision cache.
package authz

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/flowctl/console/internal/domain/permission"
)

// Wildcard matches any resource type or namespace in a profile entry.
const Wildcard = "*"

// ErrNoSubject is returned by Can before SetUser succeeded.
var ErrNoSubject = errors.New("authz: no subject selected")

// ProfileFetcher loads the permission profile of a subject.
// flowapi.PermissionsService satisfies it.
type ProfileFetcher interface {
	Profile(ctx context.Context, subject string) (map[string][]string, error)
}

// RemoteFactory creates authorizers that evaluate subject profiles served by
// the flowctl API. SetUser downloads the profile, Can evaluates it locally.
type RemoteFactory struct {
	fetcher ProfileFetcher
}

// NewRemoteFactory creates a RemoteFactory.
func NewRemoteFactory(fetcher ProfileFetcher) *RemoteFactory {
	return &RemoteFactory{fetcher: fetcher}
}

// NewAuthorizer implements permission.AuthorizerFactory.
func (f *RemoteFactory) NewAuthorizer(context.Context) (permission.Authorizer, error) {
	return &remoteAuthorizer{fetcher: f.fetcher}, nil
}

type remoteAuthorizer struct {
	fetcher ProfileFetcher

	mu      sync.RWMutex
	subject string
	profile map[permission.Action][]grant
}

type grant struct {
	resource  string
	namespace string
}

func (a *remoteAuthorizer) SetUser(ctx context.Context, subject string) error {
	raw, err := a.fetcher.Profile(ctx, subject)
	if err != nil {
		return err
	}

	profile := make(map[permission.Action][]grant, len(raw))
	for action, entries := range raw {
		grants := make([]grant, 0, len(entries))
		for _, e := range entries {
			grants = append(grants, parseGrant(e))
		}
		profile[permission.Action(strings.ToLower(action))] = grants
	}

	a.mu.Lock()
	a.subject = subject
	a.profile = profile
	a.mu.Unlock()
	return nil
}

func (a *remoteAuthorizer) Can(
	_ context.Context,
	action permission.Action,
	resourceType, namespaceID string,
) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.subject == "" {
		return false, ErrNoSubject
	}

	for _, key := range []permission.Action{action, Wildcard} {
		for _, g := range a.profile[key] {
			if g.matches(resourceType, namespaceID) {
				return true, nil
			}
		}
	}
	return false, nil
}

// parseGrant splits "resource:namespace". An entry without a namespace applies everywhere.
func parseGrant(entry string) grant {
	resource, namespace, found := strings.Cut(strings.TrimSpace(entry), ":")
	if !found {
		namespace = Wildcard
	}
	return grant{resource: resource, namespace: namespace}
}

func (g grant) matches(resourceType, namespaceID string) bool {
	return (g.resource == Wildcard || g.resource == resourceType) &&
		(g.namespace == Wildcard || g.namespace == namespaceID)
}
