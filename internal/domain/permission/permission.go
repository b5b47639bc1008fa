// Package permission defines the vocabulary of namespace-scoped permission checks.
package permission

import (
	"context"
	"fmt"
	"strings"
)

// Action is an operation a subject may perform on a resource type.
type Action string

// Supported actions.
const (
	ActionCreate Action = "create"
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Resource types checked by the console.
const (
	ResourceFlow      = "flow"
	ResourceExecution = "execution"
	ResourceApproval  = "approval"
	ResourceMember    = "member"
	ResourceNamespace = "namespace"
)

// Subject prefixes understood by the authorization backend.
const (
	userSubjectPrefix  = "user:"
	groupSubjectPrefix = "group:"
)

// AllActions returns the default action set of a check.
func AllActions() []Action {
	return []Action{ActionCreate, ActionView, ActionUpdate, ActionDelete}
}

// ParseAction validates a raw action string.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionCreate, ActionView, ActionUpdate, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// ParseActions parses a comma separated action list. An empty string yields nil.
func ParseActions(s string) ([]Action, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	actions := make([]Action, 0, len(parts))
	for _, p := range parts {
		a, err := ParseAction(p)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// ResourcePermissions is the result of a permission check for one resource type.
type ResourcePermissions struct {
	CanCreate bool `json:"canCreate"`
	CanRead   bool `json:"canRead"`
	CanUpdate bool `json:"canUpdate"`
	CanDelete bool `json:"canDelete"`
}

// Grant sets the flag that corresponds to action.
func (p *ResourcePermissions) Grant(action Action) {
	switch action {
	case ActionCreate:
		p.CanCreate = true
	case ActionView:
		p.CanRead = true
	case ActionUpdate:
		p.CanUpdate = true
	case ActionDelete:
		p.CanDelete = true
	}
}

// Allows reports whether the flag for action is set.
func (p ResourcePermissions) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate
	case ActionView:
		return p.CanRead
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	default:
		return false
	}
}

// User is the identity a check is performed for.
type User struct {
	ID     string   `json:"id"`
	Groups []string `json:"groups,omitempty"`
}

// Subject returns the authorization subject of the user itself.
func (u User) Subject() string {
	return UserSubject(u.ID)
}

// Subjects returns the user subject followed by one subject per group.
func (u User) Subjects() []string {
	subjects := make([]string, 0, len(u.Groups)+1)
	subjects = append(subjects, u.Subject())
	for _, g := range u.Groups {
		subjects = append(subjects, GroupSubject(g))
	}
	return subjects
}

// UserSubject formats a user subject.
func UserSubject(id string) string {
	return userSubjectPrefix + id
}

// GroupSubject formats a group subject.
func GroupSubject(id string) string {
	return groupSubjectPrefix + id
}

// Authorizer answers whether the current subject may perform an action on a
// resource type inside a namespace. Implementations keep the selected subject
// as state, so an Authorizer must not be shared between concurrent checks.
type Authorizer interface {
	SetUser(ctx context.Context, subject string) error
	Can(ctx context.Context, action Action, resourceType, namespaceID string) (bool, error)
}

// AuthorizerFactory creates a fresh Authorizer for a single check.
type AuthorizerFactory interface {
	NewAuthorizer(ctx context.Context) (Authorizer, error)
}

// AuthorizerFactoryFunc adapts a function to AuthorizerFactory.
type AuthorizerFactoryFunc func(ctx context.Context) (Authorizer, error)

// NewAuthorizer calls f.
func (f AuthorizerFactoryFunc) NewAuthorizer(ctx context.Context) (Authorizer, error) {
	return f(ctx)
}
