package authz

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/flowctl/console/internal/domain/permission"
)

// DefaultModel is an RBAC model with namespaces as domains. Policies may use
// "*" for the namespace, the object or the action.
const DefaultModel = `
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub, r.dom) && (p.dom == "*" || r.dom == p.dom) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// CasbinConfig configures the local enforcer.
type CasbinConfig struct {
	// ModelPath is an optional model file; DefaultModel is used when empty.
	ModelPath string
	// PolicyPath is an optional CSV policy file.
	PolicyPath string
}

// CasbinFactory evaluates permissions with a local casbin enforcer.
type CasbinFactory struct {
	enforcer *casbin.SyncedEnforcer
}

// NewCasbinFactory loads the model and policy and builds the enforcer.
func NewCasbinFactory(cfg CasbinConfig) (*CasbinFactory, error) {
	var (
		m   model.Model
		err error
	)
	if cfg.ModelPath != "" {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(DefaultModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	return &CasbinFactory{enforcer: enforcer}, nil
}

// AddPolicy grants subject the action on resourceType in namespaceID.
func (f *CasbinFactory) AddPolicy(subject, namespaceID, resourceType string, action permission.Action) error {
	_, err := f.enforcer.AddPolicy(subject, namespaceID, resourceType, string(action))
	return err
}

// AddGrouping makes subject inherit group's policies in namespaceID.
func (f *CasbinFactory) AddGrouping(subject, group, namespaceID string) error {
	_, err := f.enforcer.AddGroupingPolicy(subject, group, namespaceID)
	return err
}

// NewAuthorizer implements permission.AuthorizerFactory.
func (f *CasbinFactory) NewAuthorizer(context.Context) (permission.Authorizer, error) {
	return &casbinAuthorizer{enforcer: f.enforcer}, nil
}

type casbinAuthorizer struct {
	enforcer *casbin.SyncedEnforcer
	subject  string
}

func (a *casbinAuthorizer) SetUser(_ context.Context, subject string) error {
	a.subject = subject
	return nil
}

func (a *casbinAuthorizer) Can(
	_ context.Context,
	action permission.Action,
	resourceType, namespaceID string,
) (bool, error) {
	if a.subject == "" {
		return false, ErrNoSubject
	}
	return a.enforcer.Enforce(a.subject, namespaceID, resourceType, string(action))
}
