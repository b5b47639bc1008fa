package flowapi

import (
	"context"
	"net/url"

	"github.com/flowctl/console/internal/domain/flowctl"
)

// NamespacesService exposes /namespaces.
type NamespacesService struct {
	client  *Client
	Members *MembersService
}

// List returns the namespaces visible to the caller.
func (s *NamespacesService) List(ctx context.Context) (*flowctl.NamespaceList, error) {
	var out flowctl.NamespaceList
	if err := s.client.get(ctx, "namespaces", "/namespaces", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MembersService exposes /{namespace}/members.
type MembersService struct {
	client *Client
}

// List returns the members of a namespace.
func (s *MembersService) List(ctx context.Context, namespace string) (*flowctl.MemberList, error) {
	var out flowctl.MemberList
	if err := s.client.get(ctx, "members", nsPath(namespace, "members"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FlowsService exposes /{namespace}/flows.
type FlowsService struct {
	client *Client
}

// List returns a page of flows.
func (s *FlowsService) List(ctx context.Context, namespace string, params flowctl.ListParams) (*flowctl.FlowList, error) {
	var out flowctl.FlowList
	if err := s.client.get(ctx, "flows", nsPath(namespace, "flows"), listQuery(params), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInputs returns the trigger form inputs of a flow.
func (s *FlowsService) GetInputs(ctx context.Context, namespace, flowID string) (*flowctl.FlowInputs, error) {
	var out flowctl.FlowInputs
	path := nsPath(namespace, "flows", url.PathEscape(flowID), "inputs")
	if err := s.client.get(ctx, "flow_inputs", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMeta returns the metadata and actions of a flow.
func (s *FlowsService) GetMeta(ctx context.Context, namespace, flowID string) (*flowctl.FlowMeta, error) {
	var out flowctl.FlowMeta
	path := nsPath(namespace, "flows", url.PathEscape(flowID), "meta")
	if err := s.client.get(ctx, "flow_meta", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecutionsService exposes execution history.
type ExecutionsService struct {
	client *Client
}

// List returns a page of executions.
func (s *ExecutionsService) List(
	ctx context.Context,
	namespace string,
	params flowctl.ListParams,
) (*flowctl.ExecutionList, error) {
	var out flowctl.ExecutionList
	if err := s.client.get(ctx, "executions", nsPath(namespace, "flows", "logs"), listQuery(params), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByID returns the summary of a single execution.
func (s *ExecutionsService) GetByID(ctx context.Context, namespace, execID string) (*flowctl.Execution, error) {
	var out flowctl.Execution
	path := nsPath(namespace, "flows", "executions", url.PathEscape(execID))
	if err := s.client.get(ctx, "execution", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApprovalsService exposes /{namespace}/approvals.
type ApprovalsService struct {
	client *Client
}

// List returns a page of approvals, optionally filtered by status.
func (s *ApprovalsService) List(
	ctx context.Context,
	namespace string,
	params flowctl.ListParams,
) (*flowctl.ApprovalList, error) {
	var out flowctl.ApprovalList
	if err := s.client.get(ctx, "approvals", nsPath(namespace, "approvals"), listQuery(params), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PermissionsService exposes the permission profile endpoint.
type PermissionsService struct {
	client *Client
}

// Profile returns the permission profile of subject: action -> "resource:namespace" entries.
func (s *PermissionsService) Profile(ctx context.Context, subject string) (map[string][]string, error) {
	out := map[string][]string{}
	q := url.Values{}
	q.Set("subject", subject)
	if err := s.client.get(ctx, "permissions", "/permissions", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}
