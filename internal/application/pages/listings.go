package pages

import (
	"context"

	"github.com/flowctl/console/internal/domain/flowctl"
	"github.com/flowctl/console/internal/domain/permission"
)

// HistoryData is the execution history page.
type HistoryData struct {
	Executions  []flowctl.Execution `json:"executions"`
	TotalCount  int                 `json:"totalCount"`
	PageCount   int                 `json:"pageCount"`
	CurrentPage int                 `json:"currentPage"`
	SearchQuery string              `json:"searchQuery"`
	Namespace   string              `json:"namespace"`
}

// History loads one page of executions filtered by req.Search.
func (l *Loader) History(ctx context.Context, req Request) (*HistoryData, error) {
	return load(ctx, l, "history", req.Namespace, func(ctx context.Context) (*HistoryData, error) {
		page := req.currentPage()
		list, err := l.api.Executions.List(ctx, req.Namespace, flowctl.ListParams{
			Page:         page,
			CountPerPage: l.pageSize,
			Filter:       req.Search,
		})
		if err != nil {
			return nil, l.upstreamFailure(ctx, "Failed to load execution history", req.Namespace, err)
		}

		data := &HistoryData{
			Executions:  nonNil(list.Executions),
			TotalCount:  list.TotalCount,
			PageCount:   pageCountOrOne(list.PageCount),
			CurrentPage: page,
			SearchQuery: req.Search,
			Namespace:   req.Namespace,
		}
		return data, nil
	})
}

// ApprovalsData is the approvals page.
type ApprovalsData struct {
	Approvals    []flowctl.Approval `json:"approvals"`
	TotalCount   int                `json:"totalCount"`
	PageCount    int                `json:"pageCount"`
	CurrentPage  int                `json:"currentPage"`
	SearchQuery  string             `json:"searchQuery"`
	StatusFilter string             `json:"statusFilter"`
	Namespace    string             `json:"namespace"`
}

// Approvals loads one page of approvals filtered by req.Search and req.Status.
func (l *Loader) Approvals(ctx context.Context, req Request) (*ApprovalsData, error) {
	return load(ctx, l, "approvals", req.Namespace, func(ctx context.Context) (*ApprovalsData, error) {
		page := req.currentPage()
		list, err := l.api.Approvals.List(ctx, req.Namespace, flowctl.ListParams{
			Page:         page,
			CountPerPage: l.pageSize,
			Filter:       req.Search,
			Status:       req.Status,
		})
		if err != nil {
			return nil, l.upstreamFailure(ctx, "Failed to load approvals data", req.Namespace, err)
		}

		return &ApprovalsData{
			Approvals:    nonNil(list.Approvals),
			TotalCount:   list.TotalCount,
			PageCount:    pageCountOrOne(list.PageCount),
			CurrentPage:  page,
			SearchQuery:  req.Search,
			StatusFilter: req.Status,
			Namespace:    req.Namespace,
		}, nil
	})
}

// FlowsData is the flow listing page. Error is set instead of failing the
// page when the listing could not be fetched.
type FlowsData struct {
	Flows       []flowctl.Flow `json:"flows"`
	PageCount   int            `json:"pageCount"`
	TotalCount  int            `json:"totalCount"`
	CurrentPage int            `json:"currentPage"`
	Filter      string         `json:"filter"`
	Error       string         `json:"error,omitempty"`
	NamespaceID string         `json:"namespaceId"`
}

// Flows loads one page of flows. An upstream failure is reported through
// FlowsData.Error and never returned.
func (l *Loader) Flows(ctx context.Context, req Request) (*FlowsData, error) {
	return load(ctx, l, "flows", req.Namespace, func(ctx context.Context) (*FlowsData, error) {
		return l.flows(ctx, req), nil
	})
}

// FlowsGated is Flows behind a flow view permission check.
func (l *Loader) FlowsGated(ctx context.Context, req Request) (*FlowsData, error) {
	return load(ctx, l, "flows", req.Namespace, func(ctx context.Context) (*FlowsData, error) {
		if err := l.gate(ctx, req, permission.ResourceFlow, msgFlowsDenied); err != nil {
			return nil, err
		}
		return l.flows(ctx, req), nil
	})
}

func (l *Loader) flows(ctx context.Context, req Request) *FlowsData {
	page := req.currentPage()
	list, err := l.api.Flows.List(ctx, req.Namespace, flowctl.ListParams{
		Page:         page,
		CountPerPage: l.flowsPerPage,
		Filter:       req.Filter,
	})
	if err != nil {
		l.logUpstreamFailure(ctx, "Failed to load flows", req.Namespace, err)
		return &FlowsData{
			Flows:       []flowctl.Flow{},
			CurrentPage: 1,
			Filter:      req.Filter,
			Error:       "Failed to load flows",
			NamespaceID: req.NamespaceID,
		}
	}

	return &FlowsData{
		Flows:       nonNil(list.Flows),
		PageCount:   list.PageCount,
		TotalCount:  list.TotalCount,
		CurrentPage: page,
		Filter:      req.Filter,
		NamespaceID: req.NamespaceID,
	}
}

// MembersData is the namespace members page.
type MembersData struct {
	Members   []flowctl.Member `json:"members"`
	Namespace string           `json:"namespace"`
}

// Members loads the members of the request namespace.
func (l *Loader) Members(ctx context.Context, req Request) (*MembersData, error) {
	return load(ctx, l, "members", req.Namespace, func(ctx context.Context) (*MembersData, error) {
		return l.members(ctx, req)
	})
}

// MembersGated is Members behind a member view permission check.
func (l *Loader) MembersGated(ctx context.Context, req Request) (*MembersData, error) {
	return load(ctx, l, "members", req.Namespace, func(ctx context.Context) (*MembersData, error) {
		if err := l.gate(ctx, req, permission.ResourceMember, msgMembersDenied); err != nil {
			return nil, err
		}
		return l.members(ctx, req)
	})
}

func (l *Loader) members(ctx context.Context, req Request) (*MembersData, error) {
	list, err := l.api.Members.List(ctx, req.Namespace)
	if err != nil {
		return nil, l.upstreamFailure(ctx, "Failed to load members data", req.Namespace, err)
	}
	return &MembersData{
		Members:   nonNil(list.Members),
		Namespace: req.Namespace,
	}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func pageCountOrOne(n int) int {
	if n == 0 {
		return 1
	}
	return n
}
