package pages

import (
	"context"
	"net/http"
)

// LayoutData is the parent data shared by every namespace page.
type LayoutData struct {
	Namespace   string `json:"namespace"`
	NamespaceID string `json:"namespaceId"`
}

// Layout resolves namespace by name among the namespaces visible to the caller.
// An unknown namespace is a 403; an upstream failure is a 500.
func (l *Loader) Layout(ctx context.Context, namespace string) (*LayoutData, error) {
	return load(ctx, l, "layout", namespace, func(ctx context.Context) (*LayoutData, error) {
		list, err := l.api.Namespaces.List(ctx)
		if err != nil {
			return nil, l.upstreamFailure(ctx, "Could not retrieve the namespace", namespace, err)
		}

		for _, ns := range list.Namespaces {
			if ns.Name == namespace {
				return &LayoutData{Namespace: ns.Name, NamespaceID: ns.ID}, nil
			}
		}

		return nil, &PageError{
			Status:  http.StatusForbidden,
			Message: "Access denied. You do not have permission to access this namespace.",
		}
	})
}
