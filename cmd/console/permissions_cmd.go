package main

import (
	"fmt"
	"slices"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/flowctl/console/internal/domain/permission"
	"github.com/flowctl/console/internal/service"
)

var knownResources = []string{
	permission.ResourceFlow,
	permission.ResourceExecution,
	permission.ResourceApproval,
	permission.ResourceMember,
	permission.ResourceNamespace,
}

type permissionsCheckOptions struct {
	user      string
	groups    []string
	resource  string
	namespace string
	actions   string
}

type permissionsCheckResult struct {
	User        permission.User                `json:"user"`
	Resource    string                         `json:"resource"`
	Namespace   string                         `json:"namespace"`
	Permissions permission.ResourcePermissions `json:"permissions"`
}

func newPermissionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Query the configured authorizer",
	}

	opts := &permissionsCheckOptions{}
	check := &cobra.Command{
		Use:   "check",
		Short: "Print the permission flags of a user on a resource type",
		Example: "  console permissions check --user alice --group ops --resource flow --namespace n1\n" +
			"  console permissions check --user alice --resource approval --namespace n1 --action view,update",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPermissionsCheck(cmd, root, opts)
		},
	}
	check.Flags().StringVar(&opts.user, "user", "", "user id")
	check.Flags().StringSliceVar(&opts.groups, "group", nil, "group the user belongs to (repeatable)")
	check.Flags().StringVar(&opts.resource, "resource", "", "resource type: flow, execution, approval, member, namespace")
	check.Flags().StringVar(&opts.namespace, "namespace", "", "namespace id")
	check.Flags().StringVar(&opts.actions, "action", "", "comma separated actions to check (default all)")
	_ = check.MarkFlagRequired("user")
	_ = check.MarkFlagRequired("resource")
	_ = check.MarkFlagRequired("namespace")

	cmd.AddCommand(check)
	return cmd
}

func runPermissionsCheck(cmd *cobra.Command, root *rootOptions, opts *permissionsCheckOptions) error {
	if !slices.Contains(knownResources, opts.resource) {
		return fmt.Errorf("unknown resource type %q", opts.resource)
	}
	actions, err := permission.ParseActions(opts.actions)
	if err != nil {
		return err
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	// Only the upstream client and the authorizer are needed here.
	c := &Container{Config: cfg, Logger: quietLogger()}
	defer c.Close()
	c.setupMetrics()
	if err = c.setupUpstream(); err != nil {
		return err
	}

	checker := service.NewPermissionChecker(c.AuthzFactory, service.WithCheckerLogger(c.Logger))
	user := permission.User{ID: opts.user, Groups: opts.groups}

	result := permissionsCheckResult{
		User:        user,
		Resource:    opts.resource,
		Namespace:   opts.namespace,
		Permissions: checker.Check(cmd.Context(), user, opts.resource, opts.namespace, actions...),
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
