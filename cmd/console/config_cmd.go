package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowctl/console/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration, then print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return printConfigSummary(cmd.OutOrStdout(), cfg)
		},
	})

	return cmd
}

func printConfigSummary(w io.Writer, cfg *config.Config) error {
	mode := cfg.App.Mode
	if mode == "" {
		mode = config.AppModeReal
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"mode", string(mode)},
		{"environment", getEnvironment(cfg)},
		{"listen", cfg.Server.Address()},
		{"allowed origins", strings.Join(cfg.Server.Origins(), ",")},
		{"upstream", cfg.Upstream.BaseURL},
		{"authz", authzSummary(cfg)},
		{"gate listings", fmt.Sprint(cfg.Pages.GateListings)},
		{"notifications", notificationSummary(cfg)},
		{"eventbus", cfg.EventBus.Type},
		{"redis", redisSummary(cfg)},
		{"rate limit", rateLimitSummary(cfg)},
		{"tracing", fmt.Sprint(cfg.Tracing.Enabled)},
		{"log", cfg.Log.Level + "/" + cfg.Log.Format},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "configuration OK")
	return err
}

func authzSummary(cfg *config.Config) string {
	s := cfg.Authz.Mode
	if cfg.Authz.CacheEnabled {
		s += fmt.Sprintf(" (cache %s)", cfg.Authz.CacheTTL)
	}
	return s
}

func notificationSummary(cfg *config.Config) string {
	s := fmt.Sprintf("default %s", cfg.Notifications.DefaultDuration)
	if cfg.Notifications.Persist {
		s += ", persisted to mongodb database " + cfg.MongoDB.Database
	}
	return s
}

func redisSummary(cfg *config.Config) string {
	if !cfg.UsesRedis() {
		return "unused"
	}
	return cfg.Redis.Addr
}

func rateLimitSummary(cfg *config.Config) string {
	if !cfg.RateLimit.Enabled {
		return "off"
	}
	return fmt.Sprintf("%d/min", cfg.RateLimit.RequestsPerMinute)
}
