// Package main provides the console backend entry point.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flowctl/console/internal/config"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	envFiles   []string
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.NewLoader().WithEnvFiles(o.envFiles...).Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "console",
		Short:        "Backend for the flowctl web console",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to the YAML config file (default: configs/config.yaml, config.yaml, $CONFIG_PATH)")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"},
		".env files loaded before the environment is read")

	cmd.AddCommand(
		newServeCmd(opts),
		newConfigCmd(opts),
		newPermissionsCmd(opts),
	)

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
