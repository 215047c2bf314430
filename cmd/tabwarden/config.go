package main

import (
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/appconfig"
)

// resolveConfigPath picks the config path: explicit flag, then the
// TABWARDEN_CONFIG environment variable, then the default location.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if env := os.Getenv("TABWARDEN_CONFIG"); env != "" {
		return env, nil
	}
	return appconfig.DefaultConfigPath()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var outPath string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath(outPath)
			if err != nil {
				return err
			}
			if err := appconfig.WriteDefault(path, force); err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config written", "path", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing file")
	return cmd
}
