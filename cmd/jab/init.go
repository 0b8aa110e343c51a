package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/jab/internal/registry"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

// initCmd prepares the jab home directory
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the jab home directory",
	Long: `Initialize the jab home directory.

Creates the home directory, an empty project registry and the directory that
holds project repositories. Running init again leaves existing projects alone.

Examples:
  # Initialize ~/.jab
  jab init

  # Initialize a different home
  jab init --home /srv/jab`,
	Args: cobra.NoArgs,
	RunE: withEnv(runInit),
}

func runInit(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	seeded, err := registry.Init(e.settings.RegistryDir())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.settings.ProjectsDir, 0755); err != nil {
		return fmt.Errorf("failed to create projects directory: %w", err)
	}

	if !seeded {
		cmd.Printf("jab already initialized in %s\n", e.settings.Home)
		return nil
	}
	cmd.Printf("Initialized jab in %s\n", e.settings.Home)
	return nil
}
