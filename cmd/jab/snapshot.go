package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/dump"
	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/project"
	"github.com/fyrsmithlabs/jab/internal/revision"
)

// restoreConfirmed skips the overwrite guard of restore
var restoreConfirmed bool

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().BoolVarP(&restoreConfirmed, "yes", "y", false, "Confirm that the database contents will be replaced")
}

var showCmd = &cobra.Command{
	Use:   "show <name> [revision]",
	Short: "Print a snapshot",
	Long: `Print the dump stored at a revision to stdout. Without a revision the
latest snapshot is printed. Revisions may be full or abbreviated ids, or any
git revision expression such as HEAD~2.

Examples:
  # Latest snapshot
  jab show shop

  # An older snapshot, saved to a file
  jab show shop 3f2a9c1 > shop-3f2a9c1.sql`,
	Args: cobra.RangeArgs(1, 2),
	RunE: withEnv(runShow),
}

var restoreCmd = &cobra.Command{
	Use:   "restore <name> [revision]",
	Short: "Load a snapshot back into the database",
	Long: `Replace the contents of the project's database with the dump stored at a
revision. Without a revision the latest snapshot is restored.

Restore overwrites data, so it refuses to run without --yes.

Examples:
  # Roll back to the latest snapshot
  jab restore shop --yes

  # Roll back two snapshots
  jab restore shop HEAD~2 --yes`,
	Args: cobra.RangeArgs(1, 2),
	RunE: withEnv(runRestore),
}

// snapshot returns project p's dump at args[1], or its latest dump.
func snapshot(ctx context.Context, p *project.Project, args []string) ([]byte, error) {
	if len(args) > 1 {
		return p.DumpAt(ctx, args[1])
	}
	data, err := p.LatestDump(ctx)
	if errors.Is(err, revision.ErrNoRevisions) {
		return nil, fmt.Errorf("project %s has no snapshots yet (run 'jab commit %s'): %w", p.Name(), p.Name(), err)
	}
	return data, err
}

func runShow(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	ctx = logging.WithProject(ctx, args[0])

	mgr, err := e.manager()
	if err != nil {
		return err
	}
	p, err := mgr.Open(ctx, args[0])
	if err != nil {
		return err
	}

	data, err := snapshot(ctx, p, args)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runRestore(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	ctx = logging.WithProject(ctx, args[0])

	mgr, err := e.manager()
	if err != nil {
		return err
	}
	p, err := mgr.Open(ctx, args[0])
	if err != nil {
		return err
	}

	if !restoreConfirmed {
		return fmt.Errorf("restore replaces the contents of %s; pass --yes to continue", maskURI(p.DBURI()))
	}

	data, err := snapshot(ctx, p, args)
	if err != nil {
		return err
	}

	d, err := dump.ForURI(p.DBURI(), e.tools)
	if err != nil {
		return err
	}
	if err := d.Restore(ctx, p.DBURI(), data); err != nil {
		return err
	}

	e.logger.Info(ctx, "snapshot restored", zap.Int("bytes", len(data)))
	cmd.Printf("Restored %s\n", p.Name())
	return nil
}
