package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/jab/internal/logging"
)

var (
	// commit command flags
	commitMessage string
	commitFile    string
)

func init() {
	rootCmd.AddCommand(commitCmd)

	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Snapshot message (default: snapshot <timestamp>)")
	commitCmd.Flags().StringVar(&commitFile, "file", "", "Commit this dump instead of dumping the database (- for stdin)")
}

var commitCmd = &cobra.Command{
	Use:   "commit <name>",
	Short: "Snapshot a project's database",
	Long: `Dump the project's database and commit the dump as a new revision.

With --file the given dump is committed as-is and the database is not
contacted. Every commit creates a revision, even when the dump is unchanged.

Examples:
  # Snapshot the database
  jab commit shop -m "before migration 42"

  # Commit an existing dump
  jab commit shop --file nightly.sql

  # Commit a dump from stdin
  pg_dump shop | jab commit shop --file -`,
	Args: cobra.ExactArgs(1),
	RunE: withEnv(runCommit),
}

func runCommit(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx = logging.WithProject(ctx, name)

	mgr, err := e.manager()
	if err != nil {
		return err
	}

	var data []byte
	if commitFile != "" {
		data, err = readDumpFile(cmd, commitFile)
	} else {
		data, err = dumpProject(ctx, e, mgr.Open, name)
	}
	if err != nil {
		e.metrics.ObserveFailure(name)
		return err
	}

	message := commitMessage
	if message == "" {
		message = "snapshot " + time.Now().UTC().Format(time.RFC3339)
	}

	id, err := mgr.Commit(ctx, name, message, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func readDumpFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read dump from stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	return data, nil
}
