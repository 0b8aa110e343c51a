package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/revision"
)

var (
	// log command flags
	logLimit      int
	logOutputJSON bool
)

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "Show at most this many revisions (0 for all)")
	logCmd.Flags().BoolVar(&logOutputJSON, "json", false, "Output results as JSON")
}

var logCmd = &cobra.Command{
	Use:   "log <name>",
	Short: "Show a project's snapshot history",
	Long: `List a project's revisions, newest first.

Examples:
  # Full history
  jab log shop

  # Last five snapshots
  jab log shop -n 5

  # Output as JSON
  jab log shop --json`,
	Args: cobra.ExactArgs(1),
	RunE: withEnv(runLog),
}

// revisionView is the listing form of a revision.
type revisionView struct {
	ID      string    `json:"id"`
	When    time.Time `json:"when"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	Message string    `json:"message"`
}

func runLog(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	ctx = logging.WithProject(ctx, args[0])

	mgr, err := e.manager()
	if err != nil {
		return err
	}
	p, err := mgr.Open(ctx, args[0])
	if err != nil {
		return err
	}

	it, err := p.Revisions(ctx)
	if err != nil {
		return err
	}
	defer it.Close()

	var revs []*revision.Revision
	err = it.ForEach(func(r *revision.Revision) error {
		revs = append(revs, r)
		if logLimit > 0 && len(revs) >= logLimit {
			return revision.ErrStop
		}
		return nil
	})
	if err != nil {
		return err
	}

	if logOutputJSON {
		views := make([]revisionView, 0, len(revs))
		for _, r := range revs {
			views = append(views, revisionView{ID: r.ID, When: r.When, Author: r.Author, Email: r.Email, Message: r.Message})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	return printRevisions(cmd.OutOrStdout(), revs)
}

func printRevisions(out io.Writer, revs []*revision.Revision) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REVISION\tDATE\tAUTHOR\tMESSAGE")
	for _, r := range revs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Short(), r.When.Format(time.RFC3339), r.Author, r.Subject())
	}
	return w.Flush()
}
