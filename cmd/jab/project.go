package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	// project command flags
	projDBURI      string
	projOutputJSON bool
)

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectListCmd)

	projectCreateCmd.Flags().StringVar(&projDBURI, "db-uri", "", "Database URI to snapshot (required)")
	_ = projectCreateCmd.MarkFlagRequired("db-uri")

	projectListCmd.Flags().BoolVar(&projOutputJSON, "json", false, "Output results as JSON")
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
	Long: `Manage projects. A project binds a name to a database URI and owns the git
repository its snapshots are committed to.

Examples:
  # Create a project
  jab project create shop --db-uri postgres://app@localhost/shop

  # List projects
  jab project list`,
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create or rebind a project",
	Long: `Create a project and its repository. Creating an existing project again
replaces its database URI and keeps its history.

Examples:
  # PostgreSQL
  jab project create shop --db-uri postgres://app@localhost:5432/shop

  # SQLite file
  jab project create notes --db-uri sqlite:///var/lib/notes/notes.db`,
	Args: cobra.ExactArgs(1),
	RunE: withEnv(runProjectCreate),
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long: `List registered projects. Passwords in database URIs are masked.

Examples:
  # Table output
  jab project list

  # Output as JSON
  jab project list --json`,
	Args: cobra.NoArgs,
	RunE: withEnv(runProjectList),
}

func runProjectCreate(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	mgr, err := e.manager()
	if err != nil {
		return err
	}

	p, err := mgr.Create(ctx, args[0], projDBURI)
	if err != nil {
		return err
	}
	cmd.Printf("Created project %s at %s\n", p.Name(), p.RepoPath())
	return nil
}

// projectView is the listing form of a project.
type projectView struct {
	Name  string `json:"name"`
	DBURI string `json:"db_uri"`
}

func runProjectList(ctx context.Context, e *env, cmd *cobra.Command, args []string) error {
	mgr, err := e.manager()
	if err != nil {
		return err
	}

	projects := mgr.List()
	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, projectView{Name: p.Name, DBURI: maskURI(p.DBURI)})
	}

	if projOutputJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		cmd.Println("No projects. Create one with 'jab project create'.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDB URI")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\n", v.Name, v.DBURI)
	}
	return w.Flush()
}

// maskURI hides the password of a database URI for display.
func maskURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "[invalid uri]"
	}
	return u.Redacted()
}
