// Package dump produces and replays plain SQL dumps of databases addressed
// by URI.
//
// PostgreSQL and MySQL go through their client tools (pg_dump/psql and
// mysqldump/mysql), which must be on PATH or configured in Tools. SQLite is
// handled natively.
//
//	d, err := dump.ForURI("postgres://app@localhost/shop", dump.DefaultTools())
//	if err != nil {
//	    return err
//	}
//	sql, err := d.Dump(ctx, "postgres://app@localhost/shop")
package dump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
)

// Common errors.
var (
	ErrUnsupportedScheme = errors.New("unsupported database scheme")
	ErrInvalidURI        = errors.New("invalid database URI")
)

// Dumper reads a database into a SQL script and replays such a script.
type Dumper interface {
	// Dump returns a SQL script that recreates the database at uri.
	Dump(ctx context.Context, uri string) ([]byte, error)

	// Restore replaces the contents of the database at uri with dump.
	Restore(ctx context.Context, uri string, dump []byte) error
}

// Tools names the client binaries and bounds how long each may run.
type Tools struct {
	PgDump    string
	Psql      string
	MySQLDump string
	MySQL     string
	Timeout   time.Duration // zero means no limit
}

// DefaultTools resolves every client from PATH with no time limit.
func DefaultTools() Tools {
	return Tools{
		PgDump:    "pg_dump",
		Psql:      "psql",
		MySQLDump: "mysqldump",
		MySQL:     "mysql",
	}
}

// ForURI picks the Dumper for uri's scheme.
func ForURI(uri string, tools Tools) (Dumper, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return &Postgres{tools: tools}, nil
	case "mysql":
		return &MySQL{tools: tools}, nil
	case "sqlite", "sqlite3", "file":
		return &SQLite{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func parseURI(uri string) (*url.URL, error) {
	u, err := url.Parse(uri)
	if err != nil {
		// url errors echo the input, password included
		return nil, fmt.Errorf("%w: cannot parse", ErrInvalidURI)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("%w: missing scheme", ErrInvalidURI)
	}
	return u, nil
}

// ToolError reports a client tool that failed. Stderr holds its diagnostic
// output.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// loggerFrom returns the context logger named for this package.
func loggerFrom(ctx context.Context) *logging.Logger {
	return logging.FromContext(ctx).Named("dump")
}

// command is one invocation of an external client.
type command struct {
	tool  string
	args  []string
	env   []string // appended to the current environment
	stdin []byte
}

// run executes c and returns its stdout. Arguments are never logged since
// they may carry credentials.
func run(ctx context.Context, timeout time.Duration, c command) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := loggerFrom(ctx)
	logger.Debug(ctx, "running client tool", zap.String("tool", c.tool))

	cmd := exec.CommandContext(ctx, c.tool, c.args...)
	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}
	if c.stdin != nil {
		cmd.Stdin = bytes.NewReader(c.stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	logger.Trace(ctx, "client tool finished",
		zap.String("tool", c.tool),
		zap.Duration("took", time.Since(start)),
		zap.Int("stdout_bytes", stdout.Len()),
		zap.String("stderr", stderr.String()))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %v: %w", timeout, ctx.Err())
		}
		return nil, &ToolError{Tool: c.tool, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}
