package dump

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/config"
	"github.com/fyrsmithlabs/jab/internal/logging"
)

// Postgres dumps with pg_dump and restores with psql. The URI is handed to
// both tools with its password moved to PGPASSWORD, so any other libpq
// connection parameter works.
type Postgres struct {
	tools Tools
}

// pgTarget is a Postgres URI split into the connection string passed on the
// command line and the password passed through the environment.
type pgTarget struct {
	conn     string
	password config.Secret
}

func parsePostgres(uri string) (*pgTarget, error) {
	u, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	t := &pgTarget{}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			t.password = config.Secret(pw)
			u.User = url.User(u.User.Username())
		}
	}

	q := u.Query()
	if q.Has("password") {
		if !t.password.IsSet() {
			t.password = config.Secret(q.Get("password"))
		}
		q.Del("password")
		u.RawQuery = q.Encode()
	}

	t.conn = u.String()
	return t, nil
}

// env passes the password out of band so it never shows in the process list.
func (t *pgTarget) env() []string {
	if !t.password.IsSet() {
		return nil
	}
	return []string{"PGPASSWORD=" + t.password.Value()}
}

// Dump runs pg_dump. The script drops objects before recreating them, so it
// can be replayed onto a populated database.
func (p *Postgres) Dump(ctx context.Context, uri string) ([]byte, error) {
	t, err := parsePostgres(uri)
	if err != nil {
		return nil, err
	}

	loggerFrom(ctx).Info(ctx, "dumping database",
		logging.URI("db_uri", uri), logging.Secret("password", t.password))
	out, err := run(ctx, p.tools.Timeout, command{tool: p.tools.PgDump, args: pgDumpArgs(t.conn), env: t.env()})
	if err != nil {
		return nil, err
	}
	loggerFrom(ctx).Debug(ctx, "database dumped", zap.Int("bytes", len(out)))
	return out, nil
}

// Restore feeds dump to psql in a single transaction that stops at the
// first error.
func (p *Postgres) Restore(ctx context.Context, uri string, dump []byte) error {
	t, err := parsePostgres(uri)
	if err != nil {
		return err
	}

	loggerFrom(ctx).Info(ctx, "restoring database",
		logging.URI("db_uri", uri), zap.Int("bytes", len(dump)))
	_, err = run(ctx, p.tools.Timeout, command{
		tool:  p.tools.Psql,
		args:  psqlArgs(t.conn),
		env:   t.env(),
		stdin: dump,
	})
	return err
}

func pgDumpArgs(conn string) []string {
	return []string{"--clean", "--if-exists", "--no-owner", "--dbname=" + conn}
}

func psqlArgs(conn string) []string {
	return []string{"--quiet", "--single-transaction", "-v", "ON_ERROR_STOP=1", "--dbname=" + conn}
}
