package dump

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite dumps and restores SQLite database files without external tools.
//
// Accepted URIs:
//
//	sqlite:///var/lib/app/shop.db   absolute path
//	sqlite://shop.db                relative path
//	sqlite:shop.db                  relative path
//	file:///var/lib/app/shop.db     same forms with the file scheme
//
// The dump is a single transaction: table definitions each followed by their
// rows (tables in name order), then indexes, triggers and views in creation
// order.
type SQLite struct{}

// schemaObject is one row of sqlite_master.
type schemaObject struct {
	kind string
	name string
	sql  string
}

const (
	tablesQuery = `SELECT type, name, sql FROM sqlite_master
		WHERE type = 'table' AND sql IS NOT NULL AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY name`
	othersQuery = `SELECT type, name, sql FROM sqlite_master
		WHERE type IN ('index', 'trigger', 'view') AND sql IS NOT NULL AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY CASE type WHEN 'index' THEN 0 WHEN 'trigger' THEN 1 ELSE 2 END, rowid`
	droppableQuery = `SELECT type, name, '' FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
		ORDER BY CASE type WHEN 'view' THEN 0 ELSE 1 END, name`
)

func sqlitePath(uri string) (string, error) {
	u, err := parseURI(uri)
	if err != nil {
		return "", err
	}

	path := u.Opaque
	if path == "" {
		path = u.Host + u.Path
	}
	if path == "" {
		return "", fmt.Errorf("%w: sqlite URI names no file", ErrInvalidURI)
	}
	return path, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection so pragmas apply to every statement.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Dump reads the database inside one transaction so the script is a
// consistent snapshot. The file must already exist.
func (s *SQLite) Dump(ctx context.Context, uri string) ([]byte, error) {
	path, err := sqlitePath(uri)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite database: %w", err)
	}

	logger := loggerFrom(ctx)
	logger.Info(ctx, "dumping database", zap.String("path", path))

	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var buf bytes.Buffer
	if err := writeDump(ctx, tx, &buf); err != nil {
		return nil, fmt.Errorf("dump %s: %w", path, err)
	}

	logger.Debug(ctx, "database dumped", zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func writeDump(ctx context.Context, tx *sql.Tx, buf *bytes.Buffer) error {
	logger := loggerFrom(ctx)

	tables, err := schema(ctx, tx, tablesQuery)
	if err != nil {
		return err
	}
	others, err := schema(ctx, tx, othersQuery)
	if err != nil {
		return err
	}

	buf.WriteString("BEGIN TRANSACTION;\n")

	for _, t := range tables {
		buf.WriteString(t.sql)
		buf.WriteString(";\n")
		n, err := writeRows(ctx, tx, buf, t.name)
		if err != nil {
			return err
		}
		logger.Trace(ctx, "dumped table", zap.String("table", t.name), zap.Int("rows", n))
	}

	// AUTOINCREMENT counters
	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`).Scan(&seq)
	if err != nil {
		return fmt.Errorf("check sqlite_sequence: %w", err)
	}
	if seq > 0 {
		buf.WriteString("DELETE FROM sqlite_sequence;\n")
		if _, err := writeRows(ctx, tx, buf, "sqlite_sequence"); err != nil {
			return err
		}
	}

	for _, o := range others {
		buf.WriteString(o.sql)
		buf.WriteString(";\n")
	}

	buf.WriteString("COMMIT;\n")
	return nil
}

func schema(ctx context.Context, tx *sql.Tx, query string) ([]schemaObject, error) {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	defer rows.Close()

	var objects []schemaObject
	for rows.Next() {
		var o schemaObject
		if err := rows.Scan(&o.kind, &o.name, &o.sql); err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return objects, nil
}

// writeRows emits one INSERT per row of table. SQLite's quote() renders
// each value as a literal: NULL, integer, real, quoted text or X'..' blob.
func writeRows(ctx context.Context, tx *sql.Tx, buf *bytes.Buffer, table string) (int, error) {
	columns, err := tableColumns(ctx, tx, table)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	selects := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		selects[i] = "quote(" + quoted[i] + ")"
	}
	insert := "INSERT INTO " + quoteIdent(table) + "(" + strings.Join(quoted, ",") + ") VALUES("

	rows, err := tx.QueryContext(ctx, "SELECT "+strings.Join(selects, ", ")+" FROM "+quoteIdent(table))
	if err != nil {
		return 0, fmt.Errorf("read table %s: %w", table, err)
	}
	defer rows.Close()

	values := make([]string, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return n, fmt.Errorf("read table %s: %w", table, err)
		}
		buf.WriteString(insert)
		buf.WriteString(strings.Join(values, ","))
		buf.WriteString(");\n")
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("read table %s: %w", table, err)
	}
	return n, nil
}

// tableColumns lists insertable columns; generated columns are hidden by
// pragma_table_info and skipped.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("read columns of %s: %w", table, err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	return columns, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Restore drops every user table and view, then executes dump. The file is
// created if missing. Drops and the script share one transaction, so a
// failing script leaves the database as it was.
func (s *SQLite) Restore(ctx context.Context, uri string, dump []byte) error {
	path, err := sqlitePath(uri)
	if err != nil {
		return err
	}

	logger := loggerFrom(ctx)
	logger.Info(ctx, "restoring database", zap.String("path", path), zap.Int("bytes", len(dump)))

	db, err := openSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	// No effect inside a transaction.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer tx.Rollback()

	if err := dropAll(ctx, tx); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, unwrapTransaction(string(dump))); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("restore %s: commit: %w", path, err)
	}
	return nil
}

// unwrapTransaction strips an outer BEGIN/COMMIT pair so the script can run
// inside the restore transaction. Scripts without one are returned as is; a
// nested BEGIN left in the body fails the restore.
func unwrapTransaction(script string) string {
	body := strings.TrimSpace(script)
	upper := strings.ToUpper(body)

	var begin, end string
	for _, p := range []string{"BEGIN TRANSACTION;", "BEGIN;"} {
		if strings.HasPrefix(upper, p) {
			begin = p
			break
		}
	}
	for _, p := range []string{"COMMIT TRANSACTION;", "COMMIT;", "END TRANSACTION;"} {
		if strings.HasSuffix(upper, p) {
			end = p
			break
		}
	}
	if begin == "" || end == "" || len(begin)+len(end) > len(body) {
		return script
	}
	return body[len(begin) : len(body)-len(end)]
}

func dropAll(ctx context.Context, tx *sql.Tx) error {
	objects, err := schema(ctx, tx, droppableQuery)
	if err != nil {
		return err
	}
	for _, o := range objects {
		stmt := "DROP TABLE IF EXISTS "
		if o.kind == "view" {
			stmt = "DROP VIEW IF EXISTS "
		}
		if _, err := tx.ExecContext(ctx, stmt+quoteIdent(o.name)); err != nil {
			return fmt.Errorf("drop %s %s: %w", o.kind, o.name, err)
		}
		loggerFrom(ctx).Trace(ctx, "dropped schema object",
			zap.String("type", o.kind), zap.String("name", o.name))
	}
	return nil
}
