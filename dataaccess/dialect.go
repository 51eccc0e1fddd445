package dataaccess

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/seanvanpelt2/permissionsex-store/perrors"
)

//go:embed deploy/*.sql
var deployScripts embed.FS

// Dialect names the target RDBMS flavor, selected at connection time by a
// live probe rather than by trusting the configured URL (§6).
type Dialect string

const (
	// DialectMySQL targets MySQL/MariaDB via github.com/go-sql-driver/mysql.
	DialectMySQL Dialect = "mysql"
	// DialectH2 targets the H2-equivalent embedded dialect. In this
	// module's Go ecosystem it is backed by SQLite via
	// github.com/mattn/go-sqlite3 — see DESIGN.md for why SQLite plays
	// H2's role here.
	DialectH2 Dialect = "h2"
)

func (d Dialect) queries() dialectQueries {
	switch d {
	case DialectMySQL:
		return mysqlDialectQueries
	default:
		return h2DialectQueries
	}
}

func (d Dialect) scriptName() string {
	switch d {
	case DialectMySQL:
		return "deploy/mysql.sql"
	default:
		return "deploy/h2.sql"
	}
}

// ProbeDialect detects the dialect of an open connection the way the
// source probes the JDBC connection's product name: it runs a
// dialect-distinguishing query and sees which one the driver accepts.
// database/sql has no cross-driver "product name" accessor, so a sentinel
// probe query stands in for the JDBC metadata call.
func ProbeDialect(ctx context.Context, conn *sql.Conn) (Dialect, error) {
	var discard string
	if err := conn.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&discard); err == nil {
		return DialectH2, nil
	}
	if err := conn.QueryRowContext(ctx, "SELECT VERSION()").Scan(&discard); err == nil {
		return DialectMySQL, nil
	}
	return "", perrors.LoadFailure.Wrap(perrors.UnsupportedDialect.New("unrecognized SQL product"))
}

// loadSchemaStatements loads the bundled schema resource for d, strips
// comment lines, and splits it into individual statements (§4.5 "Schema
// deployment").
func loadSchemaStatements(d Dialect, prefix *PrefixRewriter) ([]string, error) {
	raw, err := deployScripts.ReadFile(d.scriptName())
	if err != nil {
		return nil, perrors.LoadFailure.Wrap(perrors.UnsupportedDialect.New(string(d)))
	}

	var cleaned strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteByte('\n')
	}

	var statements []string
	for _, part := range strings.Split(cleaned.String(), ";") {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		statements = append(statements, prefix.Rewrite(stmt))
	}
	return statements, nil
}

func wrapQueryFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return perrors.QueryFailure.Wrap(fmt.Errorf("%s: %w", op, err))
}
