package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// Migrate applies the embedded migrations for the store's dialect that have
// not been recorded in schema_migrations yet.
func (s *Store) Migrate(ctx context.Context) error {
	dir := "migrations/postgres"
	tsType := "TIMESTAMPTZ"
	if s.dialect == dialect.SQLite {
		dir = "migrations/sqlite"
		tsType = "TIMESTAMP"
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (version TEXT PRIMARY KEY, applied_at %s NOT NULL)", migrationsTable, tsType)); err != nil {
		return fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		version := strings.TrimSuffix(e.Name(), ".sql")
		n, err := countQ(ctx, s.db, s.sql().Select(entsql.Count("*")).
			From(s.sql().Table(migrationsTable)).
			Where(entsql.EQ("version", version)))
		if err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if n > 0 {
			continue
		}

		body, err := migrationsFS.ReadFile(path.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		start := time.Now()
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range splitStatements(string(body)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("%s: %w", firstLine(stmt), err)
				}
			}
			_, err := execQ(ctx, tx, s.sql().Insert(migrationsTable).
				Columns("version", "applied_at").
				Values(version, time.Now().UTC()))
			return err
		})
		if err != nil {
			s.logger.Error("migration failed", "version", version, "error", err)
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		s.logger.Info("migration applied", "version", version, "elapsed_ms", time.Since(start).Milliseconds())
	}
	return nil
}

// splitStatements splits a migration file on statement-terminating semicolons.
// Migrations must not contain semicolons inside statements.
func splitStatements(body string) []string {
	var out []string
	for _, part := range strings.Split(body, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
