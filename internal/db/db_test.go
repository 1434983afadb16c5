package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	query := `SELECT value FROM admin_session WHERE name IN (?, ?)`
	if got := SQLite.Rebind(query); got != query {
		t.Fatalf("sqlite rebind changed the query: %s", got)
	}
	if got, want := Postgres.Rebind(query), `SELECT value FROM admin_session WHERE name IN ($1, $2)`; got != want {
		t.Fatalf("postgres rebind = %s, want %s", got, want)
	}
}

func TestOpenPicksDialect(t *testing.T) {
	database, dialect, err := Open("postgres://admin:pw@localhost:5432/portal?sslmode=disable")
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer database.Close()
	if dialect != Postgres {
		t.Fatalf("dialect = %s", dialect)
	}

	if _, _, err := Open(" "); err == nil {
		t.Fatalf("empty dsn should fail")
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	database, dialect, err := Open("sqlite://" + filepath.Join(t.TempDir(), "nested", "session.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	if dialect != SQLite {
		t.Fatalf("dialect = %s", dialect)
	}

	for i := 0; i < 2; i++ {
		if err := RunMigrations(ctx, database, dialect); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	var applied int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}

	if _, err := database.ExecContext(ctx, `INSERT INTO admin_session (name, value, updated_at) VALUES ('adminToken', 'tok', 'now')`); err != nil {
		t.Fatalf("admin_session table missing: %v", err)
	}
}
