package auth

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"portal-admin/internal/db"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	database, dialect, err := db.Open(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := db.RunMigrations(context.Background(), database, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewRepository(database, dialect)
}

func TestRepositorySaveLoadClear(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if _, ok, err := repo.Load(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	expiry := time.UnixMilli(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC).UnixMilli())
	if err := repo.Save(ctx, Record{Token: "tok", Expiry: expiry}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, Record{Token: "tok2", Expiry: expiry}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	record, ok, err := repo.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if record.Token != "tok2" || !record.Expiry.Equal(expiry) {
		t.Fatalf("unexpected record %+v", record)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := repo.Load(ctx); ok {
		t.Fatalf("record should be gone")
	}
}

func TestRepositoryIgnoresUnparseableExpiry(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	for _, name := range []string{keyToken, keyExpiry} {
		if _, err := repo.db.ExecContext(ctx, `INSERT INTO admin_session (name, value, updated_at) VALUES (?, ?, ?)`, name, "not-a-number", "x"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if _, ok, err := repo.Load(ctx); err != nil || ok {
		t.Fatalf("corrupt expiry should read as no session: ok=%v err=%v", ok, err)
	}
}

func TestRepositorySealsToken(t *testing.T) {
	ctx := context.Background()
	sealer, _ := NewSealer("operator secret")
	repo := newTestRepository(t).WithSealer(sealer)

	if err := repo.Save(ctx, Record{Token: "secret-token", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	var stored string
	if err := repo.db.QueryRowContext(ctx, `SELECT value FROM admin_session WHERE name = ?`, keyToken).Scan(&stored); err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if strings.Contains(stored, "secret-token") {
		t.Fatalf("token stored in clear: %q", stored)
	}

	record, ok, err := repo.Load(ctx)
	if err != nil || !ok || record.Token != "secret-token" {
		t.Fatalf("load = %+v ok=%v err=%v", record, ok, err)
	}
}

func TestManagerRestoresFromRepository(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo := newTestRepository(t)

	first := NewManager(repo).WithClock(clock.Now)
	if err := first.Login(ctx, "tok", 60); err != nil {
		t.Fatalf("login: %v", err)
	}

	second := NewManager(repo).WithClock(clock.Now)
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if ok, _ := second.VerifySession(ctx); !ok || second.Token() != "tok" {
		t.Fatalf("restored session should verify")
	}

	clock.Advance(2 * time.Hour)
	if ok, _ := second.VerifySession(ctx); ok {
		t.Fatalf("expired session should not verify")
	}
	if _, ok, _ := repo.Load(ctx); ok {
		t.Fatalf("expired session should be cleared from the database")
	}
}
