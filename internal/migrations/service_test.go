package migrations

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"taskadmin/admin-console/internal/dbconn"
	"taskadmin/admin-console/internal/observability"
	"taskadmin/admin-console/internal/store"
)

func newSQLiteManager(t *testing.T) *dbconn.Manager {
	t.Helper()
	m, err := dbconn.Connect(context.Background(), dbconn.Config{
		Driver:   dbconn.DriverSQLite,
		Database: filepath.Join(t.TempDir(), "migrations.db"),
	}, dbconn.WithLogger(observability.Discard()))
	if err != nil {
		t.Fatalf("dbconn.Connect() error: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestListEmbeddedMigrations(t *testing.T) {
	svc, err := NewService(newSQLiteManager(t), observability.Discard())
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	list, err := svc.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(list))
	}
	if list[0].Name != "0001_console_schema.sql" || list[1].Name != "0002_console_states.sql" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[0].Checksum == "" {
		t.Fatalf("expected non-empty checksum")
	}
}

func TestApplyCreatesConsoleTables(t *testing.T) {
	m := newSQLiteManager(t)
	svc, err := NewService(m, observability.Discard())
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	ctx := context.Background()

	applied, err := svc.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied migrations, got %v", applied)
	}

	s, _ := store.New(m, store.ConsoleSchema())
	for _, table := range []string{"admins", "users", "tasks", "site_settings", "console_states", "schema_migrations"} {
		ok, err := s.TableExists(ctx, table)
		if err != nil {
			t.Fatalf("TableExists(%s) error: %v", table, err)
		}
		if !ok {
			t.Fatalf("expected table %s to exist", table)
		}
	}

	again, err := svc.Apply(ctx)
	if err != nil {
		t.Fatalf("second Apply() error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing pending, got %v", again)
	}

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	for _, st := range status {
		if !st.Applied || st.AppliedAt == "" || st.Modified {
			t.Fatalf("unexpected status: %+v", st)
		}
	}
}

func TestApplyStopsAtFailingMigration(t *testing.T) {
	m := newSQLiteManager(t)
	fsys := fstest.MapFS{
		"m/0001_ok.sql":     {Data: []byte("CREATE TABLE a (id INTEGER);\n")},
		"m/0002_broken.sql": {Data: []byte("CREATE TABLE b (id INTEGER);\nCREATE TABLE broken (;\n")},
	}
	svc := newService(m, fsys, "m", observability.Discard())
	ctx := context.Background()

	applied, err := svc.Apply(ctx)
	if err == nil {
		t.Fatalf("expected failure from broken migration")
	}
	if len(applied) != 1 || applied[0] != "0001_ok.sql" {
		t.Fatalf("expected only the first migration applied, got %v", applied)
	}

	s, _ := store.New(m, store.NewSchema())
	ok, err := s.TableExists(ctx, "b")
	if err != nil {
		t.Fatalf("TableExists() error: %v", err)
	}
	if ok {
		t.Fatalf("statements of the failed migration must be rolled back")
	}

	status, _ := svc.Status(ctx)
	if status[1].Applied {
		t.Fatalf("failed migration must not be recorded")
	}
}

func TestApplyRefusesModifiedMigration(t *testing.T) {
	m := newSQLiteManager(t)
	fsys := fstest.MapFS{
		"m/0001_init.sql": {Data: []byte("CREATE TABLE a (id INTEGER);\n")},
	}
	svc := newService(m, fsys, "m", observability.Discard())
	ctx := context.Background()

	if _, err := svc.Apply(ctx); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	fsys["m/0001_init.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id INTEGER, name TEXT);\n")}

	if _, err := svc.Apply(ctx); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestMarkApplied(t *testing.T) {
	m := newSQLiteManager(t)
	fsys := fstest.MapFS{
		"m/0001_init.sql": {Data: []byte("CREATE TABLE a (id INTEGER);\n")},
		"m/0002_more.sql": {Data: []byte("CREATE TABLE b (id INTEGER);\n")},
	}
	svc := newService(m, fsys, "m", observability.Discard())
	ctx := context.Background()

	at := time.Date(2026, 2, 16, 12, 30, 0, 0, time.UTC)
	if err := svc.MarkApplied(ctx, "0001_init.sql", at); err != nil {
		t.Fatalf("MarkApplied() error: %v", err)
	}
	if err := svc.MarkApplied(ctx, "0009_missing.sql", at); !errors.Is(err, ErrUnknownMigration) {
		t.Fatalf("expected ErrUnknownMigration, got %v", err)
	}
	if err := svc.MarkApplied(ctx, "../0001_init.sql", at); err == nil {
		t.Fatalf("expected invalid name error")
	}

	status, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if !status[0].Applied || status[0].AppliedAt != "2026-02-16T12:30:00Z" || status[1].Applied {
		t.Fatalf("unexpected status: %+v", status)
	}

	applied, err := svc.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_more.sql" {
		t.Fatalf("expected only 0002 to run, got %v", applied)
	}
}

func TestSplitStatements(t *testing.T) {
	src := "-- header\nCREATE TABLE a (\n\tid INTEGER\n);\n\nCREATE INDEX i ON a (id);\nSELECT 1"
	got := splitStatements(src)
	if len(got) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(got), got)
	}
	if got[0] != "CREATE TABLE a (\n\tid INTEGER\n)" || got[2] != "SELECT 1" {
		t.Fatalf("unexpected statements: %q", got)
	}
}
