package store

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table declares one table the store may touch. IDColumn is the generated
// numeric key returned by Insert; leave it empty for tables keyed otherwise.
type Table struct {
	Name     string
	IDColumn string
	Columns  []string
}

// Schema is the allow-list of identifiers that may be interpolated into SQL.
// Values are always bound as parameters; only names listed here reach the
// statement text.
type Schema struct {
	tables map[string]tableSpec
}

type tableSpec struct {
	idColumn string
	columns  map[string]struct{}
}

func NewSchema(tables ...Table) Schema {
	s := Schema{tables: make(map[string]tableSpec, len(tables))}
	for _, t := range tables {
		tbl := tableSpec{idColumn: t.IDColumn, columns: make(map[string]struct{}, len(t.Columns))}
		for _, c := range t.Columns {
			tbl.columns[c] = struct{}{}
		}
		s.tables[t.Name] = tbl
	}
	return s
}

func (s Schema) table(name string) (tableSpec, error) {
	if !identPattern.MatchString(name) {
		return tableSpec{}, fmt.Errorf("%w: table %q", ErrUnknownIdentifier, name)
	}
	tbl, ok := s.tables[name]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: table %q", ErrUnknownIdentifier, name)
	}
	return tbl, nil
}

func (s Schema) checkColumns(table string, tbl tableSpec, fields Fields) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields for table %q", ErrInvalidInput, table)
	}
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if !identPattern.MatchString(f.Name) {
			return fmt.Errorf("%w: column %q", ErrUnknownIdentifier, f.Name)
		}
		if _, ok := tbl.columns[f.Name]; !ok {
			return fmt.Errorf("%w: column %s.%s", ErrUnknownIdentifier, table, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidInput, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// checkClause guards the where-clause text, which callers pass as trusted
// internal SQL. Statement separators and comments are refused outright.
func checkClause(where string) (string, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return "1=1", nil
	}
	for _, bad := range []string{";", "--", "/*"} {
		if strings.Contains(where, bad) {
			return "", fmt.Errorf("%w: %q", ErrUnsafeClause, where)
		}
	}
	return where, nil
}

// ConsoleSchema lists the tables used by the admin console.
func ConsoleSchema() Schema {
	return NewSchema(
		Table{Name: "admins", IDColumn: "id", Columns: []string{
			"id", "username", "password", "email", "created_at", "updated_at",
		}},
		Table{Name: "users", IDColumn: "id", Columns: []string{
			"id", "username", "user_name", "email", "password_hash", "is_active", "is_running",
			"user_group", "task_group", "browser_name", "browser_count", "created_at",
		}},
		Table{Name: "tasks", IDColumn: "task_id", Columns: []string{
			"task_id", "is_run", "task_name", "channel", "task_group", "weight", "click_rate",
			"task_urls", "user_name", "updated_at",
		}},
		Table{Name: "site_settings", Columns: []string{"name", "value", "updated_at"}},
		Table{Name: "console_states", Columns: []string{"id", "payload", "expires_at", "updated_at"}},
		Table{Name: "schema_migrations", Columns: []string{"name", "checksum", "applied_at"}},
	)
}
