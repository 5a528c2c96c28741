package dbconn

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect captures the few places where the supported engines differ.
type Dialect struct {
	name        string
	numbered    bool
	returningID bool
}

var dialects = map[string]Dialect{
	DriverPostgres: {name: DriverPostgres, numbered: true, returningID: true},
	DriverPGX:      {name: DriverPGX, numbered: true, returningID: true},
	DriverSQLite:   {name: DriverSQLite},
}

func DialectFor(driver string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
	return d, nil
}

func (d Dialect) Name() string { return d.name }

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string { return d.name }

// ReturningID reports whether inserts must use RETURNING to obtain the new id
// because the driver does not implement LastInsertId.
func (d Dialect) ReturningID() bool { return d.returningID }

// Rebind rewrites '?' placeholders into the dialect's native form. offset is the
// number of placeholders already emitted earlier in the statement. Question marks
// inside single-quoted literals are left untouched.
func (d Dialect) Rebind(query string, offset int) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := offset
	inQuote := false
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// TableExistsQuery returns the catalog query and whether it takes the database
// name as its first argument.
func (d Dialect) TableExistsQuery() (string, bool) {
	if d.name == DriverSQLite {
		return `SELECT COUNT(*) AS count FROM sqlite_master WHERE type = 'table' AND name = ?`, false
	}
	return `SELECT COUNT(*) AS count FROM information_schema.tables WHERE table_catalog = ? AND table_name = ?`, true
}
