package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskadmin/admin-console/internal/dbconn"
)

// Conn is the part of *dbconn.Manager the store depends on.
type Conn interface {
	WithCursor(ctx context.Context, fn func(dbconn.Cursor) error) error
	Dialect() dbconn.Dialect
	Config() dbconn.Config
}

// Store offers generic single-table helpers. Every call runs in its own scoped
// transaction. Where clauses use '?' placeholders whatever the dialect.
type Store struct {
	conn   Conn
	schema Schema
}

func New(conn Conn, schema Schema) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	return &Store{conn: conn, schema: schema}, nil
}

func (s *Store) Dialect() dbconn.Dialect { return s.conn.Dialect() }

// Execute runs a read query and returns every row.
func (s *Store) Execute(ctx context.Context, query string, args ...any) ([]Row, error) {
	var out []Row
	err := s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		rows, err := c.QueryContext(ctx, s.rebind(query), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, fail("execute", "", err)
	}
	return out, nil
}

// ExecuteNonQuery runs a write statement and returns the affected row count.
func (s *Store) ExecuteNonQuery(ctx context.Context, query string, args ...any) (int64, error) {
	n, err := s.exec(ctx, s.rebind(query), args)
	if err != nil {
		return 0, fail("execute non-query", "", err)
	}
	return n, nil
}

// Insert adds one row and returns its generated id, or 0 for tables without a
// numeric id column on dialects that need RETURNING.
func (s *Store) Insert(ctx context.Context, table string, fields Fields) (int64, error) {
	tbl, err := s.schema.table(table)
	if err != nil {
		return 0, fail("insert", table, err)
	}
	if err := s.schema.checkColumns(table, tbl, fields); err != nil {
		return 0, fail("insert", table, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(fields.names(), ", "), placeholders)
	dialect := s.conn.Dialect()
	returning := dialect.ReturningID() && tbl.idColumn != ""
	if returning {
		query += " RETURNING " + tbl.idColumn
	}
	query = dialect.Rebind(query, 0)

	var id int64
	err = s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		if returning {
			return c.QueryRowContext(ctx, query, fields.values()...).Scan(&id)
		}
		res, err := c.ExecContext(ctx, query, fields.values()...)
		if err != nil {
			return err
		}
		if dialect.ReturningID() {
			return nil
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fail("insert", table, err)
	}
	return id, nil
}

// Update assigns fields on rows matching where. The statement's arguments are
// the field values followed by whereArgs, so where's placeholders number after
// the SET clause.
func (s *Store) Update(ctx context.Context, table string, fields Fields, where string, whereArgs ...any) (int64, error) {
	tbl, err := s.schema.table(table)
	if err != nil {
		return 0, fail("update", table, err)
	}
	if err := s.schema.checkColumns(table, tbl, fields); err != nil {
		return 0, fail("update", table, err)
	}
	where, err = checkClause(where)
	if err != nil {
		return 0, fail("update", table, err)
	}

	sets := make([]string, len(fields))
	for i, name := range fields.names() {
		sets[i] = name + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), where)
	args := append(fields.values(), whereArgs...)

	n, err := s.exec(ctx, s.rebind(query), args)
	if err != nil {
		return 0, fail("update", table, err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, table string, where string, whereArgs ...any) (int64, error) {
	if _, err := s.schema.table(table); err != nil {
		return 0, fail("delete", table, err)
	}
	where, err := checkClause(where)
	if err != nil {
		return 0, fail("delete", table, err)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)
	n, err := s.exec(ctx, s.rebind(query), whereArgs)
	if err != nil {
		return 0, fail("delete", table, err)
	}
	return n, nil
}

// GetOne returns the first matching row, or nil when nothing matches.
func (s *Store) GetOne(ctx context.Context, table string, where string, args ...any) (Row, error) {
	rows, err := s.selectRows(ctx, "get one", table, where, " LIMIT 1", args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *Store) GetAll(ctx context.Context, table string, where string, args ...any) ([]Row, error) {
	return s.selectRows(ctx, "get all", table, where, "", args)
}

func (s *Store) Count(ctx context.Context, table string, where string, args ...any) (int64, error) {
	if _, err := s.schema.table(table); err != nil {
		return 0, fail("count", table, err)
	}
	where, err := checkClause(where)
	if err != nil {
		return 0, fail("count", table, err)
	}

	query := s.rebind(fmt.Sprintf("SELECT COUNT(*) AS count FROM %s WHERE %s", table, where))
	var n int64
	err = s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		err := c.QueryRowContext(ctx, query, args...).Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			n = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, fail("count", table, err)
	}
	return n, nil
}

// TableExists looks the table up in the engine catalog of the configured
// database.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	query, withDB := s.conn.Dialect().TableExistsQuery()
	args := []any{name}
	if withDB {
		args = []any{s.conn.Config().Database, name}
	}
	query = s.rebind(query)

	var n int64
	err := s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		err := c.QueryRowContext(ctx, query, args...).Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fail("table exists", name, err)
	}
	return n > 0, nil
}

func (s *Store) selectRows(ctx context.Context, op, table, where, suffix string, args []any) ([]Row, error) {
	if _, err := s.schema.table(table); err != nil {
		return nil, fail(op, table, err)
	}
	where, err := checkClause(where)
	if err != nil {
		return nil, fail(op, table, err)
	}

	query := s.rebind(fmt.Sprintf("SELECT * FROM %s WHERE %s%s", table, where, suffix))
	var out []Row
	err = s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		rows, err := c.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanRows(rows)
		return err
	})
	if err != nil {
		return nil, fail(op, table, err)
	}
	return out, nil
}

func (s *Store) exec(ctx context.Context, query string, args []any) (int64, error) {
	var n int64
	err := s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		res, err := c.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (s *Store) rebind(query string) string {
	return s.conn.Dialect().Rebind(query, 0)
}

// fail classifies err. Connection failures keep their type and gain
// ErrDataAccess; everything else becomes a *QueryError.
func fail(op, table string, err error) error {
	if errors.Is(err, dbconn.ErrConnection) {
		return fmt.Errorf("%w: %s: %w", ErrDataAccess, op, err)
	}
	return &QueryError{Op: op, Table: table, Err: err}
}
