package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"taskadmin/admin-console/internal/dbconn"
)

//go:embed sql
var embedded embed.FS

var (
	ErrUnknownMigration = errors.New("migration does not exist")
	ErrChecksumMismatch = errors.New("applied migration was modified")
)

type FileInfo struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum"`
}

type Status struct {
	Name      string `json:"name"`
	Checksum  string `json:"checksum"`
	Applied   bool   `json:"applied"`
	AppliedAt string `json:"applied_at,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Conn is the part of *dbconn.Manager migrations run through.
type Conn interface {
	WithCursor(ctx context.Context, fn func(dbconn.Cursor) error) error
	Dialect() dbconn.Dialect
}

// Service applies the embedded SQL migrations of the connection's dialect and
// records them in schema_migrations.
type Service struct {
	conn    Conn
	fsys    fs.FS
	dir     string
	log     logrus.FieldLogger
	nowFunc func() time.Time
}

func NewService(conn Conn, logger logrus.FieldLogger) (*Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	dir := "sql/" + dialectDir(conn.Dialect())
	if _, err := fs.Stat(embedded, dir); err != nil {
		return nil, fmt.Errorf("no migrations for dialect %s: %w", conn.Dialect().Name(), err)
	}
	return newService(conn, embedded, dir, logger), nil
}

func newService(conn Conn, fsys fs.FS, dir string, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		conn:    conn,
		fsys:    fsys,
		dir:     dir,
		log:     logger.WithField("component", "migrations"),
		nowFunc: time.Now,
	}
}

func dialectDir(d dbconn.Dialect) string {
	if d.Name() == dbconn.DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

func (s *Service) List() ([]FileInfo, error) {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := fs.ReadFile(s.fsys, path.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, FileInfo{Name: e.Name(), Checksum: checksum(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Service) Status(ctx context.Context) ([]Status, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	applied, err := s.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(files))
	for _, f := range files {
		st := Status{Name: f.Name, Checksum: f.Checksum}
		if rec, ok := applied[f.Name]; ok {
			st.Applied = true
			st.AppliedAt = rec.appliedAt
			st.Modified = rec.checksum != "" && rec.checksum != f.Checksum
		}
		out = append(out, st)
	}
	return out, nil
}

// Apply runs every pending migration in name order, each in its own
// transaction, and returns the names applied. It stops at the first failure.
func (s *Service) Apply(ctx context.Context) ([]string, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, st := range status {
		if st.Modified {
			return done, fmt.Errorf("%w: %s", ErrChecksumMismatch, st.Name)
		}
		if st.Applied {
			continue
		}
		if err := s.applyOne(ctx, st.Name, st.Checksum); err != nil {
			return done, fmt.Errorf("apply migration %s: %w", st.Name, err)
		}
		s.log.WithField("migration", st.Name).Info("migration applied")
		done = append(done, st.Name)
	}
	return done, nil
}

// MarkApplied records a migration as applied without running it, for
// databases whose schema was created by other means.
func (s *Service) MarkApplied(ctx context.Context, name string, appliedAt time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" || !strings.HasSuffix(name, ".sql") || strings.Contains(name, "/") {
		return fmt.Errorf("invalid migration name")
	}
	b, err := fs.ReadFile(s.fsys, path.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrUnknownMigration
		}
		return fmt.Errorf("read migration: %w", err)
	}
	if err := s.ensureTable(ctx); err != nil {
		return err
	}
	return s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		return s.record(ctx, c, name, checksum(b), appliedAt)
	})
}

func (s *Service) applyOne(ctx context.Context, name, sum string) error {
	b, err := fs.ReadFile(s.fsys, path.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	return s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		for _, stmt := range splitStatements(string(b)) {
			if _, err := c.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return s.record(ctx, c, name, sum, s.nowFunc())
	})
}

func (s *Service) record(ctx context.Context, c dbconn.Cursor, name, sum string, at time.Time) error {
	d := s.conn.Dialect()
	if _, err := c.ExecContext(ctx, d.Rebind(`DELETE FROM schema_migrations WHERE name = ?`, 0), name); err != nil {
		return fmt.Errorf("clear migration record: %w", err)
	}
	q := d.Rebind(`INSERT INTO schema_migrations (name, checksum, applied_at) VALUES (?, ?, ?)`, 0)
	if _, err := c.ExecContext(ctx, q, name, sum, at.UTC()); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}

func (s *Service) ensureTable(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if s.conn.Dialect().Name() == dbconn.DriverSQLite {
		ts = "TIMESTAMP"
	}
	q := `CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	checksum TEXT NOT NULL DEFAULT '',
	applied_at ` + ts + ` NOT NULL
)`
	err := s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		_, err := c.ExecContext(ctx, q)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

type appliedRecord struct {
	checksum  string
	appliedAt string
}

func (s *Service) applied(ctx context.Context) (map[string]appliedRecord, error) {
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]appliedRecord)
	err := s.conn.WithCursor(ctx, func(c dbconn.Cursor) error {
		rows, err := c.QueryContext(ctx, `SELECT name, checksum, applied_at FROM schema_migrations`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			var rec appliedRecord
			var at time.Time
			if err := rows.Scan(&name, &rec.checksum, &at); err != nil {
				return err
			}
			rec.appliedAt = at.UTC().Format(time.RFC3339)
			out[name] = rec
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("query migration state: %w", err)
	}
	return out, nil
}

// splitStatements cuts a migration file at semicolons that end a line.
// Migration files must not put statement separators inside literals.
func splitStatements(src string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")); stmt != "" {
				out = append(out, stmt)
			}
			cur.Reset()
		}
	}
	if stmt := strings.TrimSpace(cur.String()); stmt != "" {
		out = append(out, strings.TrimSuffix(stmt, ";"))
	}
	return out
}

func checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
