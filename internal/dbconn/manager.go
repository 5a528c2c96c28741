package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

// Cursor is the statement surface handed to WithCursor callbacks. *sql.Tx
// satisfies it.
type Cursor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type opener func(driver, dsn string) (*sql.DB, error)

// Manager owns the connection pool for one database. It is safe for concurrent
// use; each WithCursor call runs on its own pooled connection.
type Manager struct {
	cfg     Config
	dialect Dialect
	open    opener
	log     logrus.FieldLogger

	reconnectMu sync.Mutex
	mu          sync.RWMutex
	db          *sql.DB
}

type Option func(*Manager)

func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func withOpener(fn opener) Option {
	return func(m *Manager) { m.open = fn }
}

func newManager(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConnectionError{Op: "validate config", Err: err}
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, &ConnectionError{Op: "validate config", Err: err}
	}

	m := &Manager{
		cfg:     cfg,
		dialect: dialect,
		open:    sql.Open,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithField("component", "dbconn")
	return m, nil
}

// Connect validates cfg, opens the pool and verifies it with a ping. It returns
// either a usable Manager or a *ConnectionError, never a half-open Manager.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	m, err := newManager(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.connect(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// FromDB wraps an already opened pool. Reconnect still reopens from cfg.
func FromDB(db *sql.DB, cfg Config, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	m, err := newManager(cfg, opts...)
	if err != nil {
		return nil, err
	}
	m.db = db
	return m, nil
}

func (m *Manager) connect(ctx context.Context) error {
	db, err := m.open(m.dialect.DriverName(), m.cfg.DSN())
	if err != nil {
		return &ConnectionError{Op: "open database", Err: err}
	}
	db.SetMaxOpenConns(m.cfg.MaxOpenConns)
	db.SetMaxIdleConns(m.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return &ConnectionError{Op: "ping database", Err: err}
	}

	m.mu.Lock()
	m.db = db
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"driver":   m.dialect.Name(),
		"host":     m.cfg.Host,
		"database": m.cfg.Database,
	}).Info("database connected")
	return nil
}

func (m *Manager) pool() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) Dialect() Dialect { return m.dialect }

// IsConnected pings the pool. A failed probe triggers one transparent reconnect;
// the result reflects whether a live pool is available afterwards.
func (m *Manager) IsConnected(ctx context.Context) bool {
	if db := m.pool(); db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return true
		}
		m.log.WithError(err).Warn("database ping failed, reconnecting")
	}
	if err := m.Reconnect(ctx); err != nil {
		m.log.WithError(err).Error("database reconnect failed")
		return false
	}
	return true
}

// Reconnect closes the current pool, if any, and opens a fresh one.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	m.closePool()
	return m.connect(ctx)
}

// Close releases the pool. Calling it more than once is harmless.
func (m *Manager) Close() error {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()
	return m.closePool()
}

func (m *Manager) closePool() error {
	m.mu.Lock()
	old := m.db
	m.db = nil
	m.mu.Unlock()
	if old == nil {
		return nil
	}
	if err := old.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (m *Manager) Stats() sql.DBStats {
	if db := m.pool(); db != nil {
		return db.Stats()
	}
	return sql.DBStats{}
}

// WithCursor runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back when fn returns an error or panics; either way it
// is finished before WithCursor returns. fn's error is returned unchanged.
func (m *Manager) WithCursor(ctx context.Context, fn func(Cursor) error) error {
	if !m.IsConnected(ctx) {
		return &ConnectionError{Op: "acquire cursor", Err: errNotConnected}
	}
	db := m.pool()
	if db == nil {
		return &ConnectionError{Op: "acquire cursor", Err: errNotConnected}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &ConnectionError{Op: "begin transaction", Err: err}
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.log.WithError(rbErr).Warn("rollback failed")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		committed = true
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
