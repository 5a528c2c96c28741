package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskadmin/admin-console/internal/store"
)

const upsertStateQuery = `INSERT INTO console_states (id, payload, expires_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at, updated_at = excluded.updated_at`

// Records is the CRUD surface SQLStore needs.
type Records interface {
	ExecuteNonQuery(ctx context.Context, query string, args ...any) (int64, error)
	GetOne(ctx context.Context, table, where string, args ...any) (store.Row, error)
	Delete(ctx context.Context, table, where string, whereArgs ...any) (int64, error)
}

// SQLStore keeps states in the console_states table.
type SQLStore struct {
	records Records
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewSQLStore(records Records, ttl time.Duration) (*SQLStore, error) {
	if records == nil {
		return nil, fmt.Errorf("records are required")
	}
	return &SQLStore{records: records, ttl: ttl, nowFunc: time.Now}, nil
}

func (s *SQLStore) Load(ctx context.Context, id string) (*State, error) {
	row, err := s.records.GetOne(ctx, "console_states", "id = ? AND expires_at > ?", id, s.nowFunc().UTC())
	if err != nil {
		return nil, fmt.Errorf("load client state: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	var st State
	if err := json.Unmarshal([]byte(row.String("payload")), &st); err != nil {
		return nil, fmt.Errorf("decode client state: %w", err)
	}
	return &st, nil
}

func (s *SQLStore) Save(ctx context.Context, id string, st State) error {
	now := s.nowFunc().UTC()
	st.ExpiresAt = expiry(now, s.ttl)
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode client state: %w", err)
	}
	if _, err := s.records.ExecuteNonQuery(ctx, upsertStateQuery, id, string(b), st.ExpiresAt, now); err != nil {
		return fmt.Errorf("save client state: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.records.Delete(ctx, "console_states", "id = ?", id); err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}
	return nil
}

func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	n, err := s.records.Delete(ctx, "console_states", "expires_at <= ?", s.nowFunc().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge client states: %w", err)
	}
	return n, nil
}
