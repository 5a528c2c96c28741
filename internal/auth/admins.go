package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskadmin/admin-console/internal/store"
)

var ErrAdminNotFound = errors.New("admin not found")

type Admin struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at"`
}

// Records is the subset of *store.Store used for admin rows.
type Records interface {
	GetOne(ctx context.Context, table, where string, args ...any) (store.Row, error)
	Insert(ctx context.Context, table string, fields store.Fields) (int64, error)
	Update(ctx context.Context, table string, fields store.Fields, where string, whereArgs ...any) (int64, error)
}

// AdminStore reads and writes the admins table.
type AdminStore struct {
	records Records
	nowFunc func() time.Time
}

func NewAdminStore(records Records) (*AdminStore, error) {
	if records == nil {
		return nil, fmt.Errorf("records are required")
	}
	return &AdminStore{records: records, nowFunc: time.Now}, nil
}

func (s *AdminStore) GetByUsername(ctx context.Context, username string) (Admin, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Admin{}, ErrAdminNotFound
	}
	row, err := s.records.GetOne(ctx, "admins", "username = ?", username)
	if err != nil {
		return Admin{}, fmt.Errorf("query admin: %w", err)
	}
	if row == nil {
		return Admin{}, ErrAdminNotFound
	}
	return adminFromRow(row), nil
}

// EnsureAdmin creates the admin when no row with that username exists. It
// reports whether a row was inserted.
func (s *AdminStore) EnsureAdmin(ctx context.Context, username, passwordHash, email string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return false, fmt.Errorf("username and password hash are required")
	}
	_, err := s.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrAdminNotFound) {
		return false, err
	}

	now := s.nowFunc().UTC()
	if _, err := s.records.Insert(ctx, "admins", store.Fields{
		{Name: "username", Value: username},
		{Name: "password", Value: passwordHash},
		{Name: "email", Value: strings.TrimSpace(email)},
		{Name: "created_at", Value: now},
		{Name: "updated_at", Value: now},
	}); err != nil {
		return false, fmt.Errorf("insert admin: %w", err)
	}
	return true, nil
}

// UpdateProfile sets the email and, when passwordHash is not empty, the
// password of the admin with the given id.
func (s *AdminStore) UpdateProfile(ctx context.Context, id int64, email, passwordHash string) error {
	fields := store.Fields{
		{Name: "email", Value: strings.TrimSpace(email)},
		{Name: "updated_at", Value: s.nowFunc().UTC()},
	}
	if passwordHash != "" {
		fields = append(fields, store.Field{Name: "password", Value: passwordHash})
	}
	n, err := s.records.Update(ctx, "admins", fields, "id = ?", id)
	if err != nil {
		return fmt.Errorf("update admin profile: %w", err)
	}
	if n == 0 {
		return ErrAdminNotFound
	}
	return nil
}

func adminFromRow(row store.Row) Admin {
	return Admin{
		ID:           row.Int64("id"),
		Username:     row.String("username"),
		Email:        row.String("email"),
		PasswordHash: row.String("password"),
		CreatedAt:    row.String("created_at"),
	}
}
