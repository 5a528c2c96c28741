package console

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskadmin/admin-console/internal/auth"
	"taskadmin/admin-console/internal/observability"
	"taskadmin/admin-console/internal/store"
)

type fakeRecords struct {
	getOneFn func(table, where string, args ...any) (store.Row, error)
}

func (f *fakeRecords) GetOne(_ context.Context, table, where string, args ...any) (store.Row, error) {
	return f.getOneFn(table, where, args...)
}

type auditEntry struct {
	actor, action, outcome string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (f *fakeAudit) Log(actor, action, _, outcome, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, auditEntry{actor, action, outcome})
	return nil
}

var (
	hashOnce  sync.Once
	rightHash string
	hashErr   error
)

func storedHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() { rightHash, hashErr = auth.HashPassword("right") })
	if hashErr != nil {
		t.Fatalf("HashPassword() error: %v", hashErr)
	}
	return rightHash
}

func adminRecords(t *testing.T) *fakeRecords {
	hash := storedHash(t)
	return &fakeRecords{getOneFn: func(table, where string, args ...any) (store.Row, error) {
		if table != "admins" || where != "username = ?" {
			t.Fatalf("unexpected lookup %s WHERE %s", table, where)
		}
		if args[0] != "admin" {
			return nil, nil
		}
		return store.Row{
			"id":         int64(1),
			"username":   "admin",
			"password":   hash,
			"email":      "admin@example.com",
			"created_at": "2026-01-01T00:00:00Z",
		}, nil
	}}
}

func newTestMachine(t *testing.T, records Records, tokens Tokens) (*Machine, *fakeAudit) {
	t.Helper()
	a := &fakeAudit{}
	m, err := NewMachine(records, MachineConfig{Tokens: tokens, Audit: a, Logger: observability.Discard()})
	if err != nil {
		t.Fatalf("NewMachine() error: %v", err)
	}
	return m, a
}

func assertLoggedOut(t *testing.T, s *Session) {
	t.Helper()
	if s.LoggedIn || s.Username != "" || s.UserInfo != nil {
		t.Fatalf("expected logged out session, got %+v", s)
	}
}

func TestSubmitCredentialsEmptyPassword(t *testing.T) {
	calls := 0
	records := &fakeRecords{getOneFn: func(string, string, ...any) (store.Row, error) {
		calls++
		return nil, nil
	}}
	m, _ := newTestMachine(t, records, auth.LegacyTokens{})
	s := NewSession()
	params := Params{}

	err := m.SubmitCredentials(context.Background(), s, params, "admin", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	assertLoggedOut(t, s)
	if calls != 0 || len(params) != 0 {
		t.Fatalf("validation failure must not touch storage or params, calls=%d params=%v", calls, params)
	}
}

func TestSubmitCredentialsWrongPassword(t *testing.T) {
	m, a := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	s := NewSession()
	params := Params{}

	err := m.SubmitCredentials(context.Background(), s, params, "admin", "wrong")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	if errors.Is(err, ErrAuthLookup) {
		t.Fatalf("wrong password must not be reported as lookup failure")
	}
	assertLoggedOut(t, s)
	if params.Token() != "" {
		t.Fatalf("token must not be emitted on failure")
	}
	if len(a.entries) != 1 || a.entries[0].outcome != "failed" {
		t.Fatalf("expected one failed audit entry, got %+v", a.entries)
	}
}

func TestSubmitCredentialsUnusableStoredHash(t *testing.T) {
	records := &fakeRecords{getOneFn: func(table, where string, args ...any) (store.Row, error) {
		return store.Row{
			"id":       int64(1),
			"username": "admin",
			"password": "$argon2id$v=19$m=65536,t=3,p=0$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		}, nil
	}}
	m, a := newTestMachine(t, records, auth.LegacyTokens{})
	s := NewSession()

	err := m.SubmitCredentials(context.Background(), s, Params{}, "admin", "whatever1")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	assertLoggedOut(t, s)
	if len(a.entries) != 1 || a.entries[0].outcome != "failed" {
		t.Fatalf("expected one failed audit entry, got %+v", a.entries)
	}
}

func TestSubmitCredentialsUnknownUser(t *testing.T) {
	m, _ := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	s := NewSession()

	err := m.SubmitCredentials(context.Background(), s, Params{}, "ghost", "right")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	assertLoggedOut(t, s)
}

func TestSubmitCredentialsSuccessLegacyToken(t *testing.T) {
	m, a := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	s := NewSession()
	params := Params{}

	if err := m.SubmitCredentials(context.Background(), s, params, "admin", "right"); err != nil {
		t.Fatalf("SubmitCredentials() error: %v", err)
	}
	if !s.LoggedIn || s.Username != "admin" {
		t.Fatalf("expected admin to be logged in, got %+v", s)
	}
	if s.UserInfo == nil || s.UserInfo.String("email") != "admin@example.com" {
		t.Fatalf("expected user info to be loaded, got %+v", s.UserInfo)
	}
	if _, ok := s.UserInfo["password"]; ok {
		t.Fatalf("user info must not carry the password hash")
	}
	if params.Token() != "admin" {
		t.Fatalf("expected legacy token admin, got %q", params.Token())
	}
	if s.AdminID() != 1 {
		t.Fatalf("expected admin id 1, got %d", s.AdminID())
	}
	if len(a.entries) != 1 || a.entries[0] != (auditEntry{"admin", "console.login", "success"}) {
		t.Fatalf("unexpected audit entries: %+v", a.entries)
	}
}

func TestSubmitCredentialsSuccessSignedToken(t *testing.T) {
	signer, err := auth.NewTokenSigner("0123456789abcdef-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenSigner() error: %v", err)
	}
	m, _ := newTestMachine(t, adminRecords(t), signer)
	s := NewSession()
	params := Params{}

	if err := m.SubmitCredentials(context.Background(), s, params, "admin", "right"); err != nil {
		t.Fatalf("SubmitCredentials() error: %v", err)
	}
	username, err := signer.Verify(params.Token())
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if username != "admin" {
		t.Fatalf("expected token subject admin, got %q", username)
	}
}

func TestSubmitCredentialsLookupFailure(t *testing.T) {
	records := &fakeRecords{getOneFn: func(string, string, ...any) (store.Row, error) {
		return nil, store.ErrDataAccess
	}}
	m, _ := newTestMachine(t, records, auth.LegacyTokens{})
	s := NewSession()

	err := m.SubmitCredentials(context.Background(), s, Params{}, "admin", "right")
	if !errors.Is(err, ErrAuthentication) || !errors.Is(err, ErrAuthLookup) {
		t.Fatalf("expected authentication+lookup error, got %v", err)
	}
	assertLoggedOut(t, s)
}

func TestTokenRevalidateLegacy(t *testing.T) {
	m, _ := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	params := Params{ParamToken: "admin"}

	s := m.Initialize(context.Background(), nil, params)
	if !s.LoggedIn || s.Username != "admin" {
		t.Fatalf("expected legacy token to log in admin, got %+v", s)
	}
	if s.UserInfo.String("username") != "admin" {
		t.Fatalf("expected user info to be loaded, got %+v", s.UserInfo)
	}
	if s.CurrentPage != PageDashboard {
		t.Fatalf("expected dashboard, got %q", s.CurrentPage)
	}
}

func TestTokenRevalidateUserInfoIsBestEffort(t *testing.T) {
	records := &fakeRecords{getOneFn: func(string, string, ...any) (store.Row, error) {
		return nil, store.ErrDataAccess
	}}
	m, _ := newTestMachine(t, records, auth.LegacyTokens{})

	s := m.Initialize(context.Background(), nil, Params{ParamToken: "admin"})
	if !s.LoggedIn || s.Username != "admin" || s.UserInfo != nil {
		t.Fatalf("expected login without user info, got %+v", s)
	}
}

func TestTokenRevalidateRejectsUnsignedToken(t *testing.T) {
	signer, _ := auth.NewTokenSigner("0123456789abcdef-secret", time.Hour)
	m, a := newTestMachine(t, adminRecords(t), signer)
	params := Params{ParamToken: "admin", ParamPage: "settings"}

	s := m.Initialize(context.Background(), nil, params)
	assertLoggedOut(t, s)
	if _, ok := params[ParamToken]; ok {
		t.Fatalf("stale token must be dropped, params=%v", params)
	}
	if params.Page() != "settings" {
		t.Fatalf("page parameter must survive, params=%v", params)
	}
	if len(a.entries) != 1 || a.entries[0].action != "console.token_revalidate" || a.entries[0].outcome != "failed" {
		t.Fatalf("unexpected audit entries: %+v", a.entries)
	}
}

func TestInitializePageHint(t *testing.T) {
	m, _ := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})

	s := m.Initialize(context.Background(), nil, Params{ParamPage: "task_data"})
	assertLoggedOut(t, s)
	if s.CurrentPage != PageTaskData {
		t.Fatalf("expected page hint to be adopted, got %q", s.CurrentPage)
	}

	s = m.Initialize(context.Background(), nil, Params{ParamPage: "nowhere"})
	if s.CurrentPage != PageDashboard {
		t.Fatalf("expected unknown hint to be ignored, got %q", s.CurrentPage)
	}

	s = m.Initialize(context.Background(), nil, Params{ParamPage: "logout"})
	if s.CurrentPage != PageDashboard {
		t.Fatalf("expected logout hint to be ignored, got %q", s.CurrentPage)
	}
}

func TestInitializeKeepsLoggedInSession(t *testing.T) {
	m, _ := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	s := &Session{LoggedIn: true, Username: "admin", CurrentPage: PageSettings}

	got := m.Initialize(context.Background(), s, Params{ParamPage: "task_data", ParamToken: "other"})
	if got != s || got.CurrentPage != PageSettings || got.Username != "admin" {
		t.Fatalf("logged in session must be left alone, got %+v", got)
	}
}

func TestNavigate(t *testing.T) {
	m, _ := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	ctx := context.Background()

	s := NewSession()
	params := Params{}
	if err := m.Navigate(ctx, s, params, "settings"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}

	if err := m.SubmitCredentials(ctx, s, params, "admin", "right"); err != nil {
		t.Fatalf("SubmitCredentials() error: %v", err)
	}
	if err := m.Navigate(ctx, s, params, "reports"); !errors.Is(err, ErrUnknownPage) {
		t.Fatalf("expected ErrUnknownPage, got %v", err)
	}
	if err := m.Navigate(ctx, s, params, "user_manage"); err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if s.CurrentPage != PageUserManage || params.Page() != "user_manage" {
		t.Fatalf("expected user_manage in session and params, got %q / %v", s.CurrentPage, params)
	}
}

func TestNavigateLogoutTriggersLogout(t *testing.T) {
	m, a := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	ctx := context.Background()
	s := NewSession()
	params := Params{}

	if err := m.SubmitCredentials(ctx, s, params, "admin", "right"); err != nil {
		t.Fatalf("SubmitCredentials() error: %v", err)
	}
	if err := m.Navigate(ctx, s, params, "task_data"); err != nil {
		t.Fatalf("Navigate() error: %v", err)
	}
	if err := m.Navigate(ctx, s, params, "logout"); err != nil {
		t.Fatalf("Navigate(logout) error: %v", err)
	}

	assertLoggedOut(t, s)
	if s.CurrentPage != PageDashboard {
		t.Fatalf("expected dashboard after logout, got %q", s.CurrentPage)
	}
	if len(params) != 0 {
		t.Fatalf("expected params to be cleared, got %v", params)
	}
	last := a.entries[len(a.entries)-1]
	if last != (auditEntry{"admin", "console.logout", "success"}) {
		t.Fatalf("unexpected last audit entry: %+v", last)
	}
}

func TestLogoutResetsSession(t *testing.T) {
	m, _ := newTestMachine(t, adminRecords(t), auth.LegacyTokens{})
	s := &Session{LoggedIn: true, Username: "admin", UserInfo: store.Row{"id": int64(1)}, CurrentPage: PageSettings}
	params := Params{ParamToken: "admin", ParamPage: "settings"}

	m.Logout(context.Background(), s, params)
	assertLoggedOut(t, s)
	if s.CurrentPage != PageDashboard || len(params) != 0 {
		t.Fatalf("unexpected state after logout: %+v %v", s, params)
	}
}

func TestNewMachineRequiresDeps(t *testing.T) {
	if _, err := NewMachine(nil, MachineConfig{Tokens: auth.LegacyTokens{}}); err == nil {
		t.Fatalf("expected error without records")
	}
	if _, err := NewMachine(&fakeRecords{}, MachineConfig{}); err == nil {
		t.Fatalf("expected error without tokens")
	}
}
