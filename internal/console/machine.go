package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"taskadmin/admin-console/internal/auth"
	"taskadmin/admin-console/internal/store"
)

// Records is the lookup the machine needs from the CRUD layer.
type Records interface {
	GetOne(ctx context.Context, table, where string, args ...any) (store.Row, error)
}

// Tokens issues the persisted session token and resolves it back to a
// username. *auth.TokenSigner and auth.LegacyTokens implement it.
type Tokens interface {
	Issue(username string) (string, error)
	Verify(token string) (string, error)
}

type AuditLogger interface {
	Log(actor, action, target, outcome, detail string) error
}

type MachineConfig struct {
	Tokens Tokens
	Audit  AuditLogger
	Logger logrus.FieldLogger
}

// Machine drives the login state of console sessions. It keeps no state of
// its own; every call acts on the Session and Params it is given.
type Machine struct {
	records Records
	tokens  Tokens
	audit   AuditLogger
	log     logrus.FieldLogger
}

func NewMachine(records Records, cfg MachineConfig) (*Machine, error) {
	if records == nil {
		return nil, fmt.Errorf("records are required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Machine{
		records: records,
		tokens:  cfg.Tokens,
		audit:   cfg.Audit,
		log:     log.WithField("component", "console"),
	}, nil
}

// Initialize prepares s for a request carrying params. A nil s starts a fresh
// logged-out session. While logged out, a valid page hint is adopted and a
// token triggers TokenRevalidate.
func (m *Machine) Initialize(ctx context.Context, s *Session, params Params) *Session {
	if s == nil {
		s = NewSession()
	}
	if s.CurrentPage == "" {
		s.CurrentPage = PageDashboard
	}
	if s.LoggedIn {
		return s
	}

	if hint := params.Page(); hint != "" {
		if p, ok := ParsePage(hint); ok && p != PageLogout {
			s.CurrentPage = p
		}
	}
	if params.Token() != "" {
		if err := m.TokenRevalidate(ctx, s, params); err != nil {
			m.log.WithError(err).Info("persisted token rejected")
		}
	}
	return s
}

// TokenRevalidate resumes a session from the persisted token. A token that
// fails verification is removed from params and the session stays logged out.
func (m *Machine) TokenRevalidate(ctx context.Context, s *Session, params Params) error {
	token := params.Token()
	if s.LoggedIn || token == "" {
		return nil
	}

	username, err := m.tokens.Verify(token)
	if err != nil {
		delete(params, ParamToken)
		m.auditLog("", "console.token_revalidate", outcomeOf(false), err.Error())
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	s.LoggedIn = true
	s.Username = username
	s.UserInfo = m.loadUserInfo(ctx, username)
	m.auditLog(username, "console.token_revalidate", outcomeOf(true), "")
	return nil
}

// SubmitCredentials checks username and password against the admins table.
// On success the session is logged in and params gains the token.
func (m *Machine) SubmitCredentials(ctx context.Context, s *Session, params Params, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrValidation
	}

	row, err := m.records.GetOne(ctx, "admins", "username = ?", username)
	if err != nil {
		m.log.WithError(err).WithField("username", username).Error("credential lookup failed")
		m.auditLog(username, "console.login", outcomeOf(false), "lookup failed")
		return fmt.Errorf("%w: %w", ErrAuthentication, ErrAuthLookup)
	}
	if row == nil {
		m.auditLog(username, "console.login", outcomeOf(false), "unknown user")
		return ErrAuthentication
	}

	ok, err := auth.VerifyPassword(password, row.String("password"))
	if err != nil {
		m.log.WithError(err).WithField("username", username).Warn("stored password hash unreadable")
	}
	if !ok {
		m.auditLog(username, "console.login", outcomeOf(false), "bad password")
		return ErrAuthentication
	}

	token, err := m.tokens.Issue(username)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	s.LoggedIn = true
	s.Username = username
	s.UserInfo = row.Clone("password")
	params[ParamToken] = token
	m.auditLog(username, "console.login", outcomeOf(true), "")
	return nil
}

// Navigate moves a logged-in session to page. Selecting the logout target logs
// the session out instead.
func (m *Machine) Navigate(ctx context.Context, s *Session, params Params, page string) error {
	if !s.LoggedIn {
		return ErrNotLoggedIn
	}
	p, ok := ParsePage(page)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	if p == PageLogout {
		m.Logout(ctx, s, params)
		return nil
	}
	s.CurrentPage = p
	params[ParamPage] = string(p)
	return nil
}

// Logout resets s and clears every persisted parameter.
func (m *Machine) Logout(_ context.Context, s *Session, params Params) {
	actor := s.Username
	s.reset()
	params.Clear()
	if actor != "" {
		m.auditLog(actor, "console.logout", outcomeOf(true), "")
	}
}

func (m *Machine) loadUserInfo(ctx context.Context, username string) store.Row {
	row, err := m.records.GetOne(ctx, "admins", "username = ?", username)
	if err != nil {
		m.log.WithError(err).WithField("username", username).Warn("load admin info failed")
		return nil
	}
	return row.Clone("password")
}

func (m *Machine) auditLog(actor, action, outcome, detail string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(actor, action, "", outcome, detail); err != nil {
		m.log.WithError(err).Warn("audit write failed")
	}
}

func outcomeOf(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}
