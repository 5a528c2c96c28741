package pages

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"taskadmin/admin-console/internal/auth"
	"taskadmin/admin-console/internal/console"
	"taskadmin/admin-console/internal/store"
)

var ErrUnknownAction = errors.New("unknown action")

// Records is the CRUD surface the pages read and write through.
type Records interface {
	Execute(ctx context.Context, query string, args ...any) ([]store.Row, error)
	GetAll(ctx context.Context, table, where string, args ...any) ([]store.Row, error)
	Count(ctx context.Context, table, where string, args ...any) (int64, error)
	Insert(ctx context.Context, table string, fields store.Fields) (int64, error)
	Update(ctx context.Context, table string, fields store.Fields, where string, whereArgs ...any) (int64, error)
}

type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, id int64, email, passwordHash string) error
}

type AuditLogger interface {
	Log(actor, action, target, outcome, detail string) error
}

// Env is what a page handler gets for one request: the session and the
// submitted form or filter values.
type Env struct {
	Session *console.Session
	Form    url.Values
}

// View is a rendered page. Error carries an inline message when part of the
// page could not be loaded; the rest of the view is still usable.
type View struct {
	Page   console.Page `json:"page"`
	Title  string       `json:"title"`
	Data   any          `json:"data,omitempty"`
	Notice string       `json:"notice,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type renderFunc func(ctx context.Context, env Env) View

// actionFunc performs a form submission. It returns a notice on success or an
// inline error message; the owning page is rendered afterwards either way.
type actionFunc func(ctx context.Context, env Env) (notice string, errMsg string)

type action struct {
	page console.Page
	run  actionFunc
}

type Deps struct {
	Records  Records
	Profiles ProfileUpdater
	Audit    AuditLogger
	Logger   logrus.FieldLogger
}

// Router maps page ids and form actions to their handlers.
type Router struct {
	records  Records
	profiles ProfileUpdater
	audit    AuditLogger
	log      logrus.FieldLogger
	nowFunc  func() time.Time
	hashFunc func(string) (string, error)

	pages   map[console.Page]renderFunc
	actions map[string]action
}

func NewRouter(deps Deps) (*Router, error) {
	if deps.Records == nil {
		return nil, fmt.Errorf("records are required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("profile updater is required")
	}
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &Router{
		records:  deps.Records,
		profiles: deps.Profiles,
		audit:    deps.Audit,
		log:      log.WithField("component", "pages"),
		nowFunc:  time.Now,
		hashFunc: auth.HashPassword,
	}
	r.pages = map[console.Page]renderFunc{
		console.PageDashboard:  r.dashboard,
		console.PageUserManage: r.userManage,
		console.PageTaskData:   r.taskData,
		console.PageSettings:   r.settings,
	}
	r.actions = map[string]action{
		"add_user":       {page: console.PageUserManage, run: r.addUser},
		"save_settings":  {page: console.PageSettings, run: r.saveSettings},
		"update_profile": {page: console.PageSettings, run: r.updateProfile},
	}
	return r, nil
}

// Render draws the session's current page.
func (r *Router) Render(ctx context.Context, env Env) (View, error) {
	if env.Session == nil || !env.Session.LoggedIn {
		return View{}, console.ErrNotLoggedIn
	}
	render, ok := r.pages[env.Session.CurrentPage]
	if !ok {
		return View{}, fmt.Errorf("%w: %q", console.ErrUnknownPage, env.Session.CurrentPage)
	}
	return render(ctx, env), nil
}

// Act runs a form action and renders the page that owns it.
func (r *Router) Act(ctx context.Context, env Env, name string) (View, error) {
	if env.Session == nil || !env.Session.LoggedIn {
		return View{}, console.ErrNotLoggedIn
	}
	a, ok := r.actions[name]
	if !ok {
		return View{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}

	notice, errMsg := a.run(ctx, env)
	view := r.pages[a.page](ctx, Env{Session: env.Session})
	if notice != "" {
		view.Notice = notice
	}
	if errMsg != "" {
		view.Error = errMsg
	}
	return view, nil
}

// dataError logs a data access failure and returns the inline message shown
// in its place.
func (r *Router) dataError(what string, err error) string {
	r.log.WithError(err).Warn(what + " failed")
	return what + " failed"
}

func (r *Router) auditLog(actor, action, target string, err error) {
	if r.audit == nil {
		return
	}
	outcome, detail := "success", ""
	if err != nil {
		outcome, detail = "failed", err.Error()
	}
	if aerr := r.audit.Log(actor, action, target, outcome, detail); aerr != nil {
		r.log.WithError(aerr).Warn("audit write failed")
	}
}
