package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"taskadmin/admin-console/internal/console"
	"taskadmin/admin-console/internal/pages"
	"taskadmin/admin-console/internal/sessionstore"
)

const (
	contextCookieName = "console_ctx"
	contextIDKey      = "cid"
)

// clientContext is the console state of one browser, found through the
// context id in the signed cookie.
type clientContext struct {
	id      string
	cookie  *sessions.Session
	session *console.Session
	params  console.Params
	release func()
}

type consoleResponse struct {
	Session *console.Session  `json:"session"`
	Params  console.Params    `json:"params"`
	Query   string            `json:"query"`
	Nav     []console.NavItem `json:"nav,omitempty"`
	View    *pages.View       `json:"view,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// loadContext resolves the client context and runs Initialize with the
// stored params overlaid by the request's token and page query values. The
// context stays locked until release; across processes the last save wins.
func (h *handler) loadContext(r *http.Request) (*clientContext, error) {
	// A cookie that fails verification comes back as a fresh session.
	cookie, err := h.Cookies.Get(r, contextCookieName)
	if err != nil {
		h.log.WithError(err).Debug("context cookie rejected")
	}
	if cookie == nil {
		cookie = sessions.NewSession(h.Cookies, contextCookieName)
	}
	id, _ := cookie.Values[contextIDKey].(string)
	if _, perr := uuid.Parse(id); perr != nil {
		id = uuid.NewString()
		cookie.Values[contextIDKey] = id
	}

	cc := &clientContext{id: id, cookie: cookie, params: console.Params{}, release: h.contexts.lock(id)}
	st, err := h.States.Load(r.Context(), id)
	if err != nil {
		cc.release()
		return nil, err
	}
	if st != nil {
		cc.session = st.Session
		for k, v := range st.Params {
			cc.params[k] = v
		}
	}
	for k, v := range console.ParamsFromQuery(r.URL.Query()) {
		cc.params[k] = v
	}
	cc.session = h.Console.Initialize(r.Context(), cc.session, cc.params)
	return cc, nil
}

func (h *handler) saveContext(w http.ResponseWriter, r *http.Request, cc *clientContext) error {
	if err := h.States.Save(r.Context(), cc.id, sessionstore.State{Session: cc.session, Params: cc.params}); err != nil {
		return err
	}
	cc.cookie.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   h.CookieMaxAge,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	return cc.cookie.Save(r, w)
}

// respond saves the context and writes the session with its rendered page.
// A logged-out session gets no view; the client shows the login form.
func (h *handler) respond(w http.ResponseWriter, r *http.Request, cc *clientContext, form url.Values, status int, errMsg string, view *pages.View) {
	if err := h.saveContext(w, r, cc); err != nil {
		h.log.WithError(err).Error("save client context failed")
		writeError(w, http.StatusInternalServerError, "save client context failed")
		return
	}

	resp := consoleResponse{
		Session: cc.session,
		Params:  cc.params,
		Query:   cc.params.Encode(),
		Error:   errMsg,
	}
	if cc.session.LoggedIn {
		resp.Nav = console.Navigation(cc.session.CurrentPage)
		if view == nil {
			v, err := h.Pages.Render(r.Context(), pages.Env{Session: cc.session, Form: form})
			if err != nil {
				h.log.WithError(err).Warn("render page failed")
				if resp.Error == "" {
					resp.Error = err.Error()
				}
			} else {
				view = &v
			}
		}
		resp.View = view
	}
	writeJSON(w, status, resp)
}

func (h *handler) contextOrFail(w http.ResponseWriter, r *http.Request) (*clientContext, bool) {
	if h.Console == nil || h.Pages == nil || h.States == nil || h.Cookies == nil {
		writeError(w, http.StatusServiceUnavailable, "console unavailable")
		return nil, false
	}
	cc, err := h.loadContext(r)
	if err != nil {
		h.log.WithError(err).Error("load client context failed")
		writeError(w, http.StatusServiceUnavailable, "client state unavailable")
		return nil, false
	}
	return cc, true
}

func (h *handler) handleConsole(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.contextOrFail(w, r)
	if !ok {
		return
	}
	defer cc.release()
	h.respond(w, r, cc, r.URL.Query(), http.StatusOK, "", nil)
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.contextOrFail(w, r)
	if !ok {
		return
	}
	defer cc.release()
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.Console.SubmitCredentials(r.Context(), cc.session, cc.params, req.Username, req.Password)
	switch {
	case err == nil:
		h.respond(w, r, cc, nil, http.StatusOK, "", nil)
	case errors.Is(err, console.ErrValidation):
		h.respond(w, r, cc, nil, http.StatusBadRequest, "username and password are required", nil)
	case errors.Is(err, console.ErrAuthentication):
		h.respond(w, r, cc, nil, http.StatusUnauthorized, "invalid username or password", nil)
	default:
		h.log.WithError(err).Error("login failed")
		writeError(w, http.StatusInternalServerError, "login failed")
	}
}

func (h *handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.contextOrFail(w, r)
	if !ok {
		return
	}
	defer cc.release()
	var req struct {
		Page string `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.Console.Navigate(r.Context(), cc.session, cc.params, req.Page)
	switch {
	case err == nil:
		h.respond(w, r, cc, nil, http.StatusOK, "", nil)
	case errors.Is(err, console.ErrNotLoggedIn):
		h.respond(w, r, cc, nil, http.StatusUnauthorized, "login required", nil)
	case errors.Is(err, console.ErrUnknownPage):
		h.respond(w, r, cc, nil, http.StatusBadRequest, "unknown page", nil)
	default:
		writeError(w, http.StatusInternalServerError, "navigation failed")
	}
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.contextOrFail(w, r)
	if !ok {
		return
	}
	defer cc.release()
	h.Console.Logout(r.Context(), cc.session, cc.params)
	h.respond(w, r, cc, nil, http.StatusOK, "", nil)
}

func (h *handler) handleAction(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.contextOrFail(w, r)
	if !ok {
		return
	}
	defer cc.release()
	if !cc.session.LoggedIn {
		h.respond(w, r, cc, nil, http.StatusUnauthorized, "login required", nil)
		return
	}
	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}

	view, err := h.Pages.Act(r.Context(), pages.Env{Session: cc.session, Form: form}, chi.URLParam(r, "action"))
	switch {
	case err == nil:
		h.respond(w, r, cc, nil, http.StatusOK, "", &view)
	case errors.Is(err, pages.ErrUnknownAction):
		h.respond(w, r, cc, nil, http.StatusNotFound, "unknown action", nil)
	case errors.Is(err, console.ErrNotLoggedIn):
		h.respond(w, r, cc, nil, http.StatusUnauthorized, "login required", nil)
	default:
		h.log.WithError(err).Error("page action failed")
		writeError(w, http.StatusInternalServerError, "action failed")
	}
}
