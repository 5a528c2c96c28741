package console

import (
	"net/url"

	"taskadmin/admin-console/internal/store"
)

// Session is the per-client console state. When LoggedIn is false, Username is
// empty and UserInfo is nil.
type Session struct {
	LoggedIn    bool      `json:"logged_in"`
	Username    string    `json:"username"`
	UserInfo    store.Row `json:"user_info"`
	CurrentPage Page      `json:"current_page"`
}

func NewSession() *Session {
	return &Session{CurrentPage: PageDashboard}
}

// AdminID returns the id column of the logged-in admin row, or 0.
func (s *Session) AdminID() int64 {
	if s == nil || s.UserInfo == nil {
		return 0
	}
	return s.UserInfo.Int64("id")
}

func (s *Session) reset() {
	s.LoggedIn = false
	s.Username = ""
	s.UserInfo = nil
	s.CurrentPage = PageDashboard
}

const (
	ParamToken = "token"
	ParamPage  = "page"
)

// Params are the values the client carries between requests, like query
// parameters on a bookmarked URL.
type Params map[string]string

// ParamsFromQuery keeps the known keys of q.
func ParamsFromQuery(q url.Values) Params {
	p := Params{}
	for _, k := range []string{ParamToken, ParamPage} {
		if v := q.Get(k); v != "" {
			p[k] = v
		}
	}
	return p
}

func (p Params) Token() string { return p[ParamToken] }

func (p Params) Page() string { return p[ParamPage] }

func (p Params) Clear() {
	for k := range p {
		delete(p, k)
	}
}

// Encode renders p as a URL query string.
func (p Params) Encode() string {
	q := url.Values{}
	for k, v := range p {
		q.Set(k, v)
	}
	return q.Encode()
}
