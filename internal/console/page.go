package console

// Page identifies a navigation target.
type Page string

const (
	PageDashboard  Page = "dashboard"
	PageUserManage Page = "user_manage"
	PageTaskData   Page = "task_data"
	PageSettings   Page = "settings"
	PageLogout     Page = "logout"
)

var navigation = []struct {
	page  Page
	label string
}{
	{PageDashboard, "Dashboard"},
	{PageUserManage, "User management"},
	{PageTaskData, "Task management"},
	{PageSettings, "Settings"},
	{PageLogout, "Log out"},
}

func ParsePage(s string) (Page, bool) {
	for _, n := range navigation {
		if string(n.page) == s {
			return n.page, true
		}
	}
	return "", false
}

// NavItem is one sidebar entry. Active marks the current page, which the
// client renders as disabled.
type NavItem struct {
	Page   Page   `json:"page"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

func Navigation(current Page) []NavItem {
	out := make([]NavItem, 0, len(navigation))
	for _, n := range navigation {
		out = append(out, NavItem{Page: n.page, Label: n.label, Active: n.page == current})
	}
	return out
}
