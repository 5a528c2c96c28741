package pages

import (
	"context"

	"taskadmin/admin-console/internal/console"
)

type DashboardData struct {
	Admin *AdminSummary `json:"admin,omitempty"`
	Stats *Stats        `json:"stats,omitempty"`
}

type AdminSummary struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type Stats struct {
	TotalUsers   int64 `json:"total_users"`
	RunningUsers int64 `json:"running_users"`
	TotalTasks   int64 `json:"total_tasks"`
	RunningTasks int64 `json:"running_tasks"`
}

func (r *Router) dashboard(ctx context.Context, env Env) View {
	view := View{Page: console.PageDashboard, Title: "Dashboard"}
	data := DashboardData{}

	if info := env.Session.UserInfo; info != nil {
		data.Admin = &AdminSummary{
			Username:  info.String("username"),
			Email:     info.String("email"),
			CreatedAt: info.String("created_at"),
		}
	}

	var stats Stats
	counts := []struct {
		dst   *int64
		table string
		where string
	}{
		{&stats.TotalUsers, "users", ""},
		{&stats.RunningUsers, "users", "is_running = 1"},
		{&stats.TotalTasks, "tasks", ""},
		{&stats.RunningTasks, "tasks", "is_run = 1"},
	}
	for _, c := range counts {
		n, err := r.records.Count(ctx, c.table, c.where)
		if err != nil {
			view.Error = r.dataError("load statistics", err)
			view.Data = data
			return view
		}
		*c.dst = n
	}
	data.Stats = &stats
	view.Data = data
	return view
}
