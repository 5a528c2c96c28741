package pages

import (
	"context"
	"strings"
	"time"

	"taskadmin/admin-console/internal/console"
	"taskadmin/admin-console/internal/store"
)

const (
	dateLayout      = "2006-01-02"
	allTasks        = "All_Task"
	allUsers        = "All_User"
	defaultLookback = 7 * 24 * time.Hour

	listTasksQuery = `SELECT task_id, is_run, task_name, channel, task_group, weight, click_rate, task_urls, user_name, updated_at
FROM tasks`
)

// TaskFilter is the task_data query. Empty TaskID or UserName means all.
type TaskFilter struct {
	TaskID    string `json:"task_id"`
	UserName  string `json:"user_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Active    bool   `json:"active"`
}

type TaskData struct {
	Filter    TaskFilter  `json:"filter"`
	TaskIDs   []string    `json:"task_ids"`
	UserNames []string    `json:"user_names"`
	Tasks     []store.Row `json:"tasks"`
}

func (r *Router) taskData(ctx context.Context, env Env) View {
	view := View{Page: console.PageTaskData, Title: "Task management"}
	data := TaskData{
		TaskIDs:   []string{allTasks},
		UserNames: []string{allUsers},
		Tasks:     []store.Row{},
	}

	filter, where, args, msg := r.parseTaskFilter(env)
	data.Filter = filter
	if msg != "" {
		view.Error = msg
	}

	query := listTasksQuery
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY task_id"
	tasks, err := r.records.Execute(ctx, query, args...)
	if err != nil {
		view.Error = r.dataError("load task list", err)
		view.Data = data
		return view
	}
	flagColumn(tasks, "is_run")
	data.Tasks = tasks

	ids, err := r.records.Execute(ctx, `SELECT task_id FROM tasks ORDER BY task_id`)
	if err != nil {
		view.Error = r.dataError("load task ids", err)
		view.Data = data
		return view
	}
	for _, row := range ids {
		data.TaskIDs = append(data.TaskIDs, row.String("task_id"))
	}

	users, err := r.records.Execute(ctx, `SELECT DISTINCT user_name FROM users WHERE user_name IS NOT NULL ORDER BY user_name`)
	if err != nil {
		view.Error = r.dataError("load user names", err)
		view.Data = data
		return view
	}
	for _, row := range users {
		if name := row.String("user_name"); name != "" {
			data.UserNames = append(data.UserNames, name)
		}
	}

	view.Data = data
	return view
}

// parseTaskFilter turns the submitted filter into a where clause. Filtering is
// active once any filter key is present; the date range then defaults to the
// last seven days. An unparsable date is reported and its default used.
func (r *Router) parseTaskFilter(env Env) (TaskFilter, string, []any, string) {
	form := env.Form
	var f TaskFilter
	for _, k := range []string{"task_id", "user_name", "start_date", "end_date"} {
		if form.Has(k) {
			f.Active = true
		}
	}
	if !f.Active {
		return f, "", nil, ""
	}

	var (
		conds []string
		args  []any
		msgs  []string
	)
	if v := strings.TrimSpace(form.Get("task_id")); v != "" && v != allTasks {
		f.TaskID = v
		conds = append(conds, "task_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(form.Get("user_name")); v != "" && v != allUsers {
		f.UserName = v
		conds = append(conds, "user_name = ?")
		args = append(args, v)
	}

	today := r.nowFunc().UTC().Truncate(24 * time.Hour)
	start, ok := parseDate(form.Get("start_date"), today.Add(-defaultLookback))
	if !ok {
		msgs = append(msgs, "invalid start_date, expected YYYY-MM-DD")
	}
	end, ok := parseDate(form.Get("end_date"), today)
	if !ok {
		msgs = append(msgs, "invalid end_date, expected YYYY-MM-DD")
	}
	if end.Before(start) {
		start, end = end, start
	}
	f.StartDate = start.Format(dateLayout)
	f.EndDate = end.Format(dateLayout)
	// Bounds are bound as dates: postgres casts them to timestamps, and on
	// sqlite "YYYY-MM-DD" sorts before every stored time of that day.
	conds = append(conds, "updated_at >= ?", "updated_at < ?")
	args = append(args, f.StartDate, end.Add(24*time.Hour).Format(dateLayout))

	return f, strings.Join(conds, " AND "), args, strings.Join(msgs, "; ")
}

func parseDate(v string, def time.Time) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, true
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return def, false
	}
	return t.UTC(), true
}
