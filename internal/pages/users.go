package pages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"taskadmin/admin-console/internal/auth"
	"taskadmin/admin-console/internal/console"
	"taskadmin/admin-console/internal/store"
)

const listUsersQuery = `SELECT id, user_name, is_running, user_group, task_group, browser_name, browser_count
FROM users ORDER BY id`

type UserManageData struct {
	Users []store.Row `json:"users"`
}

func (r *Router) userManage(ctx context.Context, _ Env) View {
	view := View{Page: console.PageUserManage, Title: "User management"}
	users, err := r.records.Execute(ctx, listUsersQuery)
	if err != nil {
		view.Error = r.dataError("load user list", err)
		view.Data = UserManageData{Users: []store.Row{}}
		return view
	}
	flagColumn(users, "is_running")
	view.Data = UserManageData{Users: users}
	return view
}

// flagColumn rewrites a 0/1 column as a JSON boolean.
func flagColumn(rows []store.Row, key string) {
	for _, row := range rows {
		if _, ok := row[key]; ok {
			row[key] = row.Bool(key)
		}
	}
}

func (r *Router) addUser(ctx context.Context, env Env) (string, string) {
	username := strings.TrimSpace(env.Form.Get("username"))
	email := strings.TrimSpace(env.Form.Get("email"))
	password := env.Form.Get("password")
	active := formBool(env.Form.Get("is_active"), true)

	if username == "" || password == "" {
		return "", "username and password are required"
	}
	if err := auth.CheckPasswordPolicy(password); err != nil {
		return "", fmt.Sprintf("password must be %d to 128 characters without surrounding spaces", auth.MinPasswordLength)
	}
	hash, err := r.hashFunc(password)
	if err != nil {
		r.log.WithError(err).Error("hash password failed")
		return "", "add user failed"
	}

	id, err := r.records.Insert(ctx, "users", store.Fields{
		{Name: "username", Value: username},
		{Name: "user_name", Value: username},
		{Name: "email", Value: email},
		{Name: "password_hash", Value: hash},
		{Name: "is_active", Value: active},
		{Name: "created_at", Value: r.nowFunc().UTC()},
	})
	r.auditLog(env.Session.Username, "user.create", username, err)
	if err != nil {
		if errors.Is(err, store.ErrQuery) {
			r.log.WithError(err).Warn("add user rejected")
			return "", "add user failed: " + username + " could not be stored"
		}
		return "", r.dataError("add user", err)
	}
	if id > 0 {
		return fmt.Sprintf("user %s added, id %d", username, id), ""
	}
	return fmt.Sprintf("user %s added", username), ""
}

// formBool reads a checkbox style value, falling back to def when empty.
func formBool(v string, def bool) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return def
	}
	switch v {
	case "on", "yes":
		return true
	case "off", "no":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
