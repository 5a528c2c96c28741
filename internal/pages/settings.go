package pages

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"taskadmin/admin-console/internal/auth"
	"taskadmin/admin-console/internal/console"
	"taskadmin/admin-console/internal/store"
)

const (
	settingSiteName      = "site_name"
	settingSiteDesc      = "site_description"
	settingNotifications = "enable_notifications"
)

type SiteSettings struct {
	SiteName            string `json:"site_name"`
	SiteDescription     string `json:"site_description"`
	EnableNotifications bool   `json:"enable_notifications"`
}

func defaultSettings() SiteSettings {
	return SiteSettings{
		SiteName:            "Admin console",
		SiteDescription:     "Task and user administration",
		EnableNotifications: true,
	}
}

type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type SettingsData struct {
	Settings SiteSettings `json:"settings"`
	Profile  Profile      `json:"profile"`
}

func (r *Router) settings(ctx context.Context, env Env) View {
	view := View{Page: console.PageSettings, Title: "Settings"}
	data := SettingsData{Settings: defaultSettings()}
	if info := env.Session.UserInfo; info != nil {
		data.Profile = Profile{Username: info.String("username"), Email: info.String("email")}
	} else {
		data.Profile = Profile{Username: env.Session.Username}
	}

	rows, err := r.records.GetAll(ctx, "site_settings", "")
	if err != nil {
		view.Error = r.dataError("load site settings", err)
		view.Data = data
		return view
	}
	for _, row := range rows {
		v := row.String("value")
		switch row.String("name") {
		case settingSiteName:
			data.Settings.SiteName = v
		case settingSiteDesc:
			data.Settings.SiteDescription = v
		case settingNotifications:
			data.Settings.EnableNotifications = formBool(v, true)
		}
	}
	view.Data = data
	return view
}

func (r *Router) saveSettings(ctx context.Context, env Env) (string, string) {
	current := defaultSettings()
	values := []struct{ name, value string }{
		{settingSiteName, strings.TrimSpace(env.Form.Get(settingSiteName))},
		{settingSiteDesc, strings.TrimSpace(env.Form.Get(settingSiteDesc))},
		{settingNotifications, strconv.FormatBool(formBool(env.Form.Get(settingNotifications), current.EnableNotifications))},
	}
	if values[0].value == "" {
		return "", "site name is required"
	}

	for _, kv := range values {
		if err := r.putSetting(ctx, kv.name, kv.value); err != nil {
			r.auditLog(env.Session.Username, "settings.save", kv.name, err)
			return "", r.dataError("save settings", err)
		}
	}
	r.auditLog(env.Session.Username, "settings.save", "", nil)
	return "settings saved", ""
}

func (r *Router) putSetting(ctx context.Context, name, value string) error {
	now := r.nowFunc().UTC()
	n, err := r.records.Update(ctx, "site_settings", store.Fields{
		{Name: "value", Value: value},
		{Name: "updated_at", Value: now},
	}, "name = ?", name)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = r.records.Insert(ctx, "site_settings", store.Fields{
		{Name: "name", Value: name},
		{Name: "value", Value: value},
		{Name: "updated_at", Value: now},
	})
	return err
}

func (r *Router) updateProfile(ctx context.Context, env Env) (string, string) {
	email := strings.TrimSpace(env.Form.Get("email"))
	newPassword := env.Form.Get("new_password")
	confirm := env.Form.Get("confirm_password")

	if newPassword != "" && newPassword != confirm {
		return "", "passwords do not match"
	}
	id := env.Session.AdminID()
	if id == 0 {
		return "", "profile is not available for this session"
	}

	hash := ""
	if newPassword != "" {
		if err := auth.CheckPasswordPolicy(newPassword); err != nil {
			return "", fmt.Sprintf("password must be %d to 128 characters without surrounding spaces", auth.MinPasswordLength)
		}
		var err error
		if hash, err = r.hashFunc(newPassword); err != nil {
			r.log.WithError(err).Error("hash password failed")
			return "", "update profile failed"
		}
	}

	err := r.profiles.UpdateProfile(ctx, id, email, hash)
	r.auditLog(env.Session.Username, "profile.update", env.Session.Username, err)
	if err != nil {
		return "", r.dataError("update profile", err)
	}
	if env.Session.UserInfo != nil {
		env.Session.UserInfo["email"] = email
	}
	return "profile updated", ""
}
