package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskadmin/admin-console/internal/migrations"
)

// requireLogin loads the client context and rejects logged-out callers. The
// context is read only, so its lock is released at once.
func (h *handler) requireLogin(w http.ResponseWriter, r *http.Request) (*clientContext, bool) {
	cc, ok := h.contextOrFail(w, r)
	if !ok {
		return nil, false
	}
	cc.release()
	if !cc.session.LoggedIn {
		writeError(w, http.StatusUnauthorized, "login required")
		return nil, false
	}
	return cc, true
}

func (h *handler) handleMigrationList(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.requireLogin(w, r)
	if !ok {
		return
	}
	if h.Migrations == nil {
		writeError(w, http.StatusServiceUnavailable, "migration service unavailable")
		return
	}
	files, err := h.Migrations.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list migrations failed")
		return
	}
	auditReq(h.Audit, r, cc.session.Username, "migration.list", "", "success", "")
	writeJSON(w, http.StatusOK, map[string]any{"items": files})
}

func (h *handler) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.requireLogin(w, r)
	if !ok {
		return
	}
	if h.Migrations == nil {
		writeError(w, http.StatusServiceUnavailable, "migration service unavailable")
		return
	}
	status, err := h.Migrations.Status(r.Context())
	if err != nil {
		h.log.WithError(err).Error("migration status failed")
		writeError(w, http.StatusInternalServerError, "migration status failed")
		return
	}
	auditReq(h.Audit, r, cc.session.Username, "migration.status", "", "success", "")
	writeJSON(w, http.StatusOK, map[string]any{"items": status})
}

func (h *handler) handleMigrationMarkApplied(w http.ResponseWriter, r *http.Request) {
	cc, ok := h.requireLogin(w, r)
	if !ok {
		return
	}
	if h.Migrations == nil {
		writeError(w, http.StatusServiceUnavailable, "migration service unavailable")
		return
	}
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid migration name")
		return
	}
	if err := h.Migrations.MarkApplied(r.Context(), name, h.nowFunc()); err != nil {
		auditReq(h.Audit, r, cc.session.Username, "migration.mark_applied", name, "failed", err.Error())
		if errors.Is(err, migrations.ErrUnknownMigration) {
			writeError(w, http.StatusNotFound, "migration not found")
			return
		}
		writeError(w, http.StatusBadRequest, "mark migration applied failed")
		return
	}
	auditReq(h.Audit, r, cc.session.Username, "migration.mark_applied", name, "success", "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "name": name})
}
