/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/botdeckhq/botdeck/internal/audit"
	"github.com/botdeckhq/botdeck/internal/models"
)

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	filters := audit.QueryFilters{Limit: 100}

	if v := r.URL.Query().Get("actor"); v != "" {
		filters.Actor = &v
	}
	if v := r.URL.Query().Get("action"); v != "" {
		action := models.AuditAction(v)
		filters.Action = &action
	}
	if since, ok := parseTimeParam(r, "since"); ok {
		filters.StartTime = &since
	}
	if until, ok := parseTimeParam(r, "until"); ok {
		filters.EndTime = &until
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			filters.Limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			filters.Offset = parsed
		}
	}

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"total": total,
	})
}
