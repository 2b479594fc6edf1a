/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/botdeckhq/botdeck/internal/logbuffer"
)

// handleLogsList serves the dashboard's live log view from the in-memory
// ring buffer. Returns 503 when the server was started without one.
func (a *API) handleLogsList(w http.ResponseWriter, r *http.Request) {
	if a.logBuf == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_disabled")
		return
	}

	params := logbuffer.QueryParams{
		Level:      r.URL.Query().Get("level"),
		Component:  r.URL.Query().Get("component"),
		ChannelID:  r.URL.Query().Get("channel_id"),
		Search:     r.URL.Query().Get("search"),
		Limit:      200,
		Descending: true,
	}
	if since, ok := parseTimeParam(r, "since"); ok {
		params.Since = since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 1000 {
			params.Limit = limit
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    a.logBuf.Query(params),
		"components": a.logBuf.Components(),
		"stats":      a.logBuf.Stats(),
	})
}
