/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/botdeckhq/botdeck/internal/models"
)

func (a *API) handleDeliveriesList(w http.ResponseWriter, r *http.Request) {
	query := a.db.WithContext(r.Context()).Model(&models.DeliveryLog{})

	if channelID := r.URL.Query().Get("channel_id"); channelID != "" {
		query = query.Where("channel_id = ?", channelID)
	}
	if ruleID := r.URL.Query().Get("rule_id"); ruleID != "" {
		query = query.Where("rule_id = ?", ruleID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if since, ok := parseTimeParam(r, "since"); ok {
		query = query.Where("dispatched_at >= ?", since)
	} else if r.URL.Query().Get("since") != "" {
		writeError(w, http.StatusBadRequest, "invalid_since")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	var logs []models.DeliveryLog
	if err := query.Order("dispatched_at DESC").Limit(limit).Find(&logs).Error; err != nil {
		a.logger.Error().Err(err).Msg("list deliveries failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": logs})
}
