/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/teambition/rrule-go"

	"github.com/botdeckhq/botdeck/internal/models"
)

// handleChannelRulesExport renders a channel's automation rules as RRULE
// strings for external calendar tooling. Every exported string round-trips
// through the RRULE parser so consumers never see a malformed line.
func (a *API) handleChannelRulesExport(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	var rules []models.AutomationRule
	if err := a.db.WithContext(r.Context()).
		Where("channel_id = ?", channel.ID).
		Order("created_at ASC").
		Find(&rules).Error; err != nil {
		a.logger.Error().Err(err).Msg("export rules failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	type exportedRule struct {
		RuleID      string `json:"rule_id"`
		Name        string `json:"name"`
		ContentType string `json:"content_type"`
		RRule       string `json:"rrule"`
		Enabled     bool   `json:"enabled"`
	}

	exported := make([]exportedRule, 0, len(rules))
	for _, rule := range rules {
		rec := rule.Rule()
		if err := rec.Validate(); err != nil {
			a.logger.Warn().Str("rule", rule.ID).Msg("skipping malformed rule in export")
			continue
		}
		str := rec.RRule()
		if _, err := rrule.StrToRRule(str); err != nil {
			a.logger.Warn().Err(err).Str("rule", rule.ID).Str("rrule", str).Msg("generated RRULE failed to parse")
			continue
		}
		exported = append(exported, exportedRule{
			RuleID:      rule.ID,
			Name:        rule.Name,
			ContentType: string(rule.ContentType),
			RRule:       str,
			Enabled:     rule.Enabled,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": channel.ID,
		"timezone":   channel.Timezone,
		"rules":      exported,
	})
}
