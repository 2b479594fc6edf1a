/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/automation"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/recurrence"
)

type ruleRequest struct {
	ChannelID   string `json:"channel_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Kind        string `json:"kind"`
	Hour        int    `json:"hour"`
	Minute      int    `json:"minute"`
	Interval    int    `json:"interval"`
	WindowStart *int   `json:"window_start_hour"`
	WindowEnd   *int   `json:"window_end_hour"`
}

func (req ruleRequest) recurrenceRule() recurrence.Rule {
	rule := recurrence.Rule{
		Kind:     recurrence.Kind(req.Kind),
		Hour:     req.Hour,
		Minute:   req.Minute,
		Interval: req.Interval,
	}
	if req.WindowStart != nil && req.WindowEnd != nil {
		rule.Window = &recurrence.Window{StartHour: *req.WindowStart, EndHour: *req.WindowEnd}
	}
	return rule
}

func (a *API) handleRulesList(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")

	query := a.db.WithContext(r.Context()).Model(&models.AutomationRule{})
	if channelID != "" {
		query = query.Where("channel_id = ?", channelID)
	}

	var rules []models.AutomationRule
	if err := query.Order("created_at ASC").Find(&rules).Error; err != nil {
		a.logger.Error().Err(err).Msg("list rules failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (a *API) handleRulesCreate(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.ChannelID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "channel_and_name_required")
		return
	}

	contentType := models.ContentType(req.ContentType)
	if !contentType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_content_type")
		return
	}

	rec := req.recurrenceRule()
	if err := rec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rule")
		return
	}

	var channel models.Channel
	result := a.db.WithContext(r.Context()).First(&channel, "id = ?", req.ChannelID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "channel_not_found")
		return
	}
	if result.Error != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	rule := models.AutomationRule{
		ID:          uuid.NewString(),
		ChannelID:   req.ChannelID,
		Name:        req.Name,
		ContentType: contentType,
		Enabled:     true,
	}
	rule.SetRule(rec)

	if err := a.db.WithContext(r.Context()).Create(&rule).Error; err != nil {
		a.logger.Error().Err(err).Msg("create rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateRules(r, rule.ChannelID)
	a.bus.Publish(events.EventRuleCreated, events.Payload{"rule_id": rule.ID, "channel_id": rule.ChannelID})
	a.publishAuditEvent(r, events.Payload{
		"action":        string(models.AuditActionRuleCreate),
		"resource_type": "automation_rule",
		"resource_id":   rule.ID,
	})

	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) handleRulesGet(w http.ResponseWriter, r *http.Request) {
	rule, ok := a.loadRule(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleRulesUpdate(w http.ResponseWriter, r *http.Request) {
	rule, ok := a.loadRule(w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.ContentType != "" {
		contentType := models.ContentType(req.ContentType)
		if !contentType.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_content_type")
			return
		}
		rule.ContentType = contentType
	}
	if req.Kind != "" {
		rec := req.recurrenceRule()
		if err := rec.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule")
			return
		}
		rule.SetRule(rec)
		// Schedule changed; the loop reseeds on the next tick.
		rule.NextRunAt = nil
	}

	if err := a.db.WithContext(r.Context()).Save(rule).Error; err != nil {
		a.logger.Error().Err(err).Msg("update rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateRules(r, rule.ChannelID)
	a.bus.Publish(events.EventRuleUpdated, events.Payload{"rule_id": rule.ID, "channel_id": rule.ChannelID})
	a.publishAuditEvent(r, events.Payload{
		"action":        string(models.AuditActionRuleUpdate),
		"resource_type": "automation_rule",
		"resource_id":   rule.ID,
	})

	writeJSON(w, http.StatusOK, rule)
}

func (a *API) handleRulesDelete(w http.ResponseWriter, r *http.Request) {
	rule, ok := a.loadRule(w, r)
	if !ok {
		return
	}

	if err := a.db.WithContext(r.Context()).Delete(&models.AutomationRule{}, "id = ?", rule.ID).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateRules(r, rule.ChannelID)
	a.bus.Publish(events.EventRuleDeleted, events.Payload{"rule_id": rule.ID, "channel_id": rule.ChannelID})
	a.publishAuditEvent(r, events.Payload{
		"action":        string(models.AuditActionRuleDelete),
		"resource_type": "automation_rule",
		"resource_id":   rule.ID,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRulesEnable(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, true)
}

func (a *API) handleRulesDisable(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, false)
}

func (a *API) setRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	rule, ok := a.loadRule(w, r)
	if !ok {
		return
	}

	updates := map[string]any{"enabled": enabled}
	if enabled {
		// Re-enabled rules start from a clean slate instead of firing
		// immediately for missed slots.
		updates["next_run_at"] = nil
	}
	if err := a.db.WithContext(r.Context()).Model(rule).Updates(updates).Error; err != nil {
		a.logger.Error().Err(err).Msg("toggle rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	action := models.AuditActionRuleEnable
	if !enabled {
		action = models.AuditActionRuleDisable
	}
	a.invalidateRules(r, rule.ChannelID)
	a.publishAuditEvent(r, events.Payload{
		"action":        string(action),
		"resource_type": "automation_rule",
		"resource_id":   rule.ID,
	})

	rule.Enabled = enabled
	writeJSON(w, http.StatusOK, rule)
}

// handleRulesPreview evaluates a stored rule at ?at= (default now), in the
// channel's timezone.
func (a *API) handleRulesPreview(w http.ResponseWriter, r *http.Request) {
	rule, ok := a.loadRule(w, r)
	if !ok {
		return
	}

	at := time.Now()
	if parsed, ok := parseTimeParam(r, "at"); ok {
		at = parsed
	} else if r.URL.Query().Get("at") != "" {
		writeError(w, http.StatusBadRequest, "invalid_at")
		return
	}

	var channel models.Channel
	if err := a.db.WithContext(r.Context()).First(&channel, "id = ?", rule.ChannelID).Error; err == nil {
		if loc, err := channel.Location(); err == nil {
			at = at.In(loc)
		}
	}

	preview, err := automation.PreviewRule(*rule, at)
	if err != nil {
		if errors.Is(err, recurrence.ErrInvalidRule) {
			writeError(w, http.StatusBadRequest, "invalid_rule")
			return
		}
		writeError(w, http.StatusInternalServerError, "preview_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rule_id":        rule.ID,
		"reference":      at,
		"next_execution": preview.NextExecution,
		"last_execution": preview.LastExecution,
		"countdown":      preview.Countdown,
		"is_active_now":  preview.IsActiveNow,
	})
}

// handleRulesSimulate evaluates an unsaved rule payload without touching
// the database.
func (a *API) handleRulesSimulate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ruleRequest
		At string `json:"at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	at := time.Now()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_at")
			return
		}
		at = parsed
	}

	sample, err := recurrence.Compute(req.recurrenceRule(), at)
	if err != nil {
		if errors.Is(err, recurrence.ErrInvalidRule) {
			writeError(w, http.StatusBadRequest, "invalid_rule")
			return
		}
		writeError(w, http.StatusInternalServerError, "simulate_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reference":      sample.ReferenceInstant,
		"next_execution": sample.NextExecution,
		"last_execution": sample.LastExecution,
		"countdown":      recurrence.FormatCountdown(sample.NextExecution, at),
		"is_active_now":  sample.IsActiveNow,
	})
}

func (a *API) loadRule(w http.ResponseWriter, r *http.Request) (*models.AutomationRule, bool) {
	ruleID := chi.URLParam(r, "ruleID")
	if ruleID == "" {
		writeError(w, http.StatusBadRequest, "rule_id_required")
		return nil, false
	}

	var rule models.AutomationRule
	result := a.db.WithContext(r.Context()).First(&rule, "id = ?", ruleID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("get rule failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return nil, false
	}
	return &rule, true
}

func (a *API) invalidateRules(r *http.Request, channelID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.InvalidateChannelRules(r.Context(), channelID); err != nil {
		a.logger.Debug().Err(err).Msg("failed to invalidate rule cache")
	}
}
