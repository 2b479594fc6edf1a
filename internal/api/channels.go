/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/cache"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
)

type channelRequest struct {
	Name           string   `json:"name"`
	TelegramChatID string   `json:"telegram_chat_id"`
	Language       string   `json:"language"`
	Timezone       string   `json:"timezone"`
	Description    string   `json:"description"`
	SortOrder      int      `json:"sort_order"`
	ContentTypes   []string `json:"content_types"`
}

func (req channelRequest) contentTypes() ([]models.ContentType, bool) {
	out := make([]models.ContentType, 0, len(req.ContentTypes))
	for _, raw := range req.ContentTypes {
		ct := models.ContentType(raw)
		if !ct.Valid() {
			return nil, false
		}
		out = append(out, ct)
	}
	return out, true
}

func (a *API) handleChannelsList(w http.ResponseWriter, r *http.Request) {
	if a.cache != nil {
		if cached, ok := a.cache.GetChannelList(r.Context()); ok {
			writeJSON(w, http.StatusOK, map[string]any{"channels": cached})
			return
		}
	}

	var channels []models.Channel
	if err := a.db.WithContext(r.Context()).
		Order("sort_order ASC, name ASC").
		Find(&channels).Error; err != nil {
		a.logger.Error().Err(err).Msg("list channels failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	if a.cache != nil {
		cached := make([]cache.CachedChannel, len(channels))
		for i, ch := range channels {
			types := make([]string, len(ch.ContentTypes))
			for j, ct := range ch.ContentTypes {
				types[j] = string(ct)
			}
			cached[i] = cache.CachedChannel{
				ID:             ch.ID,
				Name:           ch.Name,
				TelegramChatID: ch.TelegramChatID,
				Language:       ch.Language,
				Timezone:       ch.Timezone,
				Active:         ch.Active,
				Approved:       ch.Approved,
				SortOrder:      ch.SortOrder,
				ContentTypes:   types,
			}
		}
		if err := a.cache.SetChannelList(r.Context(), cached); err != nil {
			a.logger.Debug().Err(err).Msg("failed to cache channel list")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (a *API) handleChannelsCreate(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" || req.TelegramChatID == "" {
		writeError(w, http.StatusBadRequest, "name_and_chat_id_required")
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	types, ok := req.contentTypes()
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_content_type")
		return
	}

	channel := models.Channel{
		ID:             uuid.NewString(),
		Name:           req.Name,
		TelegramChatID: req.TelegramChatID,
		Language:       req.Language,
		Timezone:       req.Timezone,
		Description:    req.Description,
		SortOrder:      req.SortOrder,
		ContentTypes:   types,
		Active:         true,
	}
	if _, err := channel.Location(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_timezone")
		return
	}

	if err := a.db.WithContext(r.Context()).Create(&channel).Error; err != nil {
		a.logger.Error().Err(err).Msg("create channel failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateChannel(r, channel.ID)
	a.bus.Publish(events.EventChannelCreated, events.Payload{"channel_id": channel.ID})
	a.publishAuditEvent(r, events.Payload{
		"action":        string(models.AuditActionChannelCreate),
		"resource_type": "channel",
		"resource_id":   channel.ID,
		"name":          channel.Name,
	})

	writeJSON(w, http.StatusCreated, channel)
}

func (a *API) handleChannelsGet(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, channel)
}

func (a *API) handleChannelsUpdate(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	var req channelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	updates := map[string]any{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.TelegramChatID != "" {
		updates["telegram_chat_id"] = req.TelegramChatID
	}
	if req.Language != "" {
		updates["language"] = req.Language
	}
	if req.Timezone != "" {
		probe := models.Channel{Timezone: req.Timezone}
		if _, err := probe.Location(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timezone")
			return
		}
		updates["timezone"] = req.Timezone
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.SortOrder != 0 {
		updates["sort_order"] = req.SortOrder
	}
	if req.ContentTypes != nil {
		types, ok := req.contentTypes()
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_content_type")
			return
		}
		channel.ContentTypes = types
		if err := a.db.WithContext(r.Context()).Model(channel).
			Update("content_types", channel.ContentTypes).Error; err != nil {
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
	}

	if len(updates) > 0 {
		if err := a.db.WithContext(r.Context()).Model(channel).Updates(updates).Error; err != nil {
			a.logger.Error().Err(err).Msg("update channel failed")
			writeError(w, http.StatusInternalServerError, "db_error")
			return
		}
	}

	a.invalidateChannel(r, channel.ID)
	a.bus.Publish(events.EventChannelUpdated, events.Payload{"channel_id": channel.ID})
	a.publishAuditEvent(r, events.Payload{
		"action":        string(models.AuditActionChannelUpdate),
		"resource_type": "channel",
		"resource_id":   channel.ID,
	})

	var updated models.Channel
	if err := a.db.WithContext(r.Context()).First(&updated, "id = ?", channel.ID).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleChannelsDelete(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	err := a.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_id = ?", channel.ID).Delete(&models.ChannelManager{}).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", channel.ID).Delete(&models.AutomationRule{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Channel{}, "id = ?", channel.ID).Error
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("delete channel failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	a.invalidateChannel(r, channel.ID)
	a.bus.Publish(events.EventChannelDeleted, events.Payload{"channel_id": channel.ID})
	a.publishAuditEvent(r, events.Payload{
		"action":        string(models.AuditActionChannelDelete),
		"resource_type": "channel",
		"resource_id":   channel.ID,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChannelsActivate(w http.ResponseWriter, r *http.Request) {
	a.setChannelActive(w, r, true)
}

func (a *API) handleChannelsDeactivate(w http.ResponseWriter, r *http.Request) {
	a.setChannelActive(w, r, false)
}

func (a *API) setChannelActive(w http.ResponseWriter, r *http.Request, active bool) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	if err := a.db.WithContext(r.Context()).Model(channel).
		Update("active", active).Error; err != nil {
		a.logger.Error().Err(err).Msg("toggle channel failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	action := models.AuditActionChannelActivate
	if !active {
		action = models.AuditActionChannelDeactivate
	}
	a.invalidateChannel(r, channel.ID)
	a.bus.Publish(events.EventChannelUpdated, events.Payload{"channel_id": channel.ID, "active": active})
	a.publishAuditEvent(r, events.Payload{
		"action":        string(action),
		"resource_type": "channel",
		"resource_id":   channel.ID,
	})

	channel.Active = active
	writeJSON(w, http.StatusOK, channel)
}

func (a *API) loadChannel(w http.ResponseWriter, r *http.Request) (*models.Channel, bool) {
	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channel_id_required")
		return nil, false
	}

	var channel models.Channel
	result := a.db.WithContext(r.Context()).First(&channel, "id = ?", channelID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	if result.Error != nil {
		a.logger.Error().Err(result.Error).Msg("get channel failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return nil, false
	}
	return &channel, true
}

func (a *API) invalidateChannel(r *http.Request, channelID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.InvalidateChannel(r.Context(), channelID); err != nil {
		a.logger.Debug().Err(err).Msg("failed to invalidate channel cache")
	}
}
