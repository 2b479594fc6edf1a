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

	"github.com/botdeckhq/botdeck/internal/approval"
	"github.com/botdeckhq/botdeck/internal/models"
)

type managerSubmitRequest struct {
	DisplayName    string `json:"display_name"`
	TelegramUserID string `json:"telegram_user_id"`
	Language       string `json:"language"`
}

type managerReviewRequest struct {
	Note string `json:"note"`
}

func (a *API) handleManagersList(w http.ResponseWriter, r *http.Request) {
	status := models.ManagerStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.ManagerPending, models.ManagerApproved, models.ManagerRejected:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	managers, err := a.approval.List(r.Context(), status)
	if err != nil {
		a.logger.Error().Err(err).Msg("list managers failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"managers": managers})
}

func (a *API) handleManagersSubmit(w http.ResponseWriter, r *http.Request) {
	var req managerSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.DisplayName == "" || req.TelegramUserID == "" {
		writeError(w, http.StatusBadRequest, "name_and_user_id_required")
		return
	}

	manager := models.Manager{
		DisplayName:    req.DisplayName,
		TelegramUserID: req.TelegramUserID,
		Language:       req.Language,
	}
	if err := a.approval.Submit(r.Context(), &manager); err != nil {
		a.logger.Error().Err(err).Msg("submit manager failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusCreated, manager)
}

func (a *API) handleManagersGet(w http.ResponseWriter, r *http.Request) {
	manager, err := a.approval.Get(r.Context(), chi.URLParam(r, "managerID"))
	if errors.Is(err, approval.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, manager)
}

func (a *API) handleManagersApprove(w http.ResponseWriter, r *http.Request) {
	a.reviewManager(w, r, true)
}

func (a *API) handleManagersReject(w http.ResponseWriter, r *http.Request) {
	a.reviewManager(w, r, false)
}

func (a *API) reviewManager(w http.ResponseWriter, r *http.Request, approve bool) {
	managerID := chi.URLParam(r, "managerID")

	var req managerReviewRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	var (
		manager *models.Manager
		err     error
	)
	if approve {
		manager, err = a.approval.Approve(r.Context(), managerID, req.Note)
	} else {
		manager, err = a.approval.Reject(r.Context(), managerID, req.Note)
	}

	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case errors.Is(err, approval.ErrAlreadyReviewed):
		writeError(w, http.StatusConflict, "already_reviewed")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("review manager failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, manager)
}

func (a *API) handleChannelManagersList(w http.ResponseWriter, r *http.Request) {
	channel, ok := a.loadChannel(w, r)
	if !ok {
		return
	}

	managers, err := a.approval.ChannelManagers(r.Context(), channel.ID)
	if err != nil {
		a.logger.Error().Err(err).Msg("list channel managers failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"managers": managers})
}

func (a *API) handleChannelManagersAssign(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	managerID := chi.URLParam(r, "managerID")

	var req struct {
		Role string `json:"role"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
	}

	err := a.approval.Assign(r.Context(), channelID, managerID, req.Role)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
		return
	case errors.Is(err, approval.ErrNotApproved):
		writeError(w, http.StatusConflict, "manager_not_approved")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("assign manager failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (a *API) handleChannelManagersUnassign(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	managerID := chi.URLParam(r, "managerID")

	if err := a.approval.Unassign(r.Context(), channelID, managerID); err != nil {
		a.logger.Error().Err(err).Msg("unassign manager failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
