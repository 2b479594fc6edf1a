/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/botdeckhq/botdeck/internal/coupons"
	"github.com/botdeckhq/botdeck/internal/models"
)

const maxCreativeSize = 10 << 20 // 10 MiB

type couponRequest struct {
	ChannelID    *string `json:"channel_id"`
	Title        string  `json:"title"`
	Code         string  `json:"code"`
	AffiliateURL string  `json:"affiliate_url"`
	Bookmaker    string  `json:"bookmaker"`
	ValidFrom    string  `json:"valid_from"`
	ValidUntil   string  `json:"valid_until"`
}

func (a *API) handleCouponsList(w http.ResponseWriter, r *http.Request) {
	filters := coupons.ListFilters{
		ChannelID:  r.URL.Query().Get("channel_id"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	if at, ok := parseTimeParam(r, "valid_at"); ok {
		filters.ValidAt = at
	}

	list, err := a.coupons.List(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("list coupons failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupons": list})
}

func (a *API) handleCouponsCreate(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}

	coupon := models.Coupon{
		ChannelID:    req.ChannelID,
		Title:        req.Title,
		Code:         req.Code,
		AffiliateURL: req.AffiliateURL,
		Bookmaker:    req.Bookmaker,
		Active:       true,
	}
	if req.ValidFrom != "" {
		parsed, err := time.Parse(time.RFC3339, req.ValidFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_valid_from")
			return
		}
		coupon.ValidFrom = &parsed
	}
	if req.ValidUntil != "" {
		parsed, err := time.Parse(time.RFC3339, req.ValidUntil)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_valid_until")
			return
		}
		coupon.ValidUntil = &parsed
	}

	if err := a.coupons.Create(r.Context(), &coupon); err != nil {
		a.logger.Error().Err(err).Msg("create coupon failed")
		writeError(w, http.StatusBadRequest, "create_failed")
		return
	}
	writeJSON(w, http.StatusCreated, coupon)
}

func (a *API) handleCouponsGet(w http.ResponseWriter, r *http.Request) {
	coupon, err := a.coupons.Get(r.Context(), chi.URLParam(r, "couponID"))
	if errors.Is(err, coupons.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"coupon":    coupon,
		"image_url": a.coupons.CreativeURL(coupon),
	})
}

func (a *API) handleCouponsUpdate(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	// Whitelist updatable columns.
	updates := map[string]any{}
	for _, key := range []string{"title", "code", "affiliate_url", "bookmaker", "active", "valid_from", "valid_until", "channel_id"} {
		if v, ok := req[key]; ok {
			updates[key] = v
		}
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "no_updates")
		return
	}

	coupon, err := a.coupons.Update(r.Context(), chi.URLParam(r, "couponID"), updates)
	if errors.Is(err, coupons.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("update coupon failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, coupon)
}

func (a *API) handleCouponsDelete(w http.ResponseWriter, r *http.Request) {
	err := a.coupons.Delete(r.Context(), chi.URLParam(r, "couponID"))
	if errors.Is(err, coupons.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("delete coupon failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCouponsUploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxCreativeSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCreativeSize+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read_failed")
		return
	}
	if len(data) > maxCreativeSize {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	coupon, err := a.coupons.AttachCreative(r.Context(), chi.URLParam(r, "couponID"), header.Filename, contentType, data)
	if errors.Is(err, coupons.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("attach creative failed")
		writeError(w, http.StatusInternalServerError, "store_failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"coupon":    coupon,
		"image_url": a.coupons.CreativeURL(coupon),
	})
}

// handleCouponsClick counts the click and redirects to the affiliate URL.
func (a *API) handleCouponsClick(w http.ResponseWriter, r *http.Request) {
	url, err := a.coupons.TrackClick(r.Context(), chi.URLParam(r, "couponID"))
	if errors.Is(err, coupons.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if url == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "counted"})
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *API) handleCouponsStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.coupons.Stats(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("coupon stats failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
