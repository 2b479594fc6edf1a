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

	"github.com/botdeckhq/botdeck/internal/matches"
	"github.com/botdeckhq/botdeck/internal/models"
)

type fixtureRequest struct {
	ExternalID string  `json:"external_id"`
	League     string  `json:"league"`
	HomeTeam   string  `json:"home_team"`
	AwayTeam   string  `json:"away_team"`
	KickoffAt  string  `json:"kickoff_at"`
	Importance float64 `json:"importance"`
}

func dateParam(r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return models.MatchDateIndex(time.Now()), true
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", false
	}
	return date, true
}

func (a *API) handleMatchesList(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	fixtures, err := a.matches.ByDate(r.Context(), date)
	if err != nil {
		a.logger.Error().Err(err).Msg("list matches failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "matches": fixtures})
}

func (a *API) handleMatchesUpsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Matches []fixtureRequest `json:"matches"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if len(req.Matches) == 0 {
		writeError(w, http.StatusBadRequest, "matches_required")
		return
	}

	fixtures := make([]models.Match, 0, len(req.Matches))
	for _, f := range req.Matches {
		if f.ExternalID == "" || f.HomeTeam == "" || f.AwayTeam == "" {
			writeError(w, http.StatusBadRequest, "missing_required_fields")
			return
		}
		kickoff, err := time.Parse(time.RFC3339, f.KickoffAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_kickoff_at")
			return
		}
		fixtures = append(fixtures, models.Match{
			ExternalID: f.ExternalID,
			League:     f.League,
			HomeTeam:   f.HomeTeam,
			AwayTeam:   f.AwayTeam,
			KickoffAt:  kickoff,
			Importance: f.Importance,
		})
	}

	n, err := a.matches.Upsert(r.Context(), fixtures)
	if err != nil {
		a.logger.Error().Err(err).Msg("upsert matches failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upserted": n})
}

func (a *API) handleMatchesSelectTop(w http.ResponseWriter, r *http.Request) {
	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	selected, err := a.matches.SelectTop(r.Context(), date)
	if err != nil {
		a.logger.Error().Err(err).Msg("select top matches failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "selected": selected})
}

func (a *API) handleMatchesSelect(w http.ResponseWriter, r *http.Request) {
	a.setMatchSelected(w, r, true)
}

func (a *API) handleMatchesUnselect(w http.ResponseWriter, r *http.Request) {
	a.setMatchSelected(w, r, false)
}

func (a *API) setMatchSelected(w http.ResponseWriter, r *http.Request, selected bool) {
	match, err := a.matches.SetSelected(r.Context(), chi.URLParam(r, "matchID"), selected)
	if errors.Is(err, matches.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("set match selection failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, match)
}
