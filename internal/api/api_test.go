/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/approval"
	"github.com/botdeckhq/botdeck/internal/audit"
	"github.com/botdeckhq/botdeck/internal/automation"
	"github.com/botdeckhq/botdeck/internal/coupons"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/logbuffer"
	"github.com/botdeckhq/botdeck/internal/matches"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/storage"
)

func newTestAPI(t *testing.T) (*API, *gorm.DB, http.Handler) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Channel{}, &models.Manager{}, &models.ChannelManager{},
		&models.AutomationRule{}, &models.Coupon{}, &models.Match{},
		&models.DeliveryLog{}, &models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	logger := zerolog.Nop()
	bus := events.NewBus()
	store, err := storage.NewFilesystemStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("filesystem store: %v", err)
	}

	a := New(
		db,
		approval.NewService(db, bus, logger),
		coupons.NewService(db, bus, nil, store, logger),
		matches.NewService(db, bus, 3, logger),
		automation.New(db, bus, nil, time.Second, time.Hour, logger),
		audit.NewService(db, bus, logger),
		nil,
		bus,
		logbuffer.New(64),
		logger,
	)

	r := chi.NewRouter()
	a.Routes(r)
	return a, db, r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Botdeck-Actor", "tester")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v (body=%s)", err, rr.Body.String())
	}
}

func TestHealth(t *testing.T) {
	_, _, handler := newTestAPI(t)

	rr := doJSON(t, handler, http.MethodGet, "/api/v1/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestChannelLifecycle(t *testing.T) {
	_, db, handler := newTestAPI(t)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/channels", map[string]any{
		"name":             "Main EN",
		"telegram_chat_id": "-100123",
		"language":         "en",
		"timezone":         "Europe/London",
		"content_types":    []string{"news", "coupon"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rr.Code, rr.Body.String())
	}
	var channel models.Channel
	decodeBody(t, rr, &channel)
	if channel.ID == "" || !channel.Active {
		t.Fatalf("unexpected channel: %+v", channel)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/channels/"+channel.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/channels/"+channel.ID+"/deactivate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d", rr.Code)
	}
	var reloaded models.Channel
	if err := db.First(&reloaded, "id = ?", channel.ID).Error; err != nil {
		t.Fatalf("reload channel: %v", err)
	}
	if reloaded.Active {
		t.Fatal("channel should be inactive")
	}

	rr = doJSON(t, handler, http.MethodDelete, "/api/v1/channels/"+channel.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doJSON(t, handler, http.MethodGet, "/api/v1/channels/"+channel.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rr.Code)
	}
}

func TestChannelCreateValidation(t *testing.T) {
	_, _, handler := newTestAPI(t)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/channels", map[string]any{"name": "No chat"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing chat id status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/channels", map[string]any{
		"name":             "Bad TZ",
		"telegram_chat_id": "-1",
		"timezone":         "Mars/Olympus",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad timezone status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/channels", map[string]any{
		"name":             "Bad type",
		"telegram_chat_id": "-1",
		"content_types":    []string{"propaganda"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad content type status = %d", rr.Code)
	}
}

func TestManagerWorkflowEndpoints(t *testing.T) {
	_, db, handler := newTestAPI(t)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/managers", map[string]any{
		"display_name":     "Ada",
		"telegram_user_id": "1001",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit status = %d body=%s", rr.Code, rr.Body.String())
	}
	var manager models.Manager
	decodeBody(t, rr, &manager)

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/managers?status=pending", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/managers/"+manager.ID+"/approve", map[string]any{"note": "ok"})
	if rr.Code != http.StatusOK {
		t.Fatalf("approve status = %d body=%s", rr.Code, rr.Body.String())
	}

	// Second review conflicts.
	rr = doJSON(t, handler, http.MethodPost, "/api/v1/managers/"+manager.ID+"/reject", map[string]any{"note": "nah"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("double review status = %d", rr.Code)
	}

	channel := models.Channel{ID: "chan-1", Name: "Main", Timezone: "UTC", Active: true}
	if err := db.Create(&channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/channels/chan-1/managers/"+manager.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("assign status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/channels/chan-1/managers", nil)
	var listResp struct {
		Managers []models.Manager `json:"managers"`
	}
	decodeBody(t, rr, &listResp)
	if len(listResp.Managers) != 1 || listResp.Managers[0].ID != manager.ID {
		t.Fatalf("channel managers = %+v", listResp.Managers)
	}
}

func TestRuleEndpointsAndPreview(t *testing.T) {
	_, db, handler := newTestAPI(t)

	channel := models.Channel{ID: "chan-1", Name: "Main", Timezone: "UTC", Active: true, Approved: true}
	if err := db.Create(&channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/automation/rules", map[string]any{
		"channel_id":   "chan-1",
		"name":         "Morning news",
		"content_type": "news",
		"kind":         "every_minutes",
		"interval":     10,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d body=%s", rr.Code, rr.Body.String())
	}
	var rule models.AutomationRule
	decodeBody(t, rr, &rule)

	// Malformed recurrence is rejected up front.
	rr = doJSON(t, handler, http.MethodPost, "/api/v1/automation/rules", map[string]any{
		"channel_id":   "chan-1",
		"name":         "Broken",
		"content_type": "news",
		"kind":         "every_minutes",
		"interval":     0,
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid rule status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/automation/rules/"+rule.ID+"/preview?at=2026-06-20T12:34:00Z", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("preview status = %d body=%s", rr.Code, rr.Body.String())
	}
	var preview struct {
		NextExecution time.Time `json:"next_execution"`
		Countdown     string    `json:"countdown"`
		IsActiveNow   bool      `json:"is_active_now"`
	}
	decodeBody(t, rr, &preview)
	want := time.Date(2026, 6, 20, 12, 40, 0, 0, time.UTC)
	if !preview.NextExecution.Equal(want) {
		t.Fatalf("preview next = %v, want %v", preview.NextExecution, want)
	}
	if preview.Countdown != "6m" {
		t.Fatalf("countdown = %q", preview.Countdown)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/automation/rules/"+rule.ID+"/disable", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("disable status = %d", rr.Code)
	}
	var reloaded models.AutomationRule
	if err := db.First(&reloaded, "id = ?", rule.ID).Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if reloaded.Enabled {
		t.Fatal("rule should be disabled")
	}

	rr = doJSON(t, handler, http.MethodDelete, "/api/v1/automation/rules/"+rule.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
}

func TestRuleSimulate(t *testing.T) {
	_, _, handler := newTestAPI(t)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/automation/simulate", map[string]any{
		"kind":   "daily_at",
		"hour":   8,
		"minute": 30,
		"at":     "2026-06-20T09:00:00Z",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("simulate status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		NextExecution time.Time `json:"next_execution"`
		LastExecution time.Time `json:"last_execution"`
	}
	decodeBody(t, rr, &resp)
	if !resp.NextExecution.Equal(time.Date(2026, 6, 21, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("next = %v", resp.NextExecution)
	}
	if !resp.LastExecution.Equal(time.Date(2026, 6, 20, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("last = %v", resp.LastExecution)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/automation/simulate", map[string]any{
		"kind": "weekly",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind status = %d", rr.Code)
	}
}

func TestCouponEndpoints(t *testing.T) {
	_, _, handler := newTestAPI(t)

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/coupons", map[string]any{
		"title":         "Welcome bonus",
		"code":          "WELCOME50",
		"affiliate_url": "https://aff.example/welcome",
		"bookmaker":     "betfair",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rr.Code, rr.Body.String())
	}
	var coupon models.Coupon
	decodeBody(t, rr, &coupon)

	// Click counts and redirects.
	rr = doJSON(t, handler, http.MethodGet, "/api/v1/coupons/"+coupon.ID+"/click", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("click status = %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "https://aff.example/welcome" {
		t.Fatalf("redirect location = %q", loc)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/coupons/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rr.Code)
	}
	var stats struct {
		TotalCoupons int   `json:"total_coupons"`
		TotalClicks  int64 `json:"total_clicks"`
	}
	decodeBody(t, rr, &stats)
	if stats.TotalCoupons != 1 || stats.TotalClicks != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMatchesEndpoints(t *testing.T) {
	_, _, handler := newTestAPI(t)

	rr := doJSON(t, handler, http.MethodPut, "/api/v1/daily-matches", map[string]any{
		"matches": []map[string]any{
			{"external_id": "f1", "home_team": "Arsenal", "away_team": "Chelsea", "kickoff_at": "2026-06-20T14:00:00Z", "importance": 9.1},
			{"external_id": "f2", "home_team": "Leeds", "away_team": "Fulham", "kickoff_at": "2026-06-20T16:00:00Z", "importance": 4.2},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("upsert status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/daily-matches/select?date=2026-06-20", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("select status = %d body=%s", rr.Code, rr.Body.String())
	}
	var selectResp struct {
		Selected []models.Match `json:"selected"`
	}
	decodeBody(t, rr, &selectResp)
	if len(selectResp.Selected) != 2 {
		t.Fatalf("selected %d, want 2", len(selectResp.Selected))
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/daily-matches?date=2026-06-20", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var listResp struct {
		Matches []models.Match `json:"matches"`
	}
	decodeBody(t, rr, &listResp)
	if len(listResp.Matches) != 2 {
		t.Fatalf("listed %d matches", len(listResp.Matches))
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/v1/daily-matches/"+listResp.Matches[0].ID+"/unselect", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unselect status = %d", rr.Code)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/daily-matches?date=bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", rr.Code)
	}
}

func TestDeliveriesListFilters(t *testing.T) {
	_, db, handler := newTestAPI(t)

	now := time.Now().UTC()
	entries := []models.DeliveryLog{
		{ID: "d1", RuleID: "r1", ChannelID: "c1", Status: models.DeliverySent, DispatchedAt: now.Add(-time.Hour)},
		{ID: "d2", RuleID: "r2", ChannelID: "c2", Status: models.DeliveryFailed, DispatchedAt: now.Add(-30 * time.Minute)},
		{ID: "d3", RuleID: "r1", ChannelID: "c1", Status: models.DeliverySkipped, DispatchedAt: now.Add(-10 * 24 * time.Hour)},
	}
	for _, e := range entries {
		if err := db.Create(&e).Error; err != nil {
			t.Fatalf("seed log: %v", err)
		}
	}

	rr := doJSON(t, handler, http.MethodGet, "/api/v1/deliveries?channel_id=c1", nil)
	var resp struct {
		Deliveries []models.DeliveryLog `json:"deliveries"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Deliveries) != 2 {
		t.Fatalf("channel filter got %d, want 2", len(resp.Deliveries))
	}

	since := now.Add(-2 * time.Hour).Format(time.RFC3339)
	rr = doJSON(t, handler, http.MethodGet, "/api/v1/deliveries?channel_id=c1&since="+since, nil)
	resp.Deliveries = nil
	decodeBody(t, rr, &resp)
	if len(resp.Deliveries) != 1 || resp.Deliveries[0].ID != "d1" {
		t.Fatalf("since filter = %+v", resp.Deliveries)
	}
}

func TestRRuleExport(t *testing.T) {
	_, db, handler := newTestAPI(t)

	channel := models.Channel{ID: "chan-1", Name: "Main", Timezone: "UTC", Active: true}
	if err := db.Create(&channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}

	rr := doJSON(t, handler, http.MethodPost, "/api/v1/automation/rules", map[string]any{
		"channel_id":   "chan-1",
		"name":         "Daily digest",
		"content_type": "daily_summary",
		"kind":         "daily_at",
		"hour":         8,
		"minute":       30,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create rule status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/v1/channels/chan-1/export/rrule", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Rules []struct {
			RRule string `json:"rrule"`
		} `json:"rules"`
	}
	decodeBody(t, rr, &resp)
	if len(resp.Rules) != 1 {
		t.Fatalf("exported %d rules, want 1", len(resp.Rules))
	}
	if resp.Rules[0].RRule != "FREQ=DAILY;BYHOUR=8;BYMINUTE=30;BYSECOND=0" {
		t.Fatalf("rrule = %q", resp.Rules[0].RRule)
	}
}
