/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/delivery"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/recurrence"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []delivery.Request
	err      error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req delivery.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakeDispatcher) calls() []delivery.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery.Request(nil), f.requests...)
}

func newAutomationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.AutomationRule{}, &models.DeliveryLog{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func seedChannel(t *testing.T, db *gorm.DB, mutate func(*models.Channel)) *models.Channel {
	t.Helper()

	channel := &models.Channel{
		ID:             "chan-1",
		Name:           "Main EN",
		TelegramChatID: "-100123",
		Language:       "en",
		Timezone:       "UTC",
		Active:         true,
		Approved:       true,
	}
	if mutate != nil {
		mutate(channel)
	}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}
	return channel
}

func seedRule(t *testing.T, db *gorm.DB, channel *models.Channel, rec recurrence.Rule, due time.Time) *models.AutomationRule {
	t.Helper()

	rule := &models.AutomationRule{
		ID:          "rule-" + rec.ID,
		ChannelID:   channel.ID,
		Name:        "test rule",
		ContentType: models.ContentTypeNews,
		Enabled:     true,
	}
	rule.SetRule(rec)
	if !due.IsZero() {
		dueUTC := due.UTC()
		rule.NextRunAt = &dueUTC
	}
	if err := db.Create(rule).Error; err != nil {
		t.Fatalf("create rule: %v", err)
	}
	return rule
}

func deliveryLogs(t *testing.T, db *gorm.DB) []models.DeliveryLog {
	t.Helper()
	var logs []models.DeliveryLog
	if err := db.Find(&logs).Error; err != nil {
		t.Fatalf("load delivery logs: %v", err)
	}
	return logs
}

func TestTickDispatchesDueRule(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, nil)
	now := time.Date(2026, 6, 20, 12, 34, 0, 0, time.UTC)
	seedRule(t, db, channel, recurrence.Rule{ID: "r1", Kind: recurrence.KindEveryMinutes, Interval: 10}, now.Add(-time.Minute))

	svc.Tick(context.Background(), now)

	calls := dispatcher.calls()
	if len(calls) != 1 {
		t.Fatalf("dispatched %d requests, want 1", len(calls))
	}
	if calls[0].ChannelID != channel.ID || calls[0].TelegramChatID != "-100123" {
		t.Fatalf("unexpected request: %+v", calls[0])
	}
	if calls[0].ContentType != models.ContentTypeNews {
		t.Fatalf("content type = %q", calls[0].ContentType)
	}

	logs := deliveryLogs(t, db)
	if len(logs) != 1 || logs[0].Status != models.DeliverySent {
		t.Fatalf("logs = %+v, want one sent entry", logs)
	}

	var updated models.AutomationRule
	if err := db.First(&updated, "id = ?", "rule-r1").Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(now) {
		t.Fatalf("NextRunAt = %v, want after %v", updated.NextRunAt, now)
	}
	if updated.LastRunAt == nil || !updated.LastRunAt.Equal(now) {
		t.Fatalf("LastRunAt = %v, want %v", updated.LastRunAt, now)
	}
}

func TestTickSeedsFreshRuleWithoutDispatch(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, nil)
	seedRule(t, db, channel, recurrence.Rule{ID: "r1", Kind: recurrence.KindDailyAt, Hour: 9}, time.Time{})

	svc.Tick(context.Background(), time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC))

	if len(dispatcher.calls()) != 0 {
		t.Fatal("fresh rule should only be seeded, not dispatched")
	}

	var updated models.AutomationRule
	if err := db.First(&updated, "id = ?", "rule-r1").Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if updated.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be seeded")
	}
	want := time.Date(2026, 6, 21, 9, 0, 0, 0, time.UTC)
	if !updated.NextRunAt.Equal(want) {
		t.Fatalf("NextRunAt = %v, want %v", updated.NextRunAt, want)
	}
}

func TestTickSkipsOutsideWindow(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, nil)
	now := time.Date(2026, 6, 20, 3, 0, 0, 0, time.UTC) // 03:00, outside 10-22
	rec := recurrence.Rule{ID: "r1", Kind: recurrence.KindEveryHours, Interval: 1,
		Window: &recurrence.Window{StartHour: 10, EndHour: 22}}
	seedRule(t, db, channel, rec, now.Add(-time.Minute))

	svc.Tick(context.Background(), now)

	if len(dispatcher.calls()) != 0 {
		t.Fatal("dispatch outside active window")
	}
	logs := deliveryLogs(t, db)
	if len(logs) != 1 || logs[0].Status != models.DeliverySkipped {
		t.Fatalf("logs = %+v, want one skipped entry", logs)
	}

	// The rule still advances so it does not spin on every tick.
	var updated models.AutomationRule
	if err := db.First(&updated, "id = ?", "rule-r1").Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(now) {
		t.Fatalf("NextRunAt = %v, want after %v", updated.NextRunAt, now)
	}
}

func TestTickSkipsInactiveChannel(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, func(c *models.Channel) { c.Active = false })
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	seedRule(t, db, channel, recurrence.Rule{ID: "r1", Kind: recurrence.KindEveryMinutes, Interval: 5}, now.Add(-time.Minute))

	svc.Tick(context.Background(), now)

	if len(dispatcher.calls()) != 0 {
		t.Fatal("dispatched for inactive channel")
	}
	logs := deliveryLogs(t, db)
	if len(logs) != 1 || logs[0].Status != models.DeliverySkipped {
		t.Fatalf("logs = %+v, want one skipped entry", logs)
	}
}

func TestTickSkipsDisabledContentType(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, func(c *models.Channel) {
		c.ContentTypes = []models.ContentType{models.ContentTypeCoupon}
	})
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	seedRule(t, db, channel, recurrence.Rule{ID: "r1", Kind: recurrence.KindEveryMinutes, Interval: 5}, now.Add(-time.Minute))

	svc.Tick(context.Background(), now)

	if len(dispatcher.calls()) != 0 {
		t.Fatal("dispatched a content type the channel has disabled")
	}
	logs := deliveryLogs(t, db)
	if len(logs) != 1 || logs[0].Status != models.DeliverySkipped {
		t.Fatalf("logs = %+v, want one skipped entry", logs)
	}
}

func TestTickRecordsEngineFailure(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{err: errors.New("engine exploded")}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, nil)
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	seedRule(t, db, channel, recurrence.Rule{ID: "r1", Kind: recurrence.KindEveryMinutes, Interval: 5}, now.Add(-time.Minute))

	svc.Tick(context.Background(), now)

	logs := deliveryLogs(t, db)
	if len(logs) != 1 || logs[0].Status != models.DeliveryFailed {
		t.Fatalf("logs = %+v, want one failed entry", logs)
	}
	if logs[0].Detail == "" {
		t.Fatal("expected engine error in detail")
	}

	// No retry: the rule moves on to its next slot.
	var updated models.AutomationRule
	if err := db.First(&updated, "id = ?", "rule-r1").Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(now) {
		t.Fatalf("NextRunAt = %v, want after %v", updated.NextRunAt, now)
	}
}

func TestTickIgnoresDisabledAndFutureRules(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, nil)
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)

	disabled := seedRule(t, db, channel, recurrence.Rule{ID: "r-off", Kind: recurrence.KindEveryMinutes, Interval: 5}, now.Add(-time.Minute))
	if err := db.Model(disabled).Update("enabled", false).Error; err != nil {
		t.Fatalf("disable rule: %v", err)
	}
	seedRule(t, db, channel, recurrence.Rule{ID: "r-later", Kind: recurrence.KindEveryMinutes, Interval: 5}, now.Add(time.Hour))

	svc.Tick(context.Background(), now)

	if len(dispatcher.calls()) != 0 {
		t.Fatalf("dispatched %d requests, want 0", len(dispatcher.calls()))
	}
	if logs := deliveryLogs(t, db); len(logs) != 0 {
		t.Fatalf("logs = %+v, want none", logs)
	}
}

func TestTickDisablesMalformedRule(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, time.Hour, zerolog.Nop())

	channel := seedChannel(t, db, nil)
	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	// Interval of zero can never fire.
	seedRule(t, db, channel, recurrence.Rule{ID: "r-bad", Kind: recurrence.KindEveryMinutes, Interval: 0}, now.Add(-time.Minute))

	svc.Tick(context.Background(), now)

	var updated models.AutomationRule
	if err := db.First(&updated, "id = ?", "rule-r-bad").Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if updated.Enabled {
		t.Fatal("malformed rule should be disabled")
	}
	if len(dispatcher.calls()) != 0 {
		t.Fatal("malformed rule should not dispatch")
	}
}

func TestTickPrunesOldLogs(t *testing.T) {
	db := newAutomationTestDB(t)
	dispatcher := &fakeDispatcher{}
	svc := New(db, events.NewBus(), dispatcher, time.Second, 24*time.Hour, zerolog.Nop())

	now := time.Date(2026, 6, 20, 12, 0, 0, 0, time.UTC)
	old := models.DeliveryLog{ID: "old", RuleID: "r", ChannelID: "c",
		Status: models.DeliverySent, DispatchedAt: now.Add(-48 * time.Hour)}
	fresh := models.DeliveryLog{ID: "fresh", RuleID: "r", ChannelID: "c",
		Status: models.DeliverySent, DispatchedAt: now.Add(-time.Hour)}
	for _, entry := range []models.DeliveryLog{old, fresh} {
		if err := db.Create(&entry).Error; err != nil {
			t.Fatalf("seed log: %v", err)
		}
	}

	svc.Tick(context.Background(), now)

	logs := deliveryLogs(t, db)
	if len(logs) != 1 || logs[0].ID != "fresh" {
		t.Fatalf("logs after prune = %+v, want just fresh", logs)
	}
}

func TestPreviewRule(t *testing.T) {
	rule := models.AutomationRule{ID: "r1", ContentType: models.ContentTypeNews}
	rule.SetRule(recurrence.Rule{Kind: recurrence.KindEveryMinutes, Interval: 10})

	at := time.Date(2026, 6, 20, 12, 34, 0, 0, time.UTC)
	preview, err := PreviewRule(rule, at)
	if err != nil {
		t.Fatalf("PreviewRule() error = %v", err)
	}

	wantNext := time.Date(2026, 6, 20, 12, 40, 0, 0, time.UTC)
	wantLast := time.Date(2026, 6, 20, 12, 30, 0, 0, time.UTC)
	if !preview.NextExecution.Equal(wantNext) {
		t.Fatalf("next = %v, want %v", preview.NextExecution, wantNext)
	}
	if !preview.LastExecution.Equal(wantLast) {
		t.Fatalf("last = %v, want %v", preview.LastExecution, wantLast)
	}
	if preview.Countdown != "6m" {
		t.Fatalf("countdown = %q, want 6m", preview.Countdown)
	}
	if !preview.IsActiveNow {
		t.Fatal("rule without window should always be active")
	}

	rule.SetRule(recurrence.Rule{Kind: "bogus"})
	if _, err := PreviewRule(rule, at); !errors.Is(err, recurrence.ErrInvalidRule) {
		t.Fatalf("PreviewRule(bogus) error = %v, want ErrInvalidRule", err)
	}
}
