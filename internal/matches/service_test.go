/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package matches

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/recurrence"
)

func newMatchTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Match{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func kickoff(hour int) time.Time {
	return time.Date(2026, 6, 20, hour, 0, 0, 0, time.UTC)
}

func seedFixtures(t *testing.T, svc *Service) []models.Match {
	t.Helper()

	fixtures := []models.Match{
		{ExternalID: "f1", League: "EPL", HomeTeam: "Arsenal", AwayTeam: "Chelsea", KickoffAt: kickoff(14), Importance: 9.1},
		{ExternalID: "f2", League: "EPL", HomeTeam: "Leeds", AwayTeam: "Fulham", KickoffAt: kickoff(16), Importance: 4.2},
		{ExternalID: "f3", League: "La Liga", HomeTeam: "Barcelona", AwayTeam: "Sevilla", KickoffAt: kickoff(19), Importance: 8.7},
		{ExternalID: "f4", League: "Serie A", HomeTeam: "Inter", AwayTeam: "Milan", KickoffAt: kickoff(18), Importance: 8.9},
	}
	if _, err := svc.Upsert(context.Background(), fixtures); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return fixtures
}

func TestUpsertKeysOnExternalID(t *testing.T) {
	svc := NewService(newMatchTestDB(t), events.NewBus(), 3, zerolog.Nop())
	ctx := context.Background()
	seedFixtures(t, svc)

	// Re-import the same fixture with a new importance score.
	n, err := svc.Upsert(ctx, []models.Match{
		{ExternalID: "f2", League: "EPL", HomeTeam: "Leeds", AwayTeam: "Fulham", KickoffAt: kickoff(16), Importance: 9.9},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("upserted %d, want 1", n)
	}

	day, err := svc.ByDate(ctx, "2026-06-20")
	if err != nil {
		t.Fatalf("ByDate() error = %v", err)
	}
	if len(day) != 4 {
		t.Fatalf("got %d fixtures, want 4 (no duplicate row)", len(day))
	}
	for _, m := range day {
		if m.ExternalID == "f2" && m.Importance != 9.9 {
			t.Fatalf("f2 importance = %v, want refreshed 9.9", m.Importance)
		}
	}
}

func TestUpsertPreservesSelection(t *testing.T) {
	svc := NewService(newMatchTestDB(t), events.NewBus(), 3, zerolog.Nop())
	ctx := context.Background()
	seedFixtures(t, svc)

	if _, err := svc.SelectTop(ctx, "2026-06-20"); err != nil {
		t.Fatalf("SelectTop() error = %v", err)
	}
	if _, err := svc.Upsert(ctx, []models.Match{
		{ExternalID: "f1", League: "EPL", HomeTeam: "Arsenal", AwayTeam: "Chelsea", KickoffAt: kickoff(14), Importance: 9.1},
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	day, err := svc.ByDate(ctx, "2026-06-20")
	if err != nil {
		t.Fatalf("ByDate() error = %v", err)
	}
	for _, m := range day {
		if m.ExternalID == "f1" && !m.Selected {
			t.Fatal("re-import cleared the Selected flag")
		}
	}
}

func TestSelectTopPicksByImportance(t *testing.T) {
	svc := NewService(newMatchTestDB(t), events.NewBus(), 3, zerolog.Nop())
	ctx := context.Background()
	seedFixtures(t, svc)

	top, err := svc.SelectTop(ctx, "2026-06-20")
	if err != nil {
		t.Fatalf("SelectTop() error = %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("selected %d, want 3", len(top))
	}

	want := map[string]bool{"f1": true, "f4": true, "f3": true}
	for _, m := range top {
		if !want[m.ExternalID] {
			t.Fatalf("unexpected selection %q", m.ExternalID)
		}
		if !m.Selected {
			t.Fatalf("%q returned without Selected flag", m.ExternalID)
		}
	}

	// Recomputing clears previous picks before selecting again.
	again, err := svc.SelectTop(ctx, "2026-06-20")
	if err != nil {
		t.Fatalf("second SelectTop() error = %v", err)
	}
	if len(again) != 3 {
		t.Fatalf("second selection size = %d, want 3", len(again))
	}

	day, err := svc.ByDate(ctx, "2026-06-20")
	if err != nil {
		t.Fatalf("ByDate() error = %v", err)
	}
	selected := 0
	for _, m := range day {
		if m.Selected {
			selected++
		}
	}
	if selected != 3 {
		t.Fatalf("%d fixtures selected in DB, want 3", selected)
	}
}

func TestSelectTopEmptyDay(t *testing.T) {
	svc := NewService(newMatchTestDB(t), events.NewBus(), 3, zerolog.Nop())

	top, err := svc.SelectTop(context.Background(), "2026-01-01")
	if err != nil {
		t.Fatalf("SelectTop() error = %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("selected %d fixtures on empty day", len(top))
	}
}

func TestSetSelectedOverride(t *testing.T) {
	svc := NewService(newMatchTestDB(t), events.NewBus(), 3, zerolog.Nop())
	ctx := context.Background()
	seedFixtures(t, svc)

	day, err := svc.ByDate(ctx, "2026-06-20")
	if err != nil {
		t.Fatalf("ByDate() error = %v", err)
	}
	var underdog models.Match
	for _, m := range day {
		if m.ExternalID == "f2" {
			underdog = m
		}
	}

	updated, err := svc.SetSelected(ctx, underdog.ID, true)
	if err != nil {
		t.Fatalf("SetSelected() error = %v", err)
	}
	if !updated.Selected {
		t.Fatal("expected fixture to be selected")
	}

	updated, err = svc.SetSelected(ctx, underdog.ID, false)
	if err != nil {
		t.Fatalf("SetSelected(false) error = %v", err)
	}
	if updated.Selected {
		t.Fatal("expected fixture to be unselected")
	}

	if _, err := svc.SetSelected(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetSelected(missing) error = %v, want ErrNotFound", err)
	}
}

func TestPreviewRulesBuildDailyAtBeforeKickoff(t *testing.T) {
	svc := NewService(newMatchTestDB(t), events.NewBus(), 2, zerolog.Nop())
	ctx := context.Background()
	seedFixtures(t, svc)

	if _, err := svc.SelectTop(ctx, "2026-06-20"); err != nil {
		t.Fatalf("SelectTop() error = %v", err)
	}

	channel := &models.Channel{ID: "chan-tr", Name: "TR Main", Timezone: "Europe/Istanbul"}
	rules, err := svc.PreviewRules(ctx, "2026-06-20", channel)
	if err != nil {
		t.Fatalf("PreviewRules() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2 (topN)", len(rules))
	}

	for _, rule := range rules {
		if rule.ContentType != models.ContentTypeMatchPreview {
			t.Fatalf("content type = %q", rule.ContentType)
		}
		if rule.ChannelID != "chan-tr" {
			t.Fatalf("channel = %q", rule.ChannelID)
		}
		if err := rule.Rule().Validate(); err != nil {
			t.Fatalf("generated rule invalid: %v", err)
		}
	}

	// f1 kicks off 14:00 UTC = 17:00 Istanbul; preview fires two hours
	// before, at 15:00 local.
	var arsenal *models.AutomationRule
	for i := range rules {
		if rules[i].Name == "Preview: Arsenal vs Chelsea" {
			arsenal = &rules[i]
		}
	}
	if arsenal == nil {
		t.Fatal("missing rule for Arsenal vs Chelsea")
	}
	if arsenal.Kind != recurrence.KindDailyAt || arsenal.Hour != 15 || arsenal.Minute != 0 {
		t.Fatalf("rule fires %s %02d:%02d, want daily_at 15:00", arsenal.Kind, arsenal.Hour, arsenal.Minute)
	}
}
