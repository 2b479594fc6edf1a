/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package coupons

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
	"github.com/botdeckhq/botdeck/internal/storage"
)

func newCouponTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Coupon{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := storage.NewFilesystemStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("filesystem store: %v", err)
	}
	return NewService(newCouponTestDB(t), events.NewBus(), nil, store, zerolog.Nop())
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coupon := &models.Coupon{Title: "Welcome bonus", Code: "WELCOME50", Bookmaker: "betfair", AffiliateURL: "https://aff.example/welcome"}
	if err := svc.Create(ctx, coupon); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if coupon.ID == "" {
		t.Fatal("expected coupon ID to be assigned")
	}

	got, err := svc.Get(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Code != "WELCOME50" || !got.Active {
		t.Fatalf("unexpected coupon: %+v", got)
	}
}

func TestCreateRejectsInvertedWindow(t *testing.T) {
	svc := newTestService(t)
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(-24 * time.Hour)

	err := svc.Create(context.Background(), &models.Coupon{Title: "Broken", ValidFrom: &from, ValidUntil: &until})
	if err == nil {
		t.Fatal("expected error for inverted validity window")
	}
}

func TestListScopesChannelAndValidity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	chanA := "chan-a"
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	earlier := now.Add(-96 * time.Hour)

	network := &models.Coupon{Title: "Network-wide"}
	scoped := &models.Coupon{Title: "Channel A only", ChannelID: &chanA}
	expired := &models.Coupon{Title: "Expired", ValidFrom: &earlier, ValidUntil: &past}
	for _, c := range []*models.Coupon{network, scoped, expired} {
		if err := svc.Create(ctx, c); err != nil {
			t.Fatalf("Create(%s) error = %v", c.Title, err)
		}
	}

	got, err := svc.List(ctx, ListFilters{ChannelID: chanA, ValidAt: now, ActiveOnly: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d coupons, want 2 (network-wide + channel-scoped)", len(got))
	}
	for _, c := range got {
		if c.Title == "Expired" {
			t.Fatal("expired coupon should be filtered out")
		}
	}

	other, err := svc.List(ctx, ListFilters{ChannelID: "chan-b"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(other) != 2 {
		t.Fatalf("chan-b sees %d coupons, want 2 (network-wide + expired)", len(other))
	}
}

func TestTrackClickRedirectsAndCounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coupon := &models.Coupon{Title: "Odds boost", AffiliateURL: "https://aff.example/boost"}
	if err := svc.Create(ctx, coupon); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	url, err := svc.TrackClick(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("TrackClick() error = %v", err)
	}
	if url != "https://aff.example/boost" {
		t.Fatalf("redirect URL = %q", url)
	}
	if _, err := svc.TrackClick(ctx, coupon.ID); err != nil {
		t.Fatalf("second TrackClick() error = %v", err)
	}

	got, err := svc.Get(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Clicks != 2 {
		t.Fatalf("clicks = %d, want 2", got.Clicks)
	}

	if _, err := svc.TrackClick(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TrackClick(missing) error = %v, want ErrNotFound", err)
	}
}

func TestTrackImpressions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coupon := &models.Coupon{Title: "Acca insurance"}
	if err := svc.Create(ctx, coupon); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.TrackImpressions(ctx, coupon.ID, 150); err != nil {
		t.Fatalf("TrackImpressions() error = %v", err)
	}
	if err := svc.TrackImpressions(ctx, coupon.ID, 0); err != nil {
		t.Fatalf("TrackImpressions(0) error = %v", err)
	}

	got, err := svc.Get(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Impressions != 150 {
		t.Fatalf("impressions = %d, want 150", got.Impressions)
	}
}

func TestAttachCreativeStoresKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coupon := &models.Coupon{Title: "Free bet"}
	if err := svc.Create(ctx, coupon); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.AttachCreative(ctx, coupon.ID, "banner.png", "image/png", []byte{0x89, 0x50, 0x4e, 0x47})
	if err != nil {
		t.Fatalf("AttachCreative() error = %v", err)
	}
	want := "coupons/" + coupon.ID + ".png"
	if updated.ImagePath != want {
		t.Fatalf("ImagePath = %q, want %q", updated.ImagePath, want)
	}
	if url := svc.CreativeURL(updated); url == "" {
		t.Fatal("expected non-empty creative URL")
	}
}

func TestDeleteRemovesCoupon(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	coupon := &models.Coupon{Title: "Ephemeral"}
	if err := svc.Create(ctx, coupon); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Delete(ctx, coupon.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, coupon.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestStatsAggregates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	active := &models.Coupon{Title: "Active"}
	inactive := &models.Coupon{Title: "Inactive"}
	for _, c := range []*models.Coupon{active, inactive} {
		if err := svc.Create(ctx, c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if _, err := svc.Update(ctx, inactive.ID, map[string]any{"active": false}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := svc.TrackClick(ctx, active.ID); err != nil {
		t.Fatalf("TrackClick() error = %v", err)
	}
	if err := svc.TrackImpressions(ctx, active.ID, 40); err != nil {
		t.Fatalf("TrackImpressions() error = %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalCoupons != 2 || stats.ActiveCoupons != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", stats.TotalCoupons, stats.ActiveCoupons)
	}
	if stats.TotalClicks != 1 || stats.TotalImpressions != 40 {
		t.Fatalf("counters = %d clicks / %d impressions", stats.TotalClicks, stats.TotalImpressions)
	}
}
