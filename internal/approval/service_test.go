/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
)

func newApprovalTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Channel{}, &models.Manager{}, &models.ChannelManager{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newApprovalTestDB(t)
	return NewService(db, events.NewBus(), zerolog.Nop()), db
}

func TestSubmitStartsPending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	manager := &models.Manager{DisplayName: "Ada", TelegramUserID: "1001", Language: "en"}
	if err := svc.Submit(ctx, manager); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if manager.ID == "" {
		t.Fatal("expected manager ID to be assigned")
	}

	got, err := svc.Get(ctx, manager.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.ManagerPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
}

func TestApproveRejectsDoubleReview(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	manager := &models.Manager{DisplayName: "Ada", TelegramUserID: "1001"}
	if err := svc.Submit(ctx, manager); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	approved, err := svc.Approve(ctx, manager.ID, "looks good")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != models.ManagerApproved {
		t.Fatalf("status = %q, want approved", approved.Status)
	}
	if approved.ReviewedAt == nil {
		t.Fatal("expected ReviewedAt to be set")
	}

	if _, err := svc.Approve(ctx, manager.ID, "again"); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("second Approve() error = %v, want ErrAlreadyReviewed", err)
	}
	if _, err := svc.Reject(ctx, manager.ID, "nah"); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("Reject() after approve error = %v, want ErrAlreadyReviewed", err)
	}
}

func TestRejectKeepsNote(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	manager := &models.Manager{DisplayName: "Bob", TelegramUserID: "1002"}
	if err := svc.Submit(ctx, manager); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rejected, err := svc.Reject(ctx, manager.ID, "incomplete application")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != models.ManagerRejected {
		t.Fatalf("status = %q, want rejected", rejected.Status)
	}
	if rejected.ReviewNote != "incomplete application" {
		t.Fatalf("note = %q", rejected.ReviewNote)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first := &models.Manager{DisplayName: "Ada", TelegramUserID: "1001"}
	second := &models.Manager{DisplayName: "Bob", TelegramUserID: "1002"}
	for _, m := range []*models.Manager{first, second} {
		if err := svc.Submit(ctx, m); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if _, err := svc.Approve(ctx, first.ID, ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	pending, err := svc.List(ctx, models.ManagerPending)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Fatalf("pending list = %+v, want just %s", pending, second.ID)
	}

	all, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all list length = %d, want 2", len(all))
	}
}

func TestAssignRequiresApproval(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	channel := models.Channel{ID: "chan-1", Name: "Main EN", Timezone: "UTC"}
	if err := db.Create(&channel).Error; err != nil {
		t.Fatalf("create channel: %v", err)
	}

	manager := &models.Manager{DisplayName: "Ada", TelegramUserID: "1001"}
	if err := svc.Submit(ctx, manager); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := svc.Assign(ctx, channel.ID, manager.ID, ""); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("Assign() of pending manager error = %v, want ErrNotApproved", err)
	}

	if _, err := svc.Approve(ctx, manager.ID, ""); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if err := svc.Assign(ctx, channel.ID, manager.ID, "editor"); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}

	assigned, err := svc.ChannelManagers(ctx, channel.ID)
	if err != nil {
		t.Fatalf("ChannelManagers() error = %v", err)
	}
	if len(assigned) != 1 || assigned[0].ID != manager.ID {
		t.Fatalf("assigned = %+v, want manager %s", assigned, manager.ID)
	}

	if err := svc.Unassign(ctx, channel.ID, manager.ID); err != nil {
		t.Fatalf("Unassign() error = %v", err)
	}
	assigned, err = svc.ChannelManagers(ctx, channel.ID)
	if err != nil {
		t.Fatalf("ChannelManagers() error = %v", err)
	}
	if len(assigned) != 0 {
		t.Fatalf("assigned after unassign = %+v, want empty", assigned)
	}
}

func TestGetUnknownManager(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}
