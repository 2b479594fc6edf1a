/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/botdeckhq/botdeck/internal/migration"
	"github.com/botdeckhq/botdeck/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Channel{},
		&models.Manager{},
		&models.ChannelManager{},
		&models.AutomationRule{},
		&models.Coupon{},
		&models.Match{},
		&models.DeliveryLog{},
		&models.AuditLog{},
		&migration.Job{},
	); err != nil {
		return err
	}

	if err := normalizeLegacyManagerStatuses(database); err != nil {
		return err
	}

	return nil
}

// normalizeLegacyManagerStatuses maps status values written by the previous
// dashboard ("waiting", "ok", "denied") onto the current enum.
func normalizeLegacyManagerStatuses(database *gorm.DB) error {
	if err := database.Exec("UPDATE managers SET status = ? WHERE LOWER(TRIM(status)) IN ?", models.ManagerPending, []string{"waiting", "new"}).Error; err != nil {
		return fmt.Errorf("normalize legacy pending manager status: %w", err)
	}
	if err := database.Exec("UPDATE managers SET status = ? WHERE LOWER(TRIM(status)) = ?", models.ManagerApproved, "ok").Error; err != nil {
		return fmt.Errorf("normalize legacy approved manager status: %w", err)
	}
	if err := database.Exec("UPDATE managers SET status = ? WHERE LOWER(TRIM(status)) = ?", models.ManagerRejected, "denied").Error; err != nil {
		return fmt.Errorf("normalize legacy rejected manager status: %w", err)
	}
	return nil
}
