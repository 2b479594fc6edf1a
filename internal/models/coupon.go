/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Coupon is an affiliate offer that can be pushed to channels. A nil
// ChannelID marks a network-wide coupon.
type Coupon struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	ChannelID    *string `gorm:"type:uuid;index:idx_coupons_channel"`
	Title        string  `gorm:"type:varchar(255);not null"`
	Code         string  `gorm:"type:varchar(64);index"`
	AffiliateURL string  `gorm:"type:varchar(1024)"`
	Bookmaker    string  `gorm:"type:varchar(128)"`
	ImagePath    string  `gorm:"type:varchar(512)"` // object storage key
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	Active       bool  `gorm:"not null;default:true"`
	Clicks       int64 `gorm:"not null;default:0"`
	Impressions  int64 `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM.
func (Coupon) TableName() string {
	return "coupons"
}

// ValidAt reports whether the coupon is inside its validity window.
func (c Coupon) ValidAt(t time.Time) bool {
	if !c.Active {
		return false
	}
	if c.ValidFrom != nil && t.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && t.After(*c.ValidUntil) {
		return false
	}
	return true
}
