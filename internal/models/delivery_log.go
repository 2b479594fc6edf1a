/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// DeliveryStatus is the outcome of a single dispatch attempt.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped" // rule fired outside its active window
)

// DeliveryLog records one dispatch attempt to the delivery engine.
type DeliveryLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	RuleID       string         `gorm:"type:uuid;index:idx_delivery_logs_rule"`
	ChannelID    string         `gorm:"type:uuid;index:idx_delivery_logs_channel"`
	ContentType  ContentType    `gorm:"type:varchar(32)"`
	ScheduledFor time.Time      `gorm:"index:idx_delivery_logs_scheduled"`
	DispatchedAt time.Time      `gorm:"index:idx_delivery_logs_dispatched;not null"`
	Status       DeliveryStatus `gorm:"type:varchar(16);index;not null"`
	Detail       string         `gorm:"type:text"` // engine response or error text
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (DeliveryLog) TableName() string {
	return "delivery_logs"
}
