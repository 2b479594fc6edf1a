/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for all sensitive operations.
const (
	AuditActionChannelCreate     AuditAction = "channel.create"
	AuditActionChannelUpdate     AuditAction = "channel.update"
	AuditActionChannelDelete     AuditAction = "channel.delete"
	AuditActionChannelActivate   AuditAction = "channel.activate"
	AuditActionChannelDeactivate AuditAction = "channel.deactivate"
	AuditActionManagerSubmit     AuditAction = "manager.submit"
	AuditActionManagerApprove    AuditAction = "manager.approve"
	AuditActionManagerReject     AuditAction = "manager.reject"
	AuditActionManagerAssign     AuditAction = "manager.assign"
	AuditActionManagerUnassign   AuditAction = "manager.unassign"
	AuditActionRuleCreate        AuditAction = "rule.create"
	AuditActionRuleUpdate        AuditAction = "rule.update"
	AuditActionRuleDelete        AuditAction = "rule.delete"
	AuditActionRuleEnable        AuditAction = "rule.enable"
	AuditActionRuleDisable       AuditAction = "rule.disable"
	AuditActionCouponCreate      AuditAction = "coupon.create"
	AuditActionCouponUpdate      AuditAction = "coupon.update"
	AuditActionCouponDelete      AuditAction = "coupon.delete"
	AuditActionMatchesSelect     AuditAction = "matches.select"
)

// AuditLog records sensitive operations for review.
type AuditLog struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null"`
	Actor        string         `gorm:"type:varchar(255)"` // empty for system actions
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null"`
	ResourceType string         `gorm:"type:varchar(64)"` // "channel", "manager", "rule", ...
	ResourceID   string         `gorm:"type:uuid"`
	Details      map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt    time.Time
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
