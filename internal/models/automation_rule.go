/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/botdeckhq/botdeck/internal/recurrence"
)

// AutomationRule schedules recurring content for a channel. The recurrence
// fields are flattened columns of a recurrence.Rule; use Rule()/SetRule()
// to convert.
type AutomationRule struct {
	ID          string      `gorm:"type:uuid;primaryKey"`
	ChannelID   string      `gorm:"type:uuid;index:idx_automation_rules_channel;not null"`
	Name        string      `gorm:"type:varchar(255);not null"`
	ContentType ContentType `gorm:"type:varchar(32);not null"`

	Kind            recurrence.Kind `gorm:"type:varchar(16);not null"`
	Hour            int
	Minute          int
	Interval        int
	WindowStartHour *int
	WindowEndHour   *int

	Enabled   bool `gorm:"not null;default:true"`
	NextRunAt *time.Time
	LastRunAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Channel *Channel `gorm:"foreignKey:ChannelID"`
}

// TableName returns the table name for GORM.
func (AutomationRule) TableName() string {
	return "automation_rules"
}

// Rule reconstructs the recurrence rule from the flattened columns.
func (r AutomationRule) Rule() recurrence.Rule {
	rule := recurrence.Rule{
		ID:       r.ID,
		Kind:     r.Kind,
		Hour:     r.Hour,
		Minute:   r.Minute,
		Interval: r.Interval,
	}
	if r.WindowStartHour != nil && r.WindowEndHour != nil {
		rule.Window = &recurrence.Window{
			StartHour: *r.WindowStartHour,
			EndHour:   *r.WindowEndHour,
		}
	}
	return rule
}

// SetRule flattens a recurrence rule onto the model's columns.
func (r *AutomationRule) SetRule(rule recurrence.Rule) {
	r.Kind = rule.Kind
	r.Hour = rule.Hour
	r.Minute = rule.Minute
	r.Interval = rule.Interval
	if rule.Window != nil {
		start, end := rule.Window.StartHour, rule.Window.EndHour
		r.WindowStartHour = &start
		r.WindowEndHour = &end
	} else {
		r.WindowStartHour = nil
		r.WindowEndHour = nil
	}
}
