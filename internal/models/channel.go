/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ContentType enumerates the kinds of content the delivery engine can
// produce for a channel.
type ContentType string

const (
	ContentTypeNews         ContentType = "news"
	ContentTypeBettingTip   ContentType = "betting_tip"
	ContentTypeCoupon       ContentType = "coupon"
	ContentTypeDailySummary ContentType = "daily_summary"
	ContentTypeMatchPreview ContentType = "match_preview"
	ContentTypeLiveUpdate   ContentType = "live_update"
)

// KnownContentTypes lists every recognised content type.
var KnownContentTypes = []ContentType{
	ContentTypeNews,
	ContentTypeBettingTip,
	ContentTypeCoupon,
	ContentTypeDailySummary,
	ContentTypeMatchPreview,
	ContentTypeLiveUpdate,
}

// Valid reports whether the content type is one of the known constants.
func (c ContentType) Valid() bool {
	for _, known := range KnownContentTypes {
		if c == known {
			return true
		}
	}
	return false
}

// Channel is a single managed messaging channel.
type Channel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	Name           string `gorm:"uniqueIndex;not null"`
	TelegramChatID string `gorm:"type:varchar(64);index"`
	Language       string `gorm:"type:varchar(8)"`  // ISO 639-1
	Timezone       string `gorm:"type:varchar(64)"` // IANA name, e.g. Europe/Istanbul
	Description    string `gorm:"type:text"`
	Active         bool   `gorm:"not null;default:true"`
	Approved       bool   `gorm:"not null;default:false"`
	SortOrder      int
	ContentTypes   []ContentType `gorm:"type:jsonb;serializer:json"` // enabled content types
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM.
func (Channel) TableName() string {
	return "channels"
}

// SupportsContentType reports whether the channel has the content type
// enabled. A channel with no configured types accepts everything.
func (c Channel) SupportsContentType(ct ContentType) bool {
	if len(c.ContentTypes) == 0 {
		return true
	}
	for _, t := range c.ContentTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// Location resolves the channel's IANA timezone, falling back to UTC when
// unset.
func (c Channel) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ManagerStatus tracks where a manager sits in the approval workflow.
type ManagerStatus string

const (
	ManagerPending  ManagerStatus = "pending"
	ManagerApproved ManagerStatus = "approved"
	ManagerRejected ManagerStatus = "rejected"
)

// Manager is a bot manager responsible for one or more channels.
type Manager struct {
	ID             string        `gorm:"type:uuid;primaryKey"`
	DisplayName    string        `gorm:"type:varchar(255);not null"`
	TelegramUserID string        `gorm:"type:varchar(64);uniqueIndex"`
	Language       string        `gorm:"type:varchar(8)"`
	Contact        string        `gorm:"type:varchar(255)"`
	Status         ManagerStatus `gorm:"type:varchar(16);index;not null;default:'pending'"`
	ReviewNote     string        `gorm:"type:text"`
	ReviewedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM.
func (Manager) TableName() string {
	return "managers"
}

// ChannelManager assigns a manager to a channel.
type ChannelManager struct {
	ChannelID string `gorm:"type:uuid;primaryKey"`
	ManagerID string `gorm:"type:uuid;primaryKey"`
	Role      string `gorm:"type:varchar(32);default:'manager'"`
	CreatedAt time.Time

	Channel *Channel `gorm:"foreignKey:ChannelID"`
	Manager *Manager `gorm:"foreignKey:ManagerID"`
}

// TableName returns the table name for GORM.
func (ChannelManager) TableName() string {
	return "channel_managers"
}
