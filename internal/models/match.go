/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Match is a fixture eligible for the "daily important matches" pipeline.
// DateIndex is the kickoff date as YYYY-MM-DD in UTC, used for per-day
// grouping and the top-N selection.
type Match struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	ExternalID string `gorm:"type:varchar(64);uniqueIndex"`
	League     string `gorm:"type:varchar(128);index"`
	HomeTeam   string `gorm:"type:varchar(128);not null"`
	AwayTeam   string `gorm:"type:varchar(128);not null"`
	KickoffAt  time.Time
	Importance float64 `gorm:"not null;default:0"` // ranking score, higher first
	Selected   bool    `gorm:"index;not null;default:false"`
	DateIndex  string  `gorm:"type:varchar(10);index:idx_matches_date;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM.
func (Match) TableName() string {
	return "matches"
}

// MatchDateIndex formats a kickoff instant into the per-day grouping key.
func MatchDateIndex(kickoff time.Time) string {
	return kickoff.UTC().Format("2006-01-02")
}
