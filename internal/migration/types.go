/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package migration

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current state of an import job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// SourceType identifies the system being imported from.
type SourceType string

const (
	// SourceTypeLegacyDashboard is the previous-generation channel dashboard
	// with its own Postgres schema.
	SourceTypeLegacyDashboard SourceType = "legacy_dashboard"
)

// Job tracks one import run end to end.
type Job struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	SourceType SourceType `json:"source_type" gorm:"type:varchar(50);not null"`
	Status     JobStatus  `json:"status" gorm:"type:varchar(50);not null;default:'pending'"`
	DryRun     bool       `json:"dry_run" gorm:"not null;default:false"`
	Options    Options    `json:"options" gorm:"type:jsonb"`
	Progress   Progress   `json:"progress" gorm:"type:jsonb"`
	Result     *Result    `json:"result,omitempty" gorm:"type:jsonb"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`

	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName keeps import jobs out of the application tables' namespace.
func (Job) TableName() string {
	return "import_jobs"
}

// Options configures an import run.
type Options struct {
	// DryRun walks the source and reports counts without writing anything.
	DryRun bool `json:"dry_run"`

	// Entity toggles.
	SkipChannels bool `json:"skip_channels"`
	SkipManagers bool `json:"skip_managers"`
	SkipCoupons  bool `json:"skip_coupons"`
	SkipRules    bool `json:"skip_rules"`

	// Legacy dashboard Postgres connection.
	LegacyDBHost     string `json:"legacy_db_host,omitempty"`
	LegacyDBPort     int    `json:"legacy_db_port,omitempty"`
	LegacyDBName     string `json:"legacy_db_name,omitempty"`
	LegacyDBUser     string `json:"legacy_db_user,omitempty"`
	LegacyDBPassword string `json:"legacy_db_password,omitempty"`
	LegacyDBSSLMode  string `json:"legacy_db_sslmode,omitempty"`
}

// Progress tracks where a running import stands.
type Progress struct {
	Phase            string    `json:"phase"`
	TotalSteps       int       `json:"total_steps"`
	CompletedSteps   int       `json:"completed_steps"`
	CurrentStep      string    `json:"current_step"`
	ChannelsTotal    int       `json:"channels_total"`
	ChannelsImported int       `json:"channels_imported"`
	ManagersTotal    int       `json:"managers_total"`
	ManagersImported int       `json:"managers_imported"`
	CouponsTotal     int       `json:"coupons_total"`
	CouponsImported  int       `json:"coupons_imported"`
	RulesTotal       int       `json:"rules_total"`
	RulesImported    int       `json:"rules_imported"`
	Percentage       float64   `json:"percentage"`
	StartTime        time.Time `json:"start_time"`
}

// Result is the final accounting for a completed run.
type Result struct {
	ChannelsCreated int      `json:"channels_created"`
	ManagersCreated int      `json:"managers_created"`
	CouponsCreated  int      `json:"coupons_created"`
	RulesCreated    int      `json:"rules_created"`
	RulesSkipped    int      `json:"rules_skipped"`
	Warnings        []string `json:"warnings,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// ProgressCallback receives progress snapshots while an import runs.
type ProgressCallback func(Progress)

// Importer is implemented per source system.
type Importer interface {
	// Validate checks that the options are sufficient to reach the source.
	Validate(ctx context.Context, options Options) error

	// Import runs the migration and reports progress through the callback.
	Import(ctx context.Context, options Options, progress ProgressCallback) (*Result, error)
}

// Value implements driver.Valuer for jsonb storage.
func (o Options) Value() (driver.Value, error) {
	return json.Marshal(o)
}

// Scan implements sql.Scanner.
func (o *Options) Scan(value interface{}) error {
	return scanJSON(value, o)
}

// Value implements driver.Valuer for jsonb storage.
func (p Progress) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Progress) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// Value implements driver.Valuer for jsonb storage.
func (r Result) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *Result) Scan(value interface{}) error {
	return scanJSON(value, r)
}

func scanJSON(value interface{}, dest any) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unmarshal %T: expected []byte or string, got %T", dest, value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
