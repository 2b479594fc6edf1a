/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package legacy imports channels, managers, coupons and posting schedules
// from the previous-generation dashboard's Postgres database.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/migration"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/recurrence"
)

// Importer reads the legacy dashboard schema over a direct Postgres
// connection and writes botdeck records.
type Importer struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewImporter creates a legacy dashboard importer.
func NewImporter(db *gorm.DB, logger zerolog.Logger) *Importer {
	return &Importer{
		db:     db,
		logger: logger.With().Str("component", "legacy_importer").Logger(),
	}
}

// Validate checks the connection options without opening a connection.
func (i *Importer) Validate(_ context.Context, options migration.Options) error {
	if options.LegacyDBHost == "" {
		return fmt.Errorf("legacy_db_host is required")
	}
	if options.LegacyDBName == "" {
		return fmt.Errorf("legacy_db_name is required")
	}
	if options.LegacyDBUser == "" {
		return fmt.Errorf("legacy_db_user is required")
	}
	return nil
}

// Import runs the migration against the legacy database.
func (i *Importer) Import(ctx context.Context, options migration.Options, progress migration.ProgressCallback) (*migration.Result, error) {
	dsn := buildDSN(options)
	i.logger.Info().
		Str("host", options.LegacyDBHost).
		Str("database", options.LegacyDBName).
		Bool("dry_run", options.DryRun).
		Msg("starting legacy dashboard import")

	report := newReporter(progress)
	report.step(1, "connecting to legacy database")

	legacyDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to legacy db: %w", err)
	}
	defer legacyDB.Close()

	if err := legacyDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping legacy db: %w", err)
	}

	result := &migration.Result{}

	// Channel IDs in the legacy schema are integers; the map carries them
	// forward so coupons and schedules land on the right channel.
	channelIDs := map[int64]string{}

	if !options.SkipChannels {
		report.step(2, "importing channels")
		if err := i.importChannels(ctx, legacyDB, options, channelIDs, result, report); err != nil {
			return nil, fmt.Errorf("import channels: %w", err)
		}
	}

	if !options.SkipManagers {
		report.step(3, "importing editors as managers")
		if err := i.importManagers(ctx, legacyDB, options, channelIDs, result, report); err != nil {
			return nil, fmt.Errorf("import managers: %w", err)
		}
	}

	if !options.SkipCoupons {
		report.step(4, "importing coupons")
		if err := i.importCoupons(ctx, legacyDB, options, channelIDs, result, report); err != nil {
			return nil, fmt.Errorf("import coupons: %w", err)
		}
	}

	if !options.SkipRules {
		report.step(5, "importing posting schedules")
		if err := i.importRules(ctx, legacyDB, options, channelIDs, result, report); err != nil {
			return nil, fmt.Errorf("import rules: %w", err)
		}
	}

	report.step(6, "import completed")
	i.logger.Info().
		Int("channels", result.ChannelsCreated).
		Int("managers", result.ManagersCreated).
		Int("coupons", result.CouponsCreated).
		Int("rules", result.RulesCreated).
		Int("rules_skipped", result.RulesSkipped).
		Msg("legacy dashboard import completed")

	return result, nil
}

func (i *Importer) importChannels(ctx context.Context, legacyDB *sql.DB, options migration.Options, channelIDs map[int64]string, result *migration.Result, report *reporter) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT id, title, chat_id, COALESCE(lang, ''), COALESCE(tz, ''), enabled, COALESCE(position, 0)
		FROM channels
		ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			legacyID  int64
			title     string
			chatID    string
			lang      string
			tz        string
			enabled   bool
			sortOrder int
		)
		if err := rows.Scan(&legacyID, &title, &chatID, &lang, &tz, &enabled, &sortOrder); err != nil {
			return fmt.Errorf("scan channel row: %w", err)
		}

		channel := convertChannel(title, chatID, lang, tz, enabled, sortOrder)
		channelIDs[legacyID] = channel.ID
		report.progress.ChannelsTotal++

		if !options.DryRun {
			if err := i.db.WithContext(ctx).Create(&channel).Error; err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("channel %q: %v", title, err))
				continue
			}
		}
		result.ChannelsCreated++
		report.progress.ChannelsImported++
	}
	report.flush()
	return rows.Err()
}

func (i *Importer) importManagers(ctx context.Context, legacyDB *sql.DB, options migration.Options, channelIDs map[int64]string, result *migration.Result, report *reporter) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT e.id, e.name, e.tg_user_id, COALESCE(e.contact, ''), e.approved, COALESCE(ec.channel_id, 0)
		FROM editors e
		LEFT JOIN editor_channels ec ON ec.editor_id = e.id
		ORDER BY e.id`)
	if err != nil {
		return fmt.Errorf("query editors: %w", err)
	}
	defer rows.Close()

	// An editor appears once per assigned channel; dedupe the manager row
	// but keep every assignment.
	created := map[int64]string{}

	for rows.Next() {
		var (
			legacyID     int64
			name         string
			tgUserID     string
			contact      string
			approved     bool
			legacyChanID int64
		)
		if err := rows.Scan(&legacyID, &name, &tgUserID, &contact, &approved, &legacyChanID); err != nil {
			return fmt.Errorf("scan editor row: %w", err)
		}

		managerID, seen := created[legacyID]
		if !seen {
			manager := convertManager(name, tgUserID, contact, approved)
			managerID = manager.ID
			created[legacyID] = managerID
			report.progress.ManagersTotal++

			if !options.DryRun {
				if err := i.db.WithContext(ctx).Create(&manager).Error; err != nil {
					result.Warnings = append(result.Warnings, fmt.Sprintf("editor %q: %v", name, err))
					continue
				}
			}
			result.ManagersCreated++
			report.progress.ManagersImported++
		}

		// Assignments only make sense for approved editors with a mapped channel.
		channelID, ok := channelIDs[legacyChanID]
		if !ok || !approved || options.DryRun {
			continue
		}
		link := models.ChannelManager{ChannelID: channelID, ManagerID: managerID}
		if err := i.db.WithContext(ctx).Create(&link).Error; err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("assign editor %q: %v", name, err))
		}
	}
	report.flush()
	return rows.Err()
}

func (i *Importer) importCoupons(ctx context.Context, legacyDB *sql.DB, options migration.Options, channelIDs map[int64]string, result *migration.Result, report *reporter) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT title, COALESCE(promo_code, ''), COALESCE(link, ''), COALESCE(bookmaker, ''),
		       starts_at, ends_at, enabled, channel_id, COALESCE(clicks, 0)
		FROM coupons
		ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			title        string
			promoCode    string
			link         string
			bookmaker    string
			startsAt     sql.NullTime
			endsAt       sql.NullTime
			enabled      bool
			legacyChanID sql.NullInt64
			clicks       int64
		)
		if err := rows.Scan(&title, &promoCode, &link, &bookmaker, &startsAt, &endsAt, &enabled, &legacyChanID, &clicks); err != nil {
			return fmt.Errorf("scan coupon row: %w", err)
		}

		coupon := convertCoupon(title, promoCode, link, bookmaker, enabled, clicks, startsAt, endsAt)
		if legacyChanID.Valid {
			if id, ok := channelIDs[legacyChanID.Int64]; ok {
				coupon.ChannelID = &id
			}
		}
		report.progress.CouponsTotal++

		if !options.DryRun {
			if err := i.db.WithContext(ctx).Create(&coupon).Error; err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("coupon %q: %v", title, err))
				continue
			}
		}
		result.CouponsCreated++
		report.progress.CouponsImported++
	}
	report.flush()
	return rows.Err()
}

func (i *Importer) importRules(ctx context.Context, legacyDB *sql.DB, options migration.Options, channelIDs map[int64]string, result *migration.Result, report *reporter) error {
	rows, err := legacyDB.QueryContext(ctx, `
		SELECT channel_id, COALESCE(label, ''), post_type, schedule_kind,
		       COALESCE(at_hour, 0), COALESCE(at_minute, 0), COALESCE(every_n, 0),
		       window_from, window_to, enabled
		FROM post_schedules
		ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query post_schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			legacyChanID int64
			label        string
			postType     string
			scheduleKind string
			atHour       int
			atMinute     int
			everyN       int
			windowFrom   sql.NullInt64
			windowTo     sql.NullInt64
			enabled      bool
		)
		if err := rows.Scan(&legacyChanID, &label, &postType, &scheduleKind, &atHour, &atMinute, &everyN, &windowFrom, &windowTo, &enabled); err != nil {
			return fmt.Errorf("scan schedule row: %w", err)
		}
		report.progress.RulesTotal++

		channelID, ok := channelIDs[legacyChanID]
		if !ok {
			result.RulesSkipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("schedule %q: unknown channel %d", label, legacyChanID))
			continue
		}

		rule, err := ConvertRule(channelID, label, postType, scheduleKind, atHour, atMinute, everyN, windowFrom, windowTo, enabled)
		if err != nil {
			result.RulesSkipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("schedule %q: %v", label, err))
			continue
		}

		if !options.DryRun {
			if err := i.db.WithContext(ctx).Create(&rule).Error; err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("schedule %q: %v", label, err))
				continue
			}
		}
		result.RulesCreated++
		report.progress.RulesImported++
	}
	report.flush()
	return rows.Err()
}

func convertChannel(title, chatID, lang, tz string, enabled bool, sortOrder int) models.Channel {
	if tz == "" {
		tz = "UTC"
	}
	return models.Channel{
		ID:             uuid.New().String(),
		Name:           title,
		TelegramChatID: chatID,
		Language:       lang,
		Timezone:       tz,
		Active:         enabled,
		// Imported channels were live on the legacy dashboard.
		Approved:  true,
		SortOrder: sortOrder,
	}
}

func convertManager(name, tgUserID, contact string, approved bool) models.Manager {
	manager := models.Manager{
		ID:             uuid.New().String(),
		DisplayName:    name,
		TelegramUserID: tgUserID,
		Contact:        contact,
		Status:         models.ManagerPending,
	}
	if approved {
		now := time.Now()
		manager.Status = models.ManagerApproved
		manager.ReviewNote = "approved on legacy dashboard"
		manager.ReviewedAt = &now
	}
	return manager
}

func convertCoupon(title, promoCode, link, bookmaker string, enabled bool, clicks int64, startsAt, endsAt sql.NullTime) models.Coupon {
	coupon := models.Coupon{
		ID:           uuid.New().String(),
		Title:        title,
		Code:         promoCode,
		AffiliateURL: link,
		Bookmaker:    bookmaker,
		Active:       enabled,
		Clicks:       clicks,
	}
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		coupon.ValidFrom = &t
	}
	if endsAt.Valid {
		t := endsAt.Time.UTC()
		coupon.ValidUntil = &t
	}
	return coupon
}

// ConvertRule maps a legacy post_schedules row to an automation rule. The
// legacy schema knows two schedule kinds: "daily" (fixed hour:minute) and
// "interval" (every N minutes, hourly when N is a multiple of 60).
func ConvertRule(channelID, label, postType, scheduleKind string, atHour, atMinute, everyN int, windowFrom, windowTo sql.NullInt64, enabled bool) (models.AutomationRule, error) {
	contentType, err := convertPostType(postType)
	if err != nil {
		return models.AutomationRule{}, err
	}

	rec := recurrence.Rule{}
	switch scheduleKind {
	case "daily":
		rec.Kind = recurrence.KindDailyAt
		rec.Hour = atHour
		rec.Minute = atMinute
	case "interval":
		if everyN >= 60 && everyN%60 == 0 {
			rec.Kind = recurrence.KindEveryHours
			rec.Interval = everyN / 60
		} else {
			rec.Kind = recurrence.KindEveryMinutes
			rec.Interval = everyN
		}
	default:
		return models.AutomationRule{}, fmt.Errorf("unknown schedule kind %q", scheduleKind)
	}

	if windowFrom.Valid && windowTo.Valid {
		rec.Window = &recurrence.Window{
			StartHour: int(windowFrom.Int64),
			EndHour:   int(windowTo.Int64),
		}
	}
	if err := rec.Validate(); err != nil {
		return models.AutomationRule{}, err
	}

	if label == "" {
		label = fmt.Sprintf("Imported %s schedule", postType)
	}
	rule := models.AutomationRule{
		ID:          uuid.New().String(),
		ChannelID:   channelID,
		Name:        label,
		ContentType: contentType,
		Enabled:     enabled,
	}
	rule.SetRule(rec)
	return rule, nil
}

// convertPostType maps the legacy post_type enum to a content type. The
// legacy names mostly survive; "digest" became the daily summary.
func convertPostType(postType string) (models.ContentType, error) {
	switch strings.ToLower(postType) {
	case "news":
		return models.ContentTypeNews, nil
	case "coupon", "promo":
		return models.ContentTypeCoupon, nil
	case "match_preview", "preview":
		return models.ContentTypeMatchPreview, nil
	case "digest", "daily_summary":
		return models.ContentTypeDailySummary, nil
	}
	ct := models.ContentType(strings.ToLower(postType))
	if ct.Valid() {
		return ct, nil
	}
	return "", fmt.Errorf("unknown post type %q", postType)
}

func buildDSN(options migration.Options) string {
	port := options.LegacyDBPort
	if port == 0 {
		port = 5432
	}
	sslMode := options.LegacyDBSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		options.LegacyDBHost, port, options.LegacyDBName,
		options.LegacyDBUser, options.LegacyDBPassword, sslMode)
}

// reporter snapshots progress through the service callback. Six coarse
// steps are enough for the dashboard's progress bar.
type reporter struct {
	callback migration.ProgressCallback
	progress migration.Progress
}

func newReporter(callback migration.ProgressCallback) *reporter {
	return &reporter{
		callback: callback,
		progress: migration.Progress{TotalSteps: 6, StartTime: time.Now()},
	}
}

func (r *reporter) step(n int, description string) {
	r.progress.CompletedSteps = n
	r.progress.CurrentStep = description
	r.progress.Phase = description
	r.progress.Percentage = float64(n) / float64(r.progress.TotalSteps) * 100
	r.flush()
}

func (r *reporter) flush() {
	if r.callback != nil {
		r.callback(r.progress)
	}
}
