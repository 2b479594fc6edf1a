/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package automation runs the scheduling loop: on every tick it finds the
// automation rules that are due, dispatches content requests to the
// delivery engine, records the outcome, and advances each rule's next run.
package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/cache"
	"github.com/botdeckhq/botdeck/internal/delivery"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/recurrence"
	"github.com/botdeckhq/botdeck/internal/telemetry"
)

// Service orchestrates rule evaluation and delivery dispatch.
type Service struct {
	db         *gorm.DB
	bus        events.PubSub
	dispatcher delivery.Dispatcher
	cache      *cache.Cache
	tick       time.Duration
	retention  time.Duration
	logger     zerolog.Logger

	mu          sync.Mutex
	lastCleanup time.Time
}

// New constructs the automation service. cache may be nil.
func New(db *gorm.DB, bus events.PubSub, dispatcher delivery.Dispatcher, tick, retention time.Duration, logger zerolog.Logger) *Service {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Service{
		db:         db,
		bus:        bus,
		dispatcher: dispatcher,
		tick:       tick,
		retention:  retention,
		logger:     logger.With().Str("component", "automation").Logger(),
	}
}

// SetCache sets the cache instance for the automation loop.
func (s *Service) SetCache(c *cache.Cache) {
	s.cache = c
}

// Run executes the automation loop until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info().Dur("tick", s.tick).Msg("automation loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("automation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one scheduling pass with the given reference instant.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	telemetry.AutomationTicksTotal.Inc()

	due, err := s.dueRules(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load due rules")
		telemetry.AutomationErrorsTotal.WithLabelValues("load_rules").Inc()
		return
	}
	telemetry.AutomationRulesDue.Set(float64(len(due)))

	for i := range due {
		if err := s.processRule(ctx, &due[i], now); err != nil {
			s.logger.Warn().Err(err).Str("rule", due[i].ID).Msg("rule processing failed")
			telemetry.AutomationErrorsTotal.WithLabelValues("process_rule").Inc()
		}
	}

	s.maybePruneLogs(ctx, now)
}

// dueRules loads enabled rules whose next run is at or before now. Rules
// that have never been scheduled (nil NextRunAt) are due immediately.
func (s *Service) dueRules(ctx context.Context, now time.Time) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("next_run_at IS NULL OR next_run_at <= ?", now.UTC()).
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("load due rules: %w", err)
	}
	return rules, nil
}

func (s *Service) processRule(ctx context.Context, rule *models.AutomationRule, now time.Time) error {
	channel, err := s.loadChannel(ctx, rule.ChannelID)
	if err != nil {
		return err
	}

	loc, err := channel.Location()
	if err != nil {
		return fmt.Errorf("channel %s timezone: %w", channel.ID, err)
	}
	localNow := now.In(loc)

	rec := rule.Rule()
	if err := rec.Validate(); err != nil {
		// Disable rather than retry a rule that can never fire.
		s.logger.Error().Err(err).Str("rule", rule.ID).Msg("disabling malformed rule")
		return s.db.WithContext(ctx).Model(rule).Update("enabled", false).Error
	}

	scheduledFor := localNow
	if rule.NextRunAt != nil {
		scheduledFor = rule.NextRunAt.In(loc)
	}

	// First evaluation of a fresh rule just seeds NextRunAt.
	if rule.NextRunAt == nil {
		return s.advance(ctx, rule, rec, localNow, nil)
	}

	switch {
	case !channel.Active || !channel.Approved:
		s.record(ctx, rule, channel, scheduledFor, now, models.DeliverySkipped, "channel inactive or unapproved")
	case !channel.SupportsContentType(rule.ContentType):
		s.record(ctx, rule, channel, scheduledFor, now, models.DeliverySkipped, "content type disabled on channel")
	default:
		active, err := recurrence.IsActiveNow(rec, localNow)
		if err != nil {
			return err
		}
		if !active {
			s.record(ctx, rule, channel, scheduledFor, now, models.DeliverySkipped, "outside active window")
			break
		}
		s.dispatch(ctx, rule, channel, scheduledFor, now)
	}

	fired := now
	return s.advance(ctx, rule, rec, localNow, &fired)
}

func (s *Service) dispatch(ctx context.Context, rule *models.AutomationRule, channel *models.Channel, scheduledFor, now time.Time) {
	req := delivery.Request{
		RuleID:         rule.ID,
		ChannelID:      channel.ID,
		TelegramChatID: channel.TelegramChatID,
		Language:       channel.Language,
		ContentType:    rule.ContentType,
		ScheduledFor:   scheduledFor,
	}

	if err := s.dispatcher.Dispatch(ctx, req); err != nil {
		s.record(ctx, rule, channel, scheduledFor, now, models.DeliveryFailed, err.Error())
		return
	}
	s.record(ctx, rule, channel, scheduledFor, now, models.DeliverySent, "")
}

// record persists a DeliveryLog row and publishes the matching bus event.
func (s *Service) record(ctx context.Context, rule *models.AutomationRule, channel *models.Channel, scheduledFor, now time.Time, status models.DeliveryStatus, detail string) {
	entry := models.DeliveryLog{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		ChannelID:    channel.ID,
		ContentType:  rule.ContentType,
		ScheduledFor: scheduledFor.UTC(),
		DispatchedAt: now.UTC(),
		Status:       status,
		Detail:       detail,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error().Err(err).Str("rule", rule.ID).Msg("failed to persist delivery log")
		telemetry.AutomationErrorsTotal.WithLabelValues("delivery_log").Inc()
	}

	telemetry.DeliveriesTotal.WithLabelValues(string(rule.ContentType), string(status)).Inc()

	eventType := events.EventDeliveryDispatched
	switch status {
	case models.DeliveryFailed:
		eventType = events.EventDeliveryFailed
	case models.DeliverySkipped:
		eventType = events.EventDeliverySkipped
	}
	s.bus.Publish(eventType, events.Payload{
		"rule_id":      rule.ID,
		"channel_id":   channel.ID,
		"content_type": string(rule.ContentType),
		"status":       string(status),
		"detail":       detail,
	})

	logEvent := s.logger.Info()
	if status == models.DeliveryFailed {
		logEvent = s.logger.Warn()
	}
	logEvent.
		Str("rule", rule.ID).
		Str("channel", channel.ID).
		Str("content_type", string(rule.ContentType)).
		Str("status", string(status)).
		Msg("delivery recorded")
}

// advance computes and persists the rule's next run. fired, when non-nil,
// also updates LastRunAt.
func (s *Service) advance(ctx context.Context, rule *models.AutomationRule, rec recurrence.Rule, localNow time.Time, fired *time.Time) error {
	next, err := recurrence.NextExecution(rec, localNow)
	if err != nil {
		return err
	}
	// Interval rules evaluated exactly on a boundary resolve to the
	// current boundary; step once more so the rule does not refire on
	// the same instant.
	if !next.After(localNow) {
		next = next.Add(rec.Period())
	}

	nextUTC := next.UTC()
	updates := map[string]any{"next_run_at": nextUTC}
	if fired != nil {
		updates["last_run_at"] = fired.UTC()
	}
	if err := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("id = ?", rule.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("advance rule: %w", err)
	}

	rule.NextRunAt = &nextUTC
	if fired != nil {
		t := fired.UTC()
		rule.LastRunAt = &t
	}

	if s.cache != nil {
		if err := s.cache.InvalidateChannelRules(ctx, rule.ChannelID); err != nil {
			s.logger.Debug().Err(err).Msg("failed to invalidate rule cache")
		}
	}
	return nil
}

func (s *Service) loadChannel(ctx context.Context, id string) (*models.Channel, error) {
	var channel models.Channel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("load channel %s: %w", id, err)
	}
	return &channel, nil
}

// maybePruneLogs deletes delivery logs older than the retention period.
// Runs at most once per hour.
func (s *Service) maybePruneLogs(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if now.Sub(s.lastCleanup) < time.Hour {
		s.mu.Unlock()
		return
	}
	s.lastCleanup = now
	s.mu.Unlock()

	cutoff := now.UTC().Add(-s.retention)
	result := s.db.WithContext(ctx).
		Where("dispatched_at < ?", cutoff).
		Delete(&models.DeliveryLog{})
	if result.Error != nil {
		s.logger.Warn().Err(result.Error).Msg("failed to prune delivery logs")
		return
	}
	if result.RowsAffected > 0 {
		s.logger.Info().Int64("deleted", result.RowsAffected).Msg("pruned old delivery logs")
	}
}

// Preview evaluates a rule at a reference instant without side effects:
// next and last execution, countdown label, and the active-window flag.
type Preview struct {
	NextExecution time.Time `json:"next_execution"`
	LastExecution time.Time `json:"last_execution"`
	Countdown     string    `json:"countdown"`
	IsActiveNow   bool      `json:"is_active_now"`
}

// PreviewRule computes a Preview for an automation rule. The reference
// instant's location carries the evaluation timezone.
func PreviewRule(rule models.AutomationRule, at time.Time) (*Preview, error) {
	sample, err := recurrence.Compute(rule.Rule(), at)
	if err != nil {
		return nil, err
	}
	return &Preview{
		NextExecution: sample.NextExecution,
		LastExecution: sample.LastExecution,
		Countdown:     recurrence.FormatCountdown(sample.NextExecution, at),
		IsActiveNow:   sample.IsActiveNow,
	}, nil
}
