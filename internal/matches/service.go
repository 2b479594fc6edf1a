/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package matches runs the "daily important matches" pipeline: fixtures are
// upserted from the data feed, ranked by importance, and the top N per day
// are selected for match-preview content.
package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/recurrence"
)

// ErrNotFound marks lookups for fixtures that do not exist.
var ErrNotFound = errors.New("match not found")

// Service manages fixtures and the per-day top-N selection.
type Service struct {
	db     *gorm.DB
	bus    events.PubSub
	topN   int
	logger zerolog.Logger
}

// NewService creates a matches service. topN is the number of fixtures
// selected per day.
func NewService(db *gorm.DB, bus events.PubSub, topN int, logger zerolog.Logger) *Service {
	if topN <= 0 {
		topN = 3
	}
	return &Service{
		db:     db,
		bus:    bus,
		topN:   topN,
		logger: logger.With().Str("component", "matches").Logger(),
	}
}

// Upsert inserts or refreshes fixtures keyed by external ID. Importance
// and kickoff times are overwritten from the feed; the Selected flag is
// preserved so a re-import does not undo manual curation.
func (s *Service) Upsert(ctx context.Context, fixtures []models.Match) (int, error) {
	if len(fixtures) == 0 {
		return 0, nil
	}

	for i := range fixtures {
		if fixtures[i].ID == "" {
			fixtures[i].ID = uuid.NewString()
		}
		fixtures[i].DateIndex = models.MatchDateIndex(fixtures[i].KickoffAt)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"league", "home_team", "away_team", "kickoff_at", "importance", "date_index", "updated_at",
		}),
	}).Create(&fixtures).Error
	if err != nil {
		return 0, fmt.Errorf("upsert fixtures: %w", err)
	}

	s.logger.Info().Int("count", len(fixtures)).Msg("fixtures upserted")
	return len(fixtures), nil
}

// ByDate returns all fixtures for a YYYY-MM-DD date, selected first, then
// by descending importance.
func (s *Service) ByDate(ctx context.Context, date string) ([]models.Match, error) {
	var fixtures []models.Match
	err := s.db.WithContext(ctx).Where("date_index = ?", date).
		Order("selected DESC, importance DESC, kickoff_at ASC").
		Find(&fixtures).Error
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	return fixtures, nil
}

// SelectTop recomputes the day's selection: the topN fixtures by importance
// are marked selected, everything else on that date is cleared. Returns the
// selected fixtures.
func (s *Service) SelectTop(ctx context.Context, date string) ([]models.Match, error) {
	var top []models.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Match{}).Where("date_index = ?", date).
			Update("selected", false).Error; err != nil {
			return err
		}

		if err := tx.Where("date_index = ?", date).
			Order("importance DESC, kickoff_at ASC").
			Limit(s.topN).
			Find(&top).Error; err != nil {
			return err
		}
		if len(top) == 0 {
			return nil
		}

		ids := make([]string, len(top))
		for i, m := range top {
			ids[i] = m.ID
			top[i].Selected = true
		}
		return tx.Model(&models.Match{}).Where("id IN ?", ids).
			Update("selected", true).Error
	})
	if err != nil {
		return nil, fmt.Errorf("select top fixtures: %w", err)
	}

	s.publishSelected(date, top)
	s.logger.Info().Str("date", date).Int("selected", len(top)).Msg("daily selection recomputed")
	return top, nil
}

// SetSelected manually overrides a fixture's Selected flag.
func (s *Service) SetSelected(ctx context.Context, id string, selected bool) (*models.Match, error) {
	result := s.db.WithContext(ctx).Model(&models.Match{}).Where("id = ?", id).
		Update("selected", selected)
	if result.Error != nil {
		return nil, fmt.Errorf("update fixture: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var match models.Match
	if err := s.db.WithContext(ctx).First(&match, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("load fixture: %w", err)
	}

	s.bus.Publish(events.EventAudit, events.Payload{
		"action":        string(models.AuditActionMatchesSelect),
		"resource_type": "match",
		"resource_id":   match.ID,
		"selected":      selected,
	})
	return &match, nil
}

// PreviewRules builds match_preview automation rules for a day's selected
// fixtures: one daily-at rule per fixture, firing two hours before local
// kickoff inside the channel's waking window. Rules are returned for the
// caller to persist; nothing is written here.
func (s *Service) PreviewRules(ctx context.Context, date string, channel *models.Channel) ([]models.AutomationRule, error) {
	selected, err := s.selectedByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	tz, err := channel.Location()
	if err != nil {
		return nil, fmt.Errorf("channel timezone: %w", err)
	}

	rules := make([]models.AutomationRule, 0, len(selected))
	for _, match := range selected {
		fireAt := match.KickoffAt.In(tz).Add(-2 * time.Hour)
		rule := models.AutomationRule{
			ID:          uuid.NewString(),
			ChannelID:   channel.ID,
			Name:        fmt.Sprintf("Preview: %s vs %s", match.HomeTeam, match.AwayTeam),
			ContentType: models.ContentTypeMatchPreview,
			Enabled:     true,
		}
		rule.SetRule(recurrence.Rule{
			Kind:   recurrence.KindDailyAt,
			Hour:   fireAt.Hour(),
			Minute: fireAt.Minute(),
			Window: &recurrence.Window{StartHour: 8, EndHour: 23},
		})
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *Service) selectedByDate(ctx context.Context, date string) ([]models.Match, error) {
	var fixtures []models.Match
	err := s.db.WithContext(ctx).
		Where("date_index = ? AND selected = ?", date, true).
		Order("importance DESC").
		Find(&fixtures).Error
	if err != nil {
		return nil, fmt.Errorf("load selected fixtures: %w", err)
	}
	return fixtures, nil
}

func (s *Service) publishSelected(date string, selected []models.Match) {
	ids := make([]string, len(selected))
	for i, m := range selected {
		ids[i] = m.ID
	}
	s.bus.Publish(events.EventMatchesSelected, events.Payload{
		"date":      date,
		"match_ids": ids,
	})
	s.bus.Publish(events.EventAudit, events.Payload{
		"action":        string(models.AuditActionMatchesSelect),
		"resource_type": "match_day",
		"resource_id":   date,
		"count":         len(selected),
	})
}
