/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package coupons manages affiliate coupons: CRUD, creative images,
// validity windows, and click/impression counters.
package coupons

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/cache"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
	"github.com/botdeckhq/botdeck/internal/storage"
)

// ErrNotFound marks lookups for coupons that do not exist.
var ErrNotFound = errors.New("coupon not found")

// Service manages coupon lifecycle and counters.
type Service struct {
	db     *gorm.DB
	bus    events.PubSub
	cache  *cache.Cache
	store  storage.ObjectStore
	logger zerolog.Logger
}

// NewService creates a coupons service. cache may be nil when Redis is not
// configured.
func NewService(db *gorm.DB, bus events.PubSub, c *cache.Cache, store storage.ObjectStore, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		cache:  c,
		store:  store,
		logger: logger.With().Str("component", "coupons").Logger(),
	}
}

// Create persists a new coupon.
func (s *Service) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID == "" {
		coupon.ID = uuid.NewString()
	}
	if coupon.ValidFrom != nil && coupon.ValidUntil != nil && coupon.ValidUntil.Before(*coupon.ValidFrom) {
		return fmt.Errorf("coupon validity window ends before it starts")
	}

	if err := s.db.WithContext(ctx).Create(coupon).Error; err != nil {
		return fmt.Errorf("create coupon: %w", err)
	}

	s.invalidateStats(ctx)
	s.publishChanged(coupon.ID)
	s.publishAudit(models.AuditActionCouponCreate, coupon.ID)

	s.logger.Info().Str("coupon_id", coupon.ID).Str("bookmaker", coupon.Bookmaker).Msg("coupon created")
	return nil
}

// Get returns a coupon by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := s.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load coupon: %w", err)
	}
	return &coupon, nil
}

// ListFilters narrows List results.
type ListFilters struct {
	// ChannelID limits results to a channel's coupons plus network-wide
	// ones when set.
	ChannelID string
	// ValidAt keeps only coupons whose validity window contains the
	// given instant when non-zero.
	ValidAt time.Time
	// ActiveOnly drops deactivated coupons.
	ActiveOnly bool
}

// List returns coupons matching the filters, newest first.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]models.Coupon, error) {
	query := s.db.WithContext(ctx).Model(&models.Coupon{})
	if filters.ChannelID != "" {
		query = query.Where("channel_id = ? OR channel_id IS NULL", filters.ChannelID)
	}
	if filters.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	var coupons []models.Coupon
	if err := query.Order("created_at DESC").Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}

	if filters.ValidAt.IsZero() {
		return coupons, nil
	}
	valid := coupons[:0]
	for _, c := range coupons {
		if c.ValidAt(filters.ValidAt) {
			valid = append(valid, c)
		}
	}
	return valid, nil
}

// Update applies field updates to a coupon.
func (s *Service) Update(ctx context.Context, id string, updates map[string]any) (*models.Coupon, error) {
	result := s.db.WithContext(ctx).Model(&models.Coupon{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("update coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	s.invalidateStats(ctx)
	s.publishChanged(id)
	s.publishAudit(models.AuditActionCouponUpdate, id)

	return s.Get(ctx, id)
}

// Delete removes a coupon and its creative image.
func (s *Service) Delete(ctx context.Context, id string) error {
	coupon, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if coupon.ImagePath != "" && s.store != nil {
		if err := s.store.Delete(ctx, coupon.ImagePath); err != nil {
			s.logger.Warn().Err(err).Str("key", coupon.ImagePath).Msg("failed to delete coupon creative")
		}
	}

	if err := s.db.WithContext(ctx).Delete(&models.Coupon{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}

	s.invalidateStats(ctx)
	s.publishChanged(id)
	s.publishAudit(models.AuditActionCouponDelete, id)

	s.logger.Info().Str("coupon_id", id).Msg("coupon deleted")
	return nil
}

// AttachCreative stores an image for the coupon and records its key.
// filename is only used for its extension.
func (s *Service) AttachCreative(ctx context.Context, id, filename, contentType string, data []byte) (*models.Coupon, error) {
	coupon, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}

	key := fmt.Sprintf("coupons/%s%s", id, path.Ext(filename))
	if err := s.store.Put(ctx, key, contentType, data); err != nil {
		return nil, fmt.Errorf("store creative: %w", err)
	}

	// Drop the previous creative when the extension changed.
	if coupon.ImagePath != "" && coupon.ImagePath != key {
		if err := s.store.Delete(ctx, coupon.ImagePath); err != nil {
			s.logger.Warn().Err(err).Str("key", coupon.ImagePath).Msg("failed to delete previous creative")
		}
	}

	return s.Update(ctx, id, map[string]any{"image_path": key})
}

// CreativeURL returns a servable URL for the coupon's image, or "" when it
// has none.
func (s *Service) CreativeURL(coupon *models.Coupon) string {
	if coupon.ImagePath == "" || s.store == nil {
		return ""
	}
	return s.store.URL(coupon.ImagePath)
}

// TrackClick increments the click counter and returns the affiliate URL to
// redirect to.
func (s *Service) TrackClick(ctx context.Context, id string) (string, error) {
	coupon, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if err := s.db.WithContext(ctx).Model(&models.Coupon{}).Where("id = ?", id).
		UpdateColumn("clicks", gorm.Expr("clicks + 1")).Error; err != nil {
		return "", fmt.Errorf("increment clicks: %w", err)
	}

	s.invalidateStats(ctx)
	return coupon.AffiliateURL, nil
}

// TrackImpressions adds n impressions to a coupon after it was included in
// a delivered post.
func (s *Service) TrackImpressions(ctx context.Context, id string, n int64) error {
	if n <= 0 {
		return nil
	}
	result := s.db.WithContext(ctx).Model(&models.Coupon{}).Where("id = ?", id).
		UpdateColumn("impressions", gorm.Expr("impressions + ?", n))
	if result.Error != nil {
		return fmt.Errorf("increment impressions: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	s.invalidateStats(ctx)
	return nil
}

// Stats returns aggregate coupon counters, served from cache when warm.
func (s *Service) Stats(ctx context.Context) (*cache.CachedCouponStats, error) {
	if s.cache != nil {
		if stats, ok := s.cache.GetCouponStats(ctx); ok {
			return stats, nil
		}
	}

	var stats cache.CachedCouponStats
	row := s.db.WithContext(ctx).Model(&models.Coupon{}).
		Select("COUNT(*) AS total_coupons, " +
			"COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0) AS active_coupons, " +
			"COALESCE(SUM(clicks), 0) AS total_clicks, " +
			"COALESCE(SUM(impressions), 0) AS total_impressions")
	if err := row.Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("aggregate coupon stats: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetCouponStats(ctx, &stats); err != nil {
			s.logger.Debug().Err(err).Msg("failed to cache coupon stats")
		}
	}
	return &stats, nil
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCouponStats(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("failed to invalidate coupon stats cache")
	}
}

func (s *Service) publishChanged(couponID string) {
	s.bus.Publish(events.EventCouponUpdated, events.Payload{"coupon_id": couponID})
}

func (s *Service) publishAudit(action models.AuditAction, couponID string) {
	s.bus.Publish(events.EventAudit, events.Payload{
		"action":        string(action),
		"resource_type": "coupon",
		"resource_id":   couponID,
	})
}
