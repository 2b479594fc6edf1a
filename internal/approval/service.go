/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package approval implements the bot-manager approval workflow: managers
// are submitted, reviewed, and approved or rejected before they can be
// assigned to channels.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/models"
)

var (
	// ErrNotFound marks lookups for managers that do not exist.
	ErrNotFound = errors.New("manager not found")
	// ErrAlreadyReviewed marks approve/reject calls on a non-pending manager.
	ErrAlreadyReviewed = errors.New("manager already reviewed")
	// ErrNotApproved marks channel assignments of unapproved managers.
	ErrNotApproved = errors.New("manager is not approved")
)

// Service manages the approval workflow.
type Service struct {
	db     *gorm.DB
	bus    events.PubSub
	logger zerolog.Logger
}

// NewService creates an approval service.
func NewService(db *gorm.DB, bus events.PubSub, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "approval").Logger(),
	}
}

// Submit registers a new manager in pending state.
func (s *Service) Submit(ctx context.Context, manager *models.Manager) error {
	if manager.ID == "" {
		manager.ID = uuid.NewString()
	}
	manager.Status = models.ManagerPending
	manager.ReviewedAt = nil
	manager.ReviewNote = ""

	if err := s.db.WithContext(ctx).Create(manager).Error; err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	s.bus.Publish(events.EventManagerSubmitted, events.Payload{
		"manager_id":   manager.ID,
		"display_name": manager.DisplayName,
	})
	s.publishAudit(models.AuditActionManagerSubmit, manager.ID, "")

	s.logger.Info().Str("manager_id", manager.ID).Msg("manager submitted for review")
	return nil
}

// Get returns a manager by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Manager, error) {
	var manager models.Manager
	if err := s.db.WithContext(ctx).First(&manager, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &manager, nil
}

// List returns managers, optionally filtered by status.
func (s *Service) List(ctx context.Context, status models.ManagerStatus) ([]models.Manager, error) {
	var managers []models.Manager
	query := s.db.WithContext(ctx).Order("created_at ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&managers).Error; err != nil {
		return nil, err
	}
	return managers, nil
}

// Approve moves a pending manager into approved state.
func (s *Service) Approve(ctx context.Context, id, reviewNote string) (*models.Manager, error) {
	manager, err := s.review(ctx, id, models.ManagerApproved, reviewNote)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.EventManagerApproved, events.Payload{"manager_id": id})
	s.publishAudit(models.AuditActionManagerApprove, id, reviewNote)
	s.logger.Info().Str("manager_id", id).Msg("manager approved")
	return manager, nil
}

// Reject moves a pending manager into rejected state. The note records
// the rejection reason for the dashboard.
func (s *Service) Reject(ctx context.Context, id, reviewNote string) (*models.Manager, error) {
	manager, err := s.review(ctx, id, models.ManagerRejected, reviewNote)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.EventManagerRejected, events.Payload{
		"manager_id": id,
		"note":       reviewNote,
	})
	s.publishAudit(models.AuditActionManagerReject, id, reviewNote)
	s.logger.Info().Str("manager_id", id).Msg("manager rejected")
	return manager, nil
}

// review performs the shared pending-state transition.
func (s *Service) review(ctx context.Context, id string, status models.ManagerStatus, note string) (*models.Manager, error) {
	manager, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if manager.Status != models.ManagerPending {
		return nil, ErrAlreadyReviewed
	}

	now := time.Now()
	manager.Status = status
	manager.ReviewNote = note
	manager.ReviewedAt = &now

	if err := s.db.WithContext(ctx).Save(manager).Error; err != nil {
		return nil, fmt.Errorf("update manager: %w", err)
	}
	return manager, nil
}

// Assign links an approved manager to a channel.
func (s *Service) Assign(ctx context.Context, channelID, managerID, role string) error {
	manager, err := s.Get(ctx, managerID)
	if err != nil {
		return err
	}
	if manager.Status != models.ManagerApproved {
		return ErrNotApproved
	}

	var channel models.Channel
	if err := s.db.WithContext(ctx).First(&channel, "id = ?", channelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("channel %s: %w", channelID, gorm.ErrRecordNotFound)
		}
		return err
	}

	if role == "" {
		role = "manager"
	}
	link := models.ChannelManager{ChannelID: channelID, ManagerID: managerID, Role: role}
	if err := s.db.WithContext(ctx).Save(&link).Error; err != nil {
		return fmt.Errorf("assign manager: %w", err)
	}

	s.publishAudit(models.AuditActionManagerAssign, managerID, channelID)
	return nil
}

// Unassign removes a manager from a channel.
func (s *Service) Unassign(ctx context.Context, channelID, managerID string) error {
	if err := s.db.WithContext(ctx).
		Where("channel_id = ? AND manager_id = ?", channelID, managerID).
		Delete(&models.ChannelManager{}).Error; err != nil {
		return fmt.Errorf("unassign manager: %w", err)
	}

	s.publishAudit(models.AuditActionManagerUnassign, managerID, channelID)
	return nil
}

// ChannelManagers returns the managers assigned to a channel.
func (s *Service) ChannelManagers(ctx context.Context, channelID string) ([]models.Manager, error) {
	var managers []models.Manager
	if err := s.db.WithContext(ctx).
		Joins("JOIN channel_managers ON channel_managers.manager_id = managers.id").
		Where("channel_managers.channel_id = ?", channelID).
		Find(&managers).Error; err != nil {
		return nil, err
	}
	return managers, nil
}

func (s *Service) publishAudit(action models.AuditAction, managerID, detail string) {
	payload := events.Payload{
		"action":        string(action),
		"resource_type": "manager",
		"resource_id":   managerID,
	}
	if detail != "" {
		payload["detail"] = detail
	}
	s.bus.Publish(events.EventAudit, payload)
}
