/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/events"
)

// Service manages import jobs.
type Service struct {
	db        *gorm.DB
	bus       events.PubSub
	logger    zerolog.Logger
	importers map[SourceType]Importer

	mu      sync.RWMutex
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
}

// NewService creates a new import service.
func NewService(db *gorm.DB, bus events.PubSub, logger zerolog.Logger) *Service {
	return &Service{
		db:        db,
		bus:       bus,
		logger:    logger.With().Str("component", "migration").Logger(),
		importers: make(map[SourceType]Importer),
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// RegisterImporter registers an importer for a source type.
func (s *Service) RegisterImporter(sourceType SourceType, importer Importer) {
	s.importers[sourceType] = importer
	s.logger.Info().Str("source_type", string(sourceType)).Msg("registered importer")
}

// RecoverStaleJobs marks jobs stuck in "running" as failed. Called on
// startup to account for jobs interrupted by a restart.
func (s *Service) RecoverStaleJobs(ctx context.Context) error {
	var stale []*Job
	if err := s.db.WithContext(ctx).Where("status = ?", JobStatusRunning).Find(&stale).Error; err != nil {
		return fmt.Errorf("find stale jobs: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	s.logger.Warn().Int("count", len(stale)).Msg("found stale import jobs from previous run")

	now := time.Now()
	for _, job := range stale {
		job.Status = JobStatusFailed
		job.Error = "import interrupted by server restart"
		job.CompletedAt = &now
		if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark stale job as failed")
		}
	}
	return nil
}

// CreateJob validates options against the importer and records a pending job.
func (s *Service) CreateJob(ctx context.Context, sourceType SourceType, options Options) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	importer, ok := s.importers[sourceType]
	if !ok {
		return nil, fmt.Errorf("no importer registered for source type: %s", sourceType)
	}
	if err := importer.Validate(ctx, options); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	job := &Job{
		ID:         uuid.New().String(),
		SourceType: sourceType,
		Status:     JobStatusPending,
		DryRun:     options.DryRun,
		Options:    options,
		Progress: Progress{
			Phase:     "created",
			StartTime: time.Now(),
		},
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	s.jobs[job.ID] = job

	s.logger.Info().
		Str("job_id", job.ID).
		Str("source_type", string(sourceType)).
		Bool("dry_run", job.DryRun).
		Msg("import job created")

	s.bus.Publish(events.EventImport, events.Payload{
		"job_id":      job.ID,
		"source_type": string(sourceType),
		"status":      string(JobStatusPending),
	})

	return job, nil
}

// StartJob launches a pending job in the background.
func (s *Service) StartJob(parentCtx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		job = &Job{}
		if err := s.db.WithContext(parentCtx).First(job, "id = ?", jobID).Error; err != nil {
			return fmt.Errorf("job not found: %w", err)
		}
		s.jobs[jobID] = job
	}

	if job.Status != JobStatusPending {
		return fmt.Errorf("job is not in pending state: %s", job.Status)
	}

	importer, ok := s.importers[job.SourceType]
	if !ok {
		return fmt.Errorf("no importer registered for source type: %s", job.SourceType)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.cancels[jobID] = cancel

	go func() {
		defer cancel()
		s.runJob(ctx, job, importer)
	}()

	s.logger.Info().Str("job_id", jobID).Msg("import job started")
	return nil
}

func (s *Service) runJob(ctx context.Context, job *Job, importer Importer) {
	start := time.Now()
	now := start
	job.StartedAt = &now
	job.Status = JobStatusRunning
	if err := s.updateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to update job status")
		return
	}

	progressCallback := func(progress Progress) {
		job.Progress = progress
		if err := s.updateJob(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to update progress")
		}
		s.bus.Publish(events.EventImport, events.Payload{
			"job_id":     job.ID,
			"status":     string(job.Status),
			"progress":   progress,
			"percentage": progress.Percentage,
		})
	}

	result, err := importer.Import(ctx, job.Options, progressCallback)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("import failed")
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else {
		s.logger.Info().
			Str("job_id", job.ID).
			Dur("duration", duration).
			Int("channels", result.ChannelsCreated).
			Int("coupons", result.CouponsCreated).
			Int("rules", result.RulesCreated).
			Msg("import completed")

		job.Status = JobStatusCompleted
		result.DurationSeconds = duration.Seconds()
		job.Result = result
	}

	now = time.Now()
	job.CompletedAt = &now
	if err := s.updateJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to update final job status")
	}

	s.bus.Publish(events.EventImport, events.Payload{
		"job_id": job.ID,
		"status": string(job.Status),
		"result": result,
		"error":  job.Error,
	})

	s.mu.Lock()
	delete(s.cancels, job.ID)
	s.mu.Unlock()
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if ok {
		return job, nil
	}

	job = &Job{}
	if err := s.db.WithContext(ctx).First(job, "id = ?", jobID).Error; err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()
	return job, nil
}

// ListJobs lists all import jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CancelJob cancels a running job.
func (s *Service) CancelJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status != JobStatusRunning {
		return fmt.Errorf("job is not running: %s", job.Status)
	}

	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
	}

	job.Status = JobStatusCancelled
	if err := s.updateJob(ctx, job); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	s.logger.Info().Str("job_id", jobID).Msg("import job cancelled")
	s.bus.Publish(events.EventImport, events.Payload{
		"job_id": jobID,
		"status": string(JobStatusCancelled),
	})
	return nil
}

func (s *Service) updateJob(ctx context.Context, job *Job) error {
	return s.db.WithContext(ctx).Save(job).Error
}
