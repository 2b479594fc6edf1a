package automation

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/botdeckhq/botdeck/internal/leadership"
)

// LeaderAware wraps the automation service and only runs the loop on the
// instance that currently holds leadership. Prevents duplicate dispatches
// when several replicas share a database.
type LeaderAware struct {
	service  *Service
	election *leadership.Election
	logger   zerolog.Logger

	ctx         context.Context
	cancelFunc  context.CancelFunc
	loopRunning bool
}

// NewLeaderAware creates a leader-aware wrapper around the automation
// service.
func NewLeaderAware(service *Service, election *leadership.Election, logger zerolog.Logger) *LeaderAware {
	return &LeaderAware{
		service:  service,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_automation").Logger(),
	}
}

// Start begins the leader election and manages the loop lifecycle based on
// leadership changes.
func (la *LeaderAware) Start(ctx context.Context) error {
	la.ctx = ctx

	la.logger.Info().Msg("starting leader-aware automation")

	if err := la.election.Start(ctx); err != nil {
		return err
	}

	go la.monitorLeadership()
	return nil
}

// Stop halts the loop and releases leadership.
func (la *LeaderAware) Stop() error {
	la.logger.Info().Msg("stopping leader-aware automation")

	if la.loopRunning && la.cancelFunc != nil {
		la.cancelFunc()
		la.loopRunning = false
	}
	return la.election.Stop()
}

// IsLeader returns whether this instance currently holds leadership.
func (la *LeaderAware) IsLeader() bool {
	return la.election.IsLeader()
}

func (la *LeaderAware) monitorLeadership() {
	leaderCh := la.election.LeaderCh()

	if la.election.IsLeader() {
		la.startLoop()
	}

	for {
		select {
		case <-la.ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				la.logger.Info().Msg("became leader, starting automation loop")
				la.startLoop()
			} else {
				la.logger.Warn().Msg("lost leadership, stopping automation loop")
				la.stopLoop()
			}
		}
	}
}

func (la *LeaderAware) startLoop() {
	if la.loopRunning {
		la.logger.Warn().Msg("automation loop already running")
		return
	}

	ctx, cancel := context.WithCancel(la.ctx)
	la.cancelFunc = cancel
	la.loopRunning = true

	go func() {
		if err := la.service.Run(ctx); err != nil && err != context.Canceled {
			la.logger.Error().Err(err).Msg("automation loop error")
		}
		la.loopRunning = false
	}()
}

func (la *LeaderAware) stopLoop() {
	if !la.loopRunning {
		return
	}

	if la.cancelFunc != nil {
		la.cancelFunc()
		la.cancelFunc = nil
	}

	// Give the loop a moment to wind down before accepting new leadership.
	time.Sleep(100 * time.Millisecond)
	la.loopRunning = false
}
