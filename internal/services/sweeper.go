package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically cancels pairings whose dinner party is over, so
// pairings nobody reads do not stay stale forever
type Sweeper struct {
	groups   GroupStore
	matching *MatchingService
	metrics  *Metrics
	rules    Rules
	now      func() time.Time
	cron     *cron.Cron
}

// NewSweeper creates a sweeper; Start schedules it
func NewSweeper(groups GroupStore, matching *MatchingService, rules Rules, metrics *Metrics) *Sweeper {
	return &Sweeper{
		groups:   groups,
		matching: matching,
		metrics:  metrics,
		rules:    rules,
		now:      time.Now,
	}
}

// Start runs Sweep on schedule (standard cron spec or @every) until Stop
func (s *Sweeper) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("Stale pairing sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	log.Info().Str("schedule", schedule).Msg("Stale pairing sweeper started")
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep cancels every stale pairing once and returns how many were cancelled.
// One failing host does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.rules.StaleAfter)
	hosts, err := s.groups.ListStaleHosts(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale hosts: %w", err)
	}

	cancelled := 0
	for _, hostID := range hosts {
		if err := s.matching.CancelAttendance(ctx, hostID, CancelAsHost); err != nil {
			log.Error().Err(err).Str("group_id", hostID).Msg("Failed to cancel stale pairing")
			continue
		}
		s.metrics.sweptPairing()
		cancelled++
	}

	if cancelled > 0 {
		log.Info().Int("cancelled", cancelled).Time("cutoff", cutoff).Msg("Stale pairings cancelled")
	}
	return cancelled, nil
}
