// Package syncer drives the calendar sync loop: it pulls busy times from
// each active calendar integration and replaces the organizer's synced
// blocked times with the result.
package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"synchub/audit"
	"synchub/availability"
	"synchub/integration"
	"synchub/providers"
	"synchub/security"
)

// DefaultLookahead is the sync window when none is configured.
const DefaultLookahead = 30 * 24 * time.Hour

// DefaultWorkers bounds concurrent per-integration syncs in SyncAll.
const DefaultWorkers = 4

// Syncer coordinates token refresh, provider fetch and blocked-time
// replacement for calendar integrations.
type Syncer struct {
	registry     *providers.Registry
	tokens       *security.TokenManager
	integrations *integration.Store
	blocked      *availability.Store
	audit        *audit.Logger
	lookahead    time.Duration
	workers      int
}

// New creates a syncer. Zero lookahead and workers select the defaults.
func New(registry *providers.Registry, tokens *security.TokenManager, integrations *integration.Store, blocked *availability.Store, auditLogger *audit.Logger, lookahead time.Duration, workers int) *Syncer {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Syncer{
		registry:     registry,
		tokens:       tokens,
		integrations: integrations,
		blocked:      blocked,
		audit:        auditLogger,
		lookahead:    lookahead,
		workers:      workers,
	}
}

// SyncIntegration runs one sync pass for a single calendar integration. The
// produced event set fully replaces the provider's synced blocks; failures
// increment the integration's error count, successes reset it.
func (s *Syncer) SyncIntegration(ctx context.Context, integ *integration.Integration) error {
	if !integ.IsActive || !integ.SyncEnabled {
		return nil
	}
	if integ.Type != integration.TypeCalendar {
		return fmt.Errorf("cannot sync %s integration %s", integ.Type, integ.Provider)
	}

	if err := s.tokens.EnsureValid(ctx, integ); err != nil {
		s.recordFailure(ctx, integ, err)
		return err
	}

	client, err := s.registry.Client(integ.Provider, integration.TypeCalendar)
	if err != nil {
		return err
	}

	start := time.Now().UTC()
	end := start.Add(s.lookahead)
	events, err := client.GetBusyTimes(ctx, integ, start, end)
	if err != nil {
		s.recordFailure(ctx, integ, err)
		return err
	}

	if err := s.blocked.ReplaceSynced(ctx, integ.OrganizerID, integ.Provider, events); err != nil {
		s.recordFailure(ctx, integ, err)
		return err
	}

	if err := s.integrations.RecordSyncSuccess(ctx, integ, time.Now().UTC()); err != nil {
		log.Printf("Warning: failed to record sync success for %s: %v", integ.Provider, err)
	}
	return nil
}

func (s *Syncer) recordFailure(ctx context.Context, integ *integration.Integration, cause error) {
	if _, err := s.integrations.RecordSyncError(ctx, integ); err != nil {
		log.Printf("Warning: failed to record sync error for %s: %v", integ.Provider, err)
	}
	s.audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarSync,
		IntegrationType: string(integ.Provider),
		Message:         fmt.Sprintf("Calendar sync failed: %v", cause),
		Success:         false,
		Details:         map[string]string{"error": cause.Error()},
	})
}

// SyncAll runs a sync pass over every active, sync-enabled calendar
// integration, bounded to the configured worker count. Per-integration
// failures are counted but do not stop the pass.
func (s *Syncer) SyncAll(ctx context.Context) (synced, failed int, err error) {
	all, err := s.integrations.ListAll(ctx)
	if err != nil {
		return 0, 0, err
	}

	var targets []*integration.Integration
	for _, integ := range all {
		if integ.IsActive && integ.SyncEnabled && integ.Type == integration.TypeCalendar {
			targets = append(targets, integ)
		}
	}
	if len(targets) == 0 {
		return 0, 0, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workers)
	)
	for _, integ := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(integ *integration.Integration) {
			defer wg.Done()
			defer func() { <-sem }()

			syncErr := s.SyncIntegration(ctx, integ)
			mu.Lock()
			if syncErr != nil {
				failed++
				log.Printf("Sync failed for %s %s: %v", integ.Provider, integ.OrganizerID, syncErr)
			} else {
				synced++
			}
			mu.Unlock()
		}(integ)
	}
	wg.Wait()

	log.Printf("Sync pass complete: %d synced, %d failed", synced, failed)
	return synced, failed, nil
}
