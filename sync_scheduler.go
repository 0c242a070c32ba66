package main

import (
	"context"
	"log"
	"time"

	"synchub/syncer"
)

// SyncScheduler runs periodic full sync passes over every active calendar
// integration.
type SyncScheduler struct {
	sync     *syncer.Syncer
	interval time.Duration
	enabled  bool
	stop     chan struct{}
}

func NewSyncScheduler(sync *syncer.Syncer, interval time.Duration, enabled bool) *SyncScheduler {
	return &SyncScheduler{
		sync:     sync,
		interval: interval,
		enabled:  enabled,
		stop:     make(chan struct{}),
	}
}

func (s *SyncScheduler) Start(ctx context.Context) {
	if !s.enabled {
		log.Println("Calendar sync scheduler disabled")
		return
	}
	if s.interval <= 0 {
		s.interval = 15 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.runOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *SyncScheduler) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context) {
	synced, failed, err := s.sync.SyncAll(ctx)
	if err != nil {
		log.Printf("Sync scheduler pass failed: %v", err)
		return
	}
	if synced > 0 || failed > 0 {
		log.Printf("Sync scheduler pass: %d synced, %d failed", synced, failed)
	}
}
