// Package availability stores blocked-time intervals: manual blocks created
// by the organizer and synced blocks materialized from external calendars.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"synchub/integration"
)

// SourceManual marks a block the organizer created directly; it expresses
// authoritative user intent. Synced blocks carry "<provider>_calendar".
const SourceManual = "manual"

// BlockedTime is one unavailability interval on an organizer's calendar.
type BlockedTime struct {
	ID                string    `json:"id"`
	OrganizerID       string    `json:"organizer_id"`
	Source            string    `json:"source"`
	StartDateTime     time.Time `json:"start_datetime"`
	EndDateTime       time.Time `json:"end_datetime"`
	ExternalID        string    `json:"external_id,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	ExternalUpdatedAt time.Time `json:"external_updated_at,omitempty"`
	IsActive          bool      `json:"is_active"`
}

// Store keeps blocked times in per-(organizer, source) Redis hashes so one
// sync pass can atomically replace a provider's whole set.
type Store struct {
	client *redis.Client
}

// NewStore creates a new blocked-time store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func blockedKey(organizerID, source string) string {
	return fmt.Sprintf("blocked:%s:%s", organizerID, source)
}

// ReplaceSynced replaces every synced block for (organizer, provider) with
// the blocks derived from the latest sync pass. The previous set is discarded
// wholesale: sync output is a full replacement, not a delta.
func (s *Store) ReplaceSynced(ctx context.Context, organizerID string, provider integration.Provider, events []integration.NormalizedEvent) error {
	key := blockedKey(organizerID, integration.SyncSource(provider))

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	for _, ev := range events {
		if !ev.Busy() {
			continue
		}
		block := BlockedTime{
			ID:                uuid.New().String(),
			OrganizerID:       organizerID,
			Source:            integration.SyncSource(provider),
			StartDateTime:     ev.StartDateTime,
			EndDateTime:       ev.EndDateTime,
			ExternalID:        ev.ExternalID,
			Reason:            ev.Summary,
			ExternalUpdatedAt: ev.Updated,
			IsActive:          true,
		}
		data, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("failed to marshal blocked time: %w", err)
		}
		pipe.HSet(ctx, key, ev.ExternalID, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace synced blocks: %w", err)
	}

	log.Printf("Replaced %s blocks for organizer %s: %d events", provider, organizerID, len(events))
	return nil
}

// AddManual stores a manual block.
func (s *Store) AddManual(ctx context.Context, block *BlockedTime) error {
	if block.ID == "" {
		block.ID = uuid.New().String()
	}
	block.Source = SourceManual
	block.IsActive = true

	data, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("failed to marshal blocked time: %w", err)
	}
	if err := s.client.HSet(ctx, blockedKey(block.OrganizerID, SourceManual), block.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to store manual block: %w", err)
	}
	return nil
}

// ListManual returns the organizer's active manual blocks.
func (s *Store) ListManual(ctx context.Context, organizerID string) ([]BlockedTime, error) {
	return s.list(ctx, blockedKey(organizerID, SourceManual))
}

// ListSynced returns every active synced block across all providers for one
// organizer.
func (s *Store) ListSynced(ctx context.Context, organizerID string) ([]BlockedTime, error) {
	var out []BlockedTime
	for _, p := range integration.Providers {
		blocks, err := s.list(ctx, blockedKey(organizerID, integration.SyncSource(p)))
		if err != nil {
			return nil, err
		}
		out = append(out, blocks...)
	}
	return out, nil
}

func (s *Store) list(ctx context.Context, key string) ([]BlockedTime, error) {
	values, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked times: %w", err)
	}
	out := make([]BlockedTime, 0, len(values))
	for field, data := range values {
		var block BlockedTime
		if err := json.Unmarshal([]byte(data), &block); err != nil {
			log.Printf("Skipping unreadable blocked time %s in %s: %v", field, key, err)
			continue
		}
		if block.IsActive {
			out = append(out, block)
		}
	}
	return out, nil
}
