package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store persists integration and webhook records in Redis as JSON values,
// keyed so that one organizer holds at most one integration per
// (provider, type) pair.
type Store struct {
	client *redis.Client
}

// NewStore creates a new integration store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func integrationKey(organizerID string, typ Type, provider Provider) string {
	return fmt.Sprintf("integration:%s:%s:%s", organizerID, typ, provider)
}

// Upsert creates or replaces the integration for its (organizer, provider,
// type) key. Returns true when a record was created rather than replaced.
func (s *Store) Upsert(ctx context.Context, integ *Integration) (bool, error) {
	if integ.OrganizerID == "" || integ.Provider == "" || integ.Type == "" {
		return false, fmt.Errorf("integration requires organizer, provider and type")
	}

	key := integrationKey(integ.OrganizerID, integ.Type, integ.Provider)
	created := false

	existing, err := s.Get(ctx, integ.OrganizerID, integ.Type, integ.Provider)
	switch {
	case err == ErrNotFound:
		created = true
		if integ.ID == "" {
			integ.ID = uuid.New().String()
		}
		integ.CreatedAt = time.Now().UTC()
	case err != nil:
		return false, err
	default:
		integ.ID = existing.ID
		integ.CreatedAt = existing.CreatedAt
	}
	integ.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(integ)
	if err != nil {
		return false, fmt.Errorf("failed to marshal integration: %w", err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return false, fmt.Errorf("failed to store integration: %w", err)
	}

	log.Printf("Stored %s %s integration for organizer %s", integ.Provider, integ.Type, integ.OrganizerID)
	return created, nil
}

// Get retrieves one integration, or ErrNotFound.
func (s *Store) Get(ctx context.Context, organizerID string, typ Type, provider Provider) (*Integration, error) {
	data, err := s.client.Get(ctx, integrationKey(organizerID, typ, provider)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to retrieve integration: %w", err)
	}

	var integ Integration
	if err := json.Unmarshal([]byte(data), &integ); err != nil {
		return nil, fmt.Errorf("failed to unmarshal integration: %w", err)
	}
	return &integ, nil
}

// ListByOrganizer returns every integration for one organizer, both types.
func (s *Store) ListByOrganizer(ctx context.Context, organizerID string) ([]*Integration, error) {
	return s.scan(ctx, fmt.Sprintf("integration:%s:*", organizerID))
}

// ListAll returns every stored integration. The scheduler uses it to discover
// sync units.
func (s *Store) ListAll(ctx context.Context) ([]*Integration, error) {
	return s.scan(ctx, "integration:*")
}

func (s *Store) scan(ctx context.Context, pattern string) ([]*Integration, error) {
	var out []*Integration
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("failed to retrieve integration %s: %w", iter.Val(), err)
		}
		var integ Integration
		if err := json.Unmarshal([]byte(data), &integ); err != nil {
			log.Printf("Skipping unreadable integration record %s: %v", iter.Val(), err)
			continue
		}
		out = append(out, &integ)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("integration scan failed: %w", err)
	}
	return out, nil
}

// SaveTokens persists refreshed credentials. A blank refreshToken means the
// provider omitted it on renewal, so the stored one is kept.
func (s *Store) SaveTokens(ctx context.Context, integ *Integration, accessToken, refreshToken string, expiresAt time.Time) error {
	stored, err := s.Get(ctx, integ.OrganizerID, integ.Type, integ.Provider)
	if err != nil {
		return err
	}
	stored.AccessToken = accessToken
	if refreshToken != "" {
		stored.RefreshToken = refreshToken
	}
	stored.TokenExpiresAt = expiresAt
	if err := s.put(ctx, stored); err != nil {
		return err
	}

	integ.AccessToken = stored.AccessToken
	integ.RefreshToken = stored.RefreshToken
	integ.TokenExpiresAt = stored.TokenExpiresAt
	return nil
}

// RecordSyncError increments the failure counter and returns the new count.
func (s *Store) RecordSyncError(ctx context.Context, integ *Integration) (int, error) {
	stored, err := s.Get(ctx, integ.OrganizerID, integ.Type, integ.Provider)
	if err != nil {
		return 0, err
	}
	stored.SyncErrors++
	if err := s.put(ctx, stored); err != nil {
		return 0, err
	}
	integ.SyncErrors = stored.SyncErrors
	return stored.SyncErrors, nil
}

// RecordSyncSuccess resets the failure counter and stamps the sync time.
func (s *Store) RecordSyncSuccess(ctx context.Context, integ *Integration, at time.Time) error {
	stored, err := s.Get(ctx, integ.OrganizerID, integ.Type, integ.Provider)
	if err != nil {
		return err
	}
	stored.SyncErrors = 0
	stored.LastSyncAt = at
	if err := s.put(ctx, stored); err != nil {
		return err
	}
	integ.SyncErrors = 0
	integ.LastSyncAt = at
	return nil
}

// Deactivate soft-deletes an integration. The record stays so historical
// audit entries keep a valid reference.
func (s *Store) Deactivate(ctx context.Context, organizerID string, typ Type, provider Provider) error {
	stored, err := s.Get(ctx, organizerID, typ, provider)
	if err != nil {
		return err
	}
	stored.IsActive = false
	return s.put(ctx, stored)
}

func (s *Store) put(ctx context.Context, integ *Integration) error {
	integ.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(integ)
	if err != nil {
		return fmt.Errorf("failed to marshal integration: %w", err)
	}
	key := integrationKey(integ.OrganizerID, integ.Type, integ.Provider)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store integration: %w", err)
	}
	return nil
}

func webhookKey(id string) string {
	return "webhook:" + id
}

// SaveWebhook creates or updates a webhook integration record.
func (s *Store) SaveWebhook(ctx context.Context, wh *WebhookIntegration) error {
	if wh.ID == "" {
		wh.ID = uuid.New().String()
		wh.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(wh)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook: %w", err)
	}
	if err := s.client.Set(ctx, webhookKey(wh.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store webhook: %w", err)
	}
	if err := s.client.SAdd(ctx, "webhooks:"+wh.OrganizerID, wh.ID).Err(); err != nil {
		return fmt.Errorf("failed to index webhook: %w", err)
	}
	return nil
}

// GetWebhook retrieves one webhook integration, or ErrNotFound.
func (s *Store) GetWebhook(ctx context.Context, id string) (*WebhookIntegration, error) {
	data, err := s.client.Get(ctx, webhookKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to retrieve webhook: %w", err)
	}
	var wh WebhookIntegration
	if err := json.Unmarshal([]byte(data), &wh); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook: %w", err)
	}
	return &wh, nil
}

// ListWebhooks returns an organizer's webhook integrations.
func (s *Store) ListWebhooks(ctx context.Context, organizerID string) ([]*WebhookIntegration, error) {
	ids, err := s.client.SMembers(ctx, "webhooks:"+organizerID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	out := make([]*WebhookIntegration, 0, len(ids))
	for _, id := range ids {
		wh, err := s.GetWebhook(ctx, id)
		if err == ErrNotFound {
			continue
		} else if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, nil
}

// DeleteWebhook removes a webhook integration and its index entry.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	wh, err := s.GetWebhook(ctx, id)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, webhookKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return s.client.SRem(ctx, "webhooks:"+wh.OrganizerID, id).Err()
}

// Redact returns a copy safe for API responses: token material replaced with
// a fixed marker.
func Redact(integ *Integration) *Integration {
	out := *integ
	if out.AccessToken != "" {
		out.AccessToken = "[redacted]"
	}
	if out.RefreshToken != "" {
		out.RefreshToken = "[redacted]"
	}
	return &out
}

// SyncSource is the BlockedTime source marker for events synced from a
// provider, e.g. "google_calendar".
func SyncSource(p Provider) string {
	return string(p) + "_calendar"
}

// IsSyncSource reports whether a BlockedTime source marks externally synced
// data rather than manual intent.
func IsSyncSource(source string) bool {
	return strings.HasSuffix(source, "_calendar")
}
