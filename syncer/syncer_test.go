package syncer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synchub/audit"
	"synchub/availability"
	"synchub/integration"
	"synchub/providers"
	"synchub/ratelimit"
	"synchub/security"
)

// fakeCalendarClient satisfies providers.Client with canned busy times.
type fakeCalendarClient struct {
	provider integration.Provider
	events   []integration.NormalizedEvent
	err      error
	calls    int
}

func (f *fakeCalendarClient) Provider() integration.Provider { return f.provider }

func (f *fakeCalendarClient) TestConnection(ctx context.Context, integ *integration.Integration) providers.ConnectionStatus {
	return providers.ConnectionStatus{Provider: f.provider, Type: integ.Type, Healthy: f.err == nil}
}

func (f *fakeCalendarClient) GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error) {
	f.calls++
	return f.events, f.err
}

func (f *fakeCalendarClient) Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeCalendarClient) Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeCalendarClient) Delete(ctx context.Context, integ *integration.Integration, externalID string) error {
	return fmt.Errorf("not implemented")
}

type syncFixture struct {
	syncer       *Syncer
	registry     *providers.Registry
	integrations *integration.Store
	blocked      *availability.Store
	audit        *audit.Logger
}

func newSyncFixture(t *testing.T) *syncFixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	integrations := integration.NewStore(client)
	blocked := availability.NewStore(client)
	auditLogger := audit.NewLogger(client)
	registry := providers.NewRegistry(providers.Deps{
		Limiter: ratelimit.New(client, nil, 0),
		Audit:   auditLogger,
	})
	tokens := security.NewTokenManager(client, integrations, auditLogger, nil)

	return &syncFixture{
		syncer:       New(registry, tokens, integrations, blocked, auditLogger, 0, 2),
		registry:     registry,
		integrations: integrations,
		blocked:      blocked,
		audit:        auditLogger,
	}
}

func calendarIntegration(provider integration.Provider) *integration.Integration {
	return &integration.Integration{
		OrganizerID:    "org-1",
		Provider:       provider,
		Type:           integration.TypeCalendar,
		AccessToken:    "at",
		TokenExpiresAt: time.Now().Add(time.Hour),
		IsActive:       true,
		SyncEnabled:    true,
	}
}

func TestSyncIntegrationReplacesBlocksAndResetsErrors(t *testing.T) {
	fx := newSyncFixture(t)
	ctx := context.Background()

	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	fake := &fakeCalendarClient{
		provider: integration.ProviderGoogle,
		events: []integration.NormalizedEvent{
			{
				ExternalID:    "ev-1",
				Summary:       "Busy",
				StartDateTime: start,
				EndDateTime:   start.Add(time.Hour),
				Status:        integration.StatusConfirmed,
				Transparency:  integration.TransparencyOpaque,
			},
		},
	}
	fx.registry.Register(integration.TypeCalendar, fake)

	integ := calendarIntegration(integration.ProviderGoogle)
	_, err := fx.integrations.Upsert(ctx, integ)
	require.NoError(t, err)
	_, err = fx.integrations.RecordSyncError(ctx, integ)
	require.NoError(t, err)

	require.NoError(t, fx.syncer.SyncIntegration(ctx, integ))
	assert.Equal(t, 1, fake.calls)

	blocks, err := fx.blocked.ListSynced(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "ev-1", blocks[0].ExternalID)

	stored, err := fx.integrations.Get(ctx, "org-1", integration.TypeCalendar, integration.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.SyncErrors)
	assert.False(t, stored.LastSyncAt.IsZero())
}

func TestSyncIntegrationFailureIncrementsErrors(t *testing.T) {
	fx := newSyncFixture(t)
	ctx := context.Background()

	fake := &fakeCalendarClient{
		provider: integration.ProviderGoogle,
		err:      fmt.Errorf("upstream down"),
	}
	fx.registry.Register(integration.TypeCalendar, fake)

	integ := calendarIntegration(integration.ProviderGoogle)
	_, err := fx.integrations.Upsert(ctx, integ)
	require.NoError(t, err)

	require.Error(t, fx.syncer.SyncIntegration(ctx, integ))

	stored, err := fx.integrations.Get(ctx, "org-1", integration.TypeCalendar, integration.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SyncErrors)

	entries, err := fx.audit.Recent(ctx, "org-1", 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, integration.LogCalendarSync, entries[0].LogType)
	assert.False(t, entries[0].Success)
}

func TestSyncIntegrationSkipsDisabled(t *testing.T) {
	fx := newSyncFixture(t)
	fake := &fakeCalendarClient{provider: integration.ProviderGoogle}
	fx.registry.Register(integration.TypeCalendar, fake)

	inactive := calendarIntegration(integration.ProviderGoogle)
	inactive.IsActive = false
	require.NoError(t, fx.syncer.SyncIntegration(context.Background(), inactive))

	disabled := calendarIntegration(integration.ProviderGoogle)
	disabled.SyncEnabled = false
	require.NoError(t, fx.syncer.SyncIntegration(context.Background(), disabled))

	assert.Equal(t, 0, fake.calls)
}

func TestSyncIntegrationRejectsVideoType(t *testing.T) {
	fx := newSyncFixture(t)

	integ := calendarIntegration(integration.ProviderZoom)
	integ.Type = integration.TypeVideo
	assert.Error(t, fx.syncer.SyncIntegration(context.Background(), integ))
}

func TestSyncAllCountsSuccessesAndFailures(t *testing.T) {
	fx := newSyncFixture(t)
	ctx := context.Background()

	fx.registry.Register(integration.TypeCalendar, &fakeCalendarClient{provider: integration.ProviderGoogle})
	fx.registry.Register(integration.TypeCalendar, &fakeCalendarClient{
		provider: integration.ProviderOutlook,
		err:      fmt.Errorf("upstream down"),
	})

	_, err := fx.integrations.Upsert(ctx, calendarIntegration(integration.ProviderGoogle))
	require.NoError(t, err)
	_, err = fx.integrations.Upsert(ctx, calendarIntegration(integration.ProviderOutlook))
	require.NoError(t, err)

	// A video integration must be ignored by the pass.
	_, err = fx.integrations.Upsert(ctx, &integration.Integration{
		OrganizerID:    "org-1",
		Provider:       integration.ProviderZoom,
		Type:           integration.TypeVideo,
		AccessToken:    "at",
		TokenExpiresAt: time.Now().Add(time.Hour),
		IsActive:       true,
	})
	require.NoError(t, err)

	synced, failed, err := fx.syncer.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Equal(t, 1, failed)
}
