package integration

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreFixture(t *testing.T) *Store {
	mr := miniredis.RunT(t)
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func googleCalendarIntegration() *Integration {
	return &Integration{
		OrganizerID:    "org-1",
		OrganizerEmail: "org@example.com",
		Provider:       ProviderGoogle,
		Type:           TypeCalendar,
		AccessToken:    "at-1",
		RefreshToken:   "rt-1",
		TokenExpiresAt: time.Now().Add(time.Hour),
		IsActive:       true,
		SyncEnabled:    true,
	}
}

func TestUpsertCreatesThenReplaces(t *testing.T) {
	store := newStoreFixture(t)
	ctx := context.Background()

	integ := googleCalendarIntegration()
	created, err := store.Upsert(ctx, integ)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, integ.ID)
	assert.False(t, integ.CreatedAt.IsZero())

	firstID := integ.ID
	firstCreatedAt := integ.CreatedAt

	replacement := googleCalendarIntegration()
	replacement.AccessToken = "at-2"
	created, err = store.Upsert(ctx, replacement)
	require.NoError(t, err)
	assert.False(t, created)

	// Reconnecting keeps the record's identity.
	assert.Equal(t, firstID, replacement.ID)
	assert.Equal(t, firstCreatedAt.Unix(), replacement.CreatedAt.Unix())

	stored, err := store.Get(ctx, "org-1", TypeCalendar, ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "at-2", stored.AccessToken)
}

func TestUpsertRejectsIncompleteRecord(t *testing.T) {
	store := newStoreFixture(t)
	_, err := store.Upsert(context.Background(), &Integration{OrganizerID: "org-1"})
	assert.Error(t, err)
}

func TestGetNotFound(t *testing.T) {
	store := newStoreFixture(t)
	_, err := store.Get(context.Background(), "org-1", TypeCalendar, ProviderGoogle)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByOrganizerScopesToOrganizer(t *testing.T) {
	store := newStoreFixture(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, googleCalendarIntegration())
	require.NoError(t, err)

	other := googleCalendarIntegration()
	other.OrganizerID = "org-2"
	_, err = store.Upsert(ctx, other)
	require.NoError(t, err)

	zoom := &Integration{OrganizerID: "org-1", Provider: ProviderZoom, Type: TypeVideo, IsActive: true}
	_, err = store.Upsert(ctx, zoom)
	require.NoError(t, err)

	list, err := store.ListByOrganizer(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSaveTokensKeepsRefreshTokenWhenOmitted(t *testing.T) {
	store := newStoreFixture(t)
	ctx := context.Background()

	integ := googleCalendarIntegration()
	_, err := store.Upsert(ctx, integ)
	require.NoError(t, err)

	expiry := time.Now().Add(2 * time.Hour).UTC()
	require.NoError(t, store.SaveTokens(ctx, integ, "at-new", "", expiry))

	assert.Equal(t, "at-new", integ.AccessToken)
	assert.Equal(t, "rt-1", integ.RefreshToken)

	stored, err := store.Get(ctx, "org-1", TypeCalendar, ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "at-new", stored.AccessToken)
	assert.Equal(t, "rt-1", stored.RefreshToken)
	assert.Equal(t, expiry.Unix(), stored.TokenExpiresAt.Unix())
}

func TestSyncErrorCounterLifecycle(t *testing.T) {
	store := newStoreFixture(t)
	ctx := context.Background()

	integ := googleCalendarIntegration()
	_, err := store.Upsert(ctx, integ)
	require.NoError(t, err)

	count, err := store.RecordSyncError(ctx, integ)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = store.RecordSyncError(ctx, integ)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	syncedAt := time.Now().UTC()
	require.NoError(t, store.RecordSyncSuccess(ctx, integ, syncedAt))
	assert.Equal(t, 0, integ.SyncErrors)

	stored, err := store.Get(ctx, "org-1", TypeCalendar, ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.SyncErrors)
	assert.Equal(t, syncedAt.Unix(), stored.LastSyncAt.Unix())
}

func TestDeactivateKeepsRecord(t *testing.T) {
	store := newStoreFixture(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, googleCalendarIntegration())
	require.NoError(t, err)
	require.NoError(t, store.Deactivate(ctx, "org-1", TypeCalendar, ProviderGoogle))

	stored, err := store.Get(ctx, "org-1", TypeCalendar, ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestWebhookCRUD(t *testing.T) {
	store := newStoreFixture(t)
	ctx := context.Background()

	wh := &WebhookIntegration{
		OrganizerID: "org-1",
		Name:        "CRM hook",
		WebhookURL:  "https://crm.example.com/hook",
		SecretKey:   "s3cret",
		Events:      []string{"booking.created"},
		IsActive:    true,
	}
	require.NoError(t, store.SaveWebhook(ctx, wh))
	require.NotEmpty(t, wh.ID)

	got, err := store.GetWebhook(ctx, wh.ID)
	require.NoError(t, err)
	assert.Equal(t, "CRM hook", got.Name)
	assert.Equal(t, "s3cret", got.SecretKey)

	list, err := store.ListWebhooks(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteWebhook(ctx, wh.ID))
	_, err = store.GetWebhook(ctx, wh.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err = store.ListWebhooks(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedactMasksTokenMaterial(t *testing.T) {
	integ := googleCalendarIntegration()
	redacted := Redact(integ)

	assert.Equal(t, "[redacted]", redacted.AccessToken)
	assert.Equal(t, "[redacted]", redacted.RefreshToken)
	assert.Equal(t, "at-1", integ.AccessToken)

	empty := Redact(&Integration{})
	assert.Empty(t, empty.AccessToken)
}
