package availability

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synchub/integration"
)

func newBlockedFixture(t *testing.T) *Store {
	mr := miniredis.RunT(t)
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func busyEvent(id string, start time.Time) integration.NormalizedEvent {
	return integration.NormalizedEvent{
		ExternalID:    id,
		Summary:       "Busy",
		StartDateTime: start,
		EndDateTime:   start.Add(time.Hour),
		Updated:       start,
		Status:        integration.StatusConfirmed,
		Transparency:  integration.TransparencyOpaque,
	}
}

func TestReplaceSyncedIsFullReplacement(t *testing.T) {
	store := newBlockedFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	first := []integration.NormalizedEvent{
		busyEvent("ev-1", base),
		busyEvent("ev-2", base.Add(2*time.Hour)),
	}
	require.NoError(t, store.ReplaceSynced(ctx, "org-1", integration.ProviderGoogle, first))

	blocks, err := store.ListSynced(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	// The next pass drops ev-2 and brings ev-3; ev-2 must disappear.
	second := []integration.NormalizedEvent{
		busyEvent("ev-1", base),
		busyEvent("ev-3", base.Add(4*time.Hour)),
	}
	require.NoError(t, store.ReplaceSynced(ctx, "org-1", integration.ProviderGoogle, second))

	blocks, err = store.ListSynced(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	ids := []string{blocks[0].ExternalID, blocks[1].ExternalID}
	assert.ElementsMatch(t, []string{"ev-1", "ev-3"}, ids)
	assert.Equal(t, "google_calendar", blocks[0].Source)
}

func TestReplaceSyncedSkipsNonBusyEvents(t *testing.T) {
	store := newBlockedFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	cancelled := busyEvent("ev-cancelled", base)
	cancelled.Status = integration.StatusCancelled
	transparent := busyEvent("ev-free", base.Add(2*time.Hour))
	transparent.Transparency = integration.TransparencyTransparent

	events := []integration.NormalizedEvent{
		cancelled,
		transparent,
		busyEvent("ev-busy", base.Add(4*time.Hour)),
	}
	require.NoError(t, store.ReplaceSynced(ctx, "org-1", integration.ProviderGoogle, events))

	blocks, err := store.ListSynced(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "ev-busy", blocks[0].ExternalID)
}

func TestSyncedBlocksAreKeptPerProvider(t *testing.T) {
	store := newBlockedFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.ReplaceSynced(ctx, "org-1", integration.ProviderGoogle,
		[]integration.NormalizedEvent{busyEvent("g-1", base)}))
	require.NoError(t, store.ReplaceSynced(ctx, "org-1", integration.ProviderOutlook,
		[]integration.NormalizedEvent{busyEvent("o-1", base.Add(time.Hour))}))

	blocks, err := store.ListSynced(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, blocks, 2)

	// Replacing one provider leaves the other's blocks alone.
	require.NoError(t, store.ReplaceSynced(ctx, "org-1", integration.ProviderGoogle, nil))
	blocks, err = store.ListSynced(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "o-1", blocks[0].ExternalID)
}

func TestManualBlocksAreSeparateFromSynced(t *testing.T) {
	store := newBlockedFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

	block := &BlockedTime{
		OrganizerID:   "org-1",
		StartDateTime: base,
		EndDateTime:   base.Add(time.Hour),
		Reason:        "focus time",
	}
	require.NoError(t, store.AddManual(ctx, block))
	assert.NotEmpty(t, block.ID)
	assert.Equal(t, SourceManual, block.Source)

	require.NoError(t, store.ReplaceSynced(ctx, "org-1", integration.ProviderGoogle,
		[]integration.NormalizedEvent{busyEvent("g-1", base.Add(2*time.Hour))}))

	manual, err := store.ListManual(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, "focus time", manual[0].Reason)

	synced, err := store.ListSynced(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, "g-1", synced[0].ExternalID)
}
