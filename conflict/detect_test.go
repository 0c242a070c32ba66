package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"synchub/availability"
	"synchub/integration"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 9, 1, hour, min, 0, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name                       string
		start1, end1, start2, end2 time.Time
		want                       string
	}{
		{"event swallows block", at(9, 0), at(12, 0), at(10, 0), at(11, 0), CompleteOverlap},
		{"block swallows event", at(10, 0), at(11, 0), at(9, 0), at(12, 0), ContainedOverlap},
		{"exact same interval", at(9, 0), at(10, 0), at(9, 0), at(10, 0), CompleteOverlap},
		{"partial from the left", at(9, 0), at(10, 30), at(10, 0), at(11, 0), PartialOverlap},
		{"partial from the right", at(10, 30), at(12, 0), at(10, 0), at(11, 0), PartialOverlap},
		{"disjoint", at(9, 0), at(10, 0), at(11, 0), at(12, 0), NoOverlap},
		{"touching boundaries", at(9, 0), at(10, 0), at(10, 0), at(11, 0), NoOverlap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.start1, tt.end1, tt.start2, tt.end2))
		})
	}
}

func TestDetectSeparatesConflictsFromOverlaps(t *testing.T) {
	events := []integration.NormalizedEvent{
		{ExternalID: "ev-1", Summary: "All hands", StartDateTime: at(9, 0), EndDateTime: at(12, 0)},
		{ExternalID: "ev-2", Summary: "1:1", StartDateTime: at(13, 0), EndDateTime: at(13, 30)},
	}
	blocks := []availability.BlockedTime{
		{ID: "blk-1", Source: availability.SourceManual, Reason: "focus", StartDateTime: at(10, 0), EndDateTime: at(11, 0)},
		{ID: "blk-2", Source: availability.SourceManual, Reason: "lunch", StartDateTime: at(13, 15), EndDateTime: at(14, 0)},
		{ID: "blk-3", Source: availability.SourceManual, Reason: "evening", StartDateTime: at(18, 0), EndDateTime: at(19, 0)},
	}

	result := Detect(events, blocks)

	assert.Equal(t, 2, result.TotalExternalEvents)
	assert.Equal(t, 3, result.TotalManualBlocks)

	// ev-1 fully contains blk-1: hard conflict.
	assert.Len(t, result.Conflicts, 1)
	assert.Equal(t, "ev-1", result.Conflicts[0].ExternalEvent.ID)
	assert.Equal(t, "blk-1", result.Conflicts[0].ManualBlock.ID)
	assert.Equal(t, CompleteOverlap, result.Conflicts[0].OverlapType)

	// ev-2 partially intersects blk-2: soft overlap.
	assert.Len(t, result.Overlaps, 1)
	assert.Equal(t, "ev-2", result.Overlaps[0].ExternalEvent.ID)
	assert.Equal(t, PartialOverlap, result.Overlaps[0].OverlapType)
}

func TestDetectIgnoresSyncedBlocks(t *testing.T) {
	events := []integration.NormalizedEvent{
		{ExternalID: "ev-1", StartDateTime: at(9, 0), EndDateTime: at(12, 0)},
	}
	blocks := []availability.BlockedTime{
		{ID: "blk-1", Source: "google_calendar", StartDateTime: at(10, 0), EndDateTime: at(11, 0)},
	}

	result := Detect(events, blocks)

	assert.Equal(t, 0, result.TotalManualBlocks)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.Overlaps)
}
