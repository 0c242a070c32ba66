package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"

	"synchub/integration"
)

func TestParseGoogleEventTimed(t *testing.T) {
	ev := &calendar.Event{
		Id:      "gcal-1",
		Summary: "Standup",
		Start:   &calendar.EventDateTime{DateTime: "2026-09-01T09:00:00-04:00"},
		End:     &calendar.EventDateTime{DateTime: "2026-09-01T09:15:00-04:00"},
		Updated: "2026-08-28T12:00:00Z",
		Status:  "confirmed",
	}

	got, err := ParseGoogleEvent(ev)
	require.NoError(t, err)

	assert.Equal(t, "gcal-1", got.ExternalID)
	assert.Equal(t, "Standup", got.Summary)
	assert.Equal(t, time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC), got.StartDateTime)
	assert.Equal(t, time.Date(2026, 9, 1, 13, 15, 0, 0, time.UTC), got.EndDateTime)
	assert.Equal(t, integration.StatusConfirmed, got.Status)
	assert.Equal(t, integration.TransparencyOpaque, got.Transparency)
}

func TestParseGoogleEventAllDay(t *testing.T) {
	ev := &calendar.Event{
		Id:    "gcal-2",
		Start: &calendar.EventDateTime{Date: "2026-09-01"},
		End:   &calendar.EventDateTime{Date: "2026-09-02"},
	}

	got, err := ParseGoogleEvent(ev)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), got.StartDateTime)
	assert.Equal(t, time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC), got.EndDateTime)
	assert.Equal(t, "Busy", got.Summary)
}

func TestParseGoogleEventMissingID(t *testing.T) {
	_, err := ParseGoogleEvent(&calendar.Event{})
	assert.Error(t, err)
}

func TestParseGoogleEventAllDayWithoutEnd(t *testing.T) {
	ev := &calendar.Event{
		Id:    "gcal-3",
		Start: &calendar.EventDateTime{Date: "2026-09-01"},
	}
	_, err := ParseGoogleEvent(ev)
	assert.Error(t, err)
}

func TestParseOutlookEvent(t *testing.T) {
	ev := &outlookEvent{
		ID:                   "graph-1",
		Subject:              "Design review",
		Start:                graphDateTime{DateTime: "2026-09-01T14:00:00.0000000", TimeZone: "UTC"},
		End:                  graphDateTime{DateTime: "2026-09-01T15:00:00.0000000", TimeZone: "UTC"},
		LastModifiedDateTime: "2026-08-28T12:00:00Z",
		ShowAs:               "busy",
	}

	got, err := ParseOutlookEvent(ev)
	require.NoError(t, err)

	assert.Equal(t, "graph-1", got.ExternalID)
	assert.Equal(t, time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC), got.StartDateTime)
	assert.Equal(t, time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC), got.EndDateTime)
	assert.Equal(t, integration.StatusConfirmed, got.Status)
	assert.Equal(t, integration.TransparencyOpaque, got.Transparency)
}

func TestParseOutlookEventCancelledAndFree(t *testing.T) {
	cancelled := &outlookEvent{
		ID:          "graph-2",
		Start:       graphDateTime{DateTime: "2026-09-01T14:00:00"},
		End:         graphDateTime{DateTime: "2026-09-01T15:00:00"},
		IsCancelled: true,
	}
	got, err := ParseOutlookEvent(cancelled)
	require.NoError(t, err)
	assert.Equal(t, integration.StatusCancelled, got.Status)
	assert.Equal(t, "Busy", got.Summary)

	free := &outlookEvent{
		ID:     "graph-3",
		Start:  graphDateTime{DateTime: "2026-09-01T14:00:00"},
		End:    graphDateTime{DateTime: "2026-09-01T15:00:00"},
		ShowAs: "free",
	}
	got, err = ParseOutlookEvent(free)
	require.NoError(t, err)
	assert.Equal(t, integration.TransparencyTransparent, got.Transparency)
}

func TestGraphDateTimeUnparseable(t *testing.T) {
	ev := &outlookEvent{
		ID:    "graph-4",
		Start: graphDateTime{DateTime: "September 1st"},
		End:   graphDateTime{DateTime: "2026-09-01T15:00:00"},
	}
	_, err := ParseOutlookEvent(ev)
	assert.Error(t, err)
}
