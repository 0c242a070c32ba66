package providers

import (
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"synchub/integration"
)

// ParseGoogleEvent normalizes one Google Calendar API event. All-day events
// carry a date instead of a dateTime and are pinned to midnight UTC.
func ParseGoogleEvent(ev *calendar.Event) (*integration.NormalizedEvent, error) {
	if ev.Id == "" {
		return nil, fmt.Errorf("google event has no id")
	}

	var start, end time.Time
	var err error
	if ev.Start != nil && ev.Start.Date != "" {
		if ev.End == nil {
			return nil, fmt.Errorf("google event %s has no end", ev.Id)
		}
		start, err = time.ParseInLocation("2006-01-02", ev.Start.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid all-day start %q: %w", ev.Start.Date, err)
		}
		end, err = time.ParseInLocation("2006-01-02", ev.End.Date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid all-day end %q: %w", ev.End.Date, err)
		}
	} else {
		if ev.Start == nil || ev.End == nil {
			return nil, fmt.Errorf("google event %s has no start/end", ev.Id)
		}
		start, err = time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			return nil, fmt.Errorf("invalid start %q: %w", ev.Start.DateTime, err)
		}
		end, err = time.Parse(time.RFC3339, ev.End.DateTime)
		if err != nil {
			return nil, fmt.Errorf("invalid end %q: %w", ev.End.DateTime, err)
		}
	}

	var updated time.Time
	if ev.Updated != "" {
		updated, _ = time.Parse(time.RFC3339, ev.Updated)
	}

	summary := ev.Summary
	if summary == "" {
		summary = "Busy"
	}
	status := ev.Status
	if status == "" {
		status = integration.StatusConfirmed
	}
	transparency := ev.Transparency
	if transparency == "" {
		transparency = integration.TransparencyOpaque
	}

	return &integration.NormalizedEvent{
		ExternalID:    ev.Id,
		Summary:       summary,
		StartDateTime: start.UTC(),
		EndDateTime:   end.UTC(),
		Updated:       updated.UTC(),
		Status:        status,
		Transparency:  transparency,
	}, nil
}

// outlookEvent is the subset of a Microsoft Graph event consumed by sync.
type outlookEvent struct {
	ID                   string        `json:"id"`
	Subject              string        `json:"subject"`
	Start                graphDateTime `json:"start"`
	End                  graphDateTime `json:"end"`
	LastModifiedDateTime string        `json:"lastModifiedDateTime"`
	IsCancelled          bool          `json:"isCancelled"`
	IsAllDay             bool          `json:"isAllDay"`
	ShowAs               string        `json:"showAs"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// parse handles Graph's fractional-second local form. Responses are requested
// with Prefer: outlook.timezone="UTC", so a bare timestamp is UTC.
func (g graphDateTime) parse() (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05.9999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, g.DateTime, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable graph datetime %q", g.DateTime)
}

// ParseOutlookEvent normalizes one Microsoft Graph calendar event. Graph has
// no transparency field; showAs "free" maps to transparent, everything else
// is busy.
func ParseOutlookEvent(ev *outlookEvent) (*integration.NormalizedEvent, error) {
	if ev.ID == "" {
		return nil, fmt.Errorf("outlook event has no id")
	}
	start, err := ev.Start.parse()
	if err != nil {
		return nil, err
	}
	end, err := ev.End.parse()
	if err != nil {
		return nil, err
	}

	var updated time.Time
	if ev.LastModifiedDateTime != "" {
		updated, _ = time.Parse(time.RFC3339, ev.LastModifiedDateTime)
	}

	summary := ev.Subject
	if summary == "" {
		summary = "Busy"
	}
	status := integration.StatusConfirmed
	if ev.IsCancelled {
		status = integration.StatusCancelled
	}
	transparency := integration.TransparencyOpaque
	if ev.ShowAs == "free" {
		transparency = integration.TransparencyTransparent
	}

	return &integration.NormalizedEvent{
		ExternalID:    ev.ID,
		Summary:       summary,
		StartDateTime: start,
		EndDateTime:   end,
		Updated:       updated.UTC(),
		Status:        status,
		Transparency:  transparency,
	}, nil
}
