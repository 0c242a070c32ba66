package providers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"synchub/integration"
)

// GoogleClient speaks to Google Calendar through the official API client.
type GoogleClient struct {
	deps Deps

	// endpoint overrides the Calendar API base URL in tests.
	endpoint string
}

// NewGoogleClient creates the Google Calendar client.
func NewGoogleClient(deps Deps) *GoogleClient {
	return &GoogleClient{deps: deps}
}

func (c *GoogleClient) Provider() integration.Provider {
	return integration.ProviderGoogle
}

func (c *GoogleClient) service(ctx context.Context, integ *integration.Integration) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: integ.AccessToken})
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

func (c *GoogleClient) calendarID(integ *integration.Integration) string {
	if integ.CalendarID != "" {
		return integ.CalendarID
	}
	return "primary"
}

// googleErr maps a Google API error onto the shared error taxonomy so retry
// and refresh logic treat all providers uniformly.
func googleErr(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return fmt.Errorf("google: %w", integration.ErrTokenExpired)
	case apiErr.Code == http.StatusTooManyRequests:
		return &integration.RateLimitError{Provider: integration.ProviderGoogle, Current: -1, Limit: -1}
	default:
		return &integration.APIError{Provider: integration.ProviderGoogle, StatusCode: apiErr.Code, Body: apiErr.Message}
	}
}

func (c *GoogleClient) guard(ctx context.Context, integ *integration.Integration) error {
	return c.deps.Limiter.Check(ctx, integration.ProviderGoogle, integ.OrganizerID)
}

func (c *GoogleClient) record(ctx context.Context, integ *integration.Integration) {
	if err := c.deps.Limiter.Record(ctx, integration.ProviderGoogle, integ.OrganizerID); err != nil {
		log.Printf("Warning: failed to record google API call: %v", err)
	}
}

func (c *GoogleClient) TestConnection(ctx context.Context, integ *integration.Integration) ConnectionStatus {
	status := ConnectionStatus{Provider: integration.ProviderGoogle, Type: integ.Type}

	svc, err := c.service(ctx, integ)
	if err != nil {
		status.Message = err.Error()
		return status
	}
	if err := c.guard(ctx, integ); err != nil {
		status.Message = err.Error()
		return status
	}
	_, err = svc.CalendarList.List().MaxResults(1).Context(ctx).Do()
	c.record(ctx, integ)
	if err != nil {
		status.Message = googleErr(err).Error()
	} else {
		status.Healthy = true
		status.Message = "Successfully connected to Google Calendar"
	}

	c.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogConnectionTest,
		IntegrationType: string(integration.ProviderGoogle),
		Message:         status.Message,
		Success:         status.Healthy,
	})
	return status
}

func (c *GoogleClient) GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error) {
	svc, err := c.service(ctx, integ)
	if err != nil {
		return nil, err
	}
	if err := c.guard(ctx, integ); err != nil {
		return nil, err
	}

	resp, err := svc.Events.List(c.calendarID(integ)).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		Context(ctx).Do()
	c.record(ctx, integ)
	if err != nil {
		mapped := googleErr(err)
		c.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogCalendarSync,
			IntegrationType: string(integration.ProviderGoogle),
			Message:         fmt.Sprintf("Failed to fetch events: %v", mapped),
			Success:         false,
			Details:         map[string]string{"error": mapped.Error()},
		})
		return nil, mapped
	}

	events := make([]integration.NormalizedEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, err := ParseGoogleEvent(item)
		if err != nil {
			log.Printf("Warning: skipping google event: %v", err)
			continue
		}
		events = append(events, *ev)
	}

	c.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarSync,
		IntegrationType: string(integration.ProviderGoogle),
		Message:         fmt.Sprintf("Successfully fetched %d events from Google Calendar", len(events)),
		Success:         true,
		Details: map[string]string{
			"event_count": fmt.Sprintf("%d", len(events)),
			"date_range":  fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		},
	})
	return events, nil
}

func (c *GoogleClient) bookingEvent(booking *integration.Booking) *calendar.Event {
	description := fmt.Sprintf("Invitee: %s (%s)\nEvent Type: %s",
		booking.InviteeName, booking.InviteeEmail, booking.EventTypeName)
	if booking.MeetingLink != "" {
		description += "\n\nMeeting Link: " + booking.MeetingLink
	}
	ev := &calendar.Event{
		Summary:     booking.Subject(),
		Description: description,
		Start:       &calendar.EventDateTime{DateTime: booking.StartTime.UTC().Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: booking.EndTime.UTC().Format(time.RFC3339)},
		Attendees: []*calendar.EventAttendee{
			{Email: booking.InviteeEmail, DisplayName: booking.InviteeName},
		},
	}
	if booking.LocationDetails != "" {
		ev.Location = booking.LocationDetails
	}
	return ev
}

func (c *GoogleClient) Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error) {
	svc, err := c.service(ctx, integ)
	if err != nil {
		return nil, err
	}
	if err := c.guard(ctx, integ); err != nil {
		return nil, err
	}

	created, err := svc.Events.Insert(c.calendarID(integ), c.bookingEvent(booking)).Context(ctx).Do()
	c.record(ctx, integ)
	if err != nil {
		mapped := googleErr(err)
		c.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogCalendarEventCreated,
			IntegrationType: string(integration.ProviderGoogle),
			Message:         fmt.Sprintf("Failed to create event: %v", mapped),
			Success:         false,
			BookingID:       booking.ID,
			Details:         map[string]string{"error": mapped.Error()},
		})
		return nil, mapped
	}

	c.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventCreated,
		IntegrationType: string(integration.ProviderGoogle),
		Message:         fmt.Sprintf("Created Google Calendar event for booking %s", booking.ID),
		Success:         true,
		BookingID:       booking.ID,
		Details:         map[string]string{"external_event_id": created.Id},
	})
	return &integration.MeetingDetails{ExternalMeetingID: created.Id, MeetingLink: created.HangoutLink}, nil
}

func (c *GoogleClient) Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error {
	svc, err := c.service(ctx, integ)
	if err != nil {
		return err
	}
	if err := c.guard(ctx, integ); err != nil {
		return err
	}

	_, err = svc.Events.Update(c.calendarID(integ), externalID, c.bookingEvent(booking)).Context(ctx).Do()
	c.record(ctx, integ)
	success := err == nil
	message := fmt.Sprintf("Updated Google Calendar event %s", externalID)
	if err != nil {
		err = googleErr(err)
		message = fmt.Sprintf("Failed to update event %s: %v", externalID, err)
	}
	c.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventUpdated,
		IntegrationType: string(integration.ProviderGoogle),
		Message:         message,
		Success:         success,
		BookingID:       booking.ID,
	})
	return err
}

func (c *GoogleClient) Delete(ctx context.Context, integ *integration.Integration, externalID string) error {
	svc, err := c.service(ctx, integ)
	if err != nil {
		return err
	}
	if err := c.guard(ctx, integ); err != nil {
		return err
	}

	err = svc.Events.Delete(c.calendarID(integ), externalID).Context(ctx).Do()
	c.record(ctx, integ)
	if err != nil {
		var apiErr *googleapi.Error
		// A reference the provider no longer knows is already deleted.
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
			err = nil
		} else {
			err = googleErr(err)
		}
	}

	success := err == nil
	message := fmt.Sprintf("Deleted Google Calendar event %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to delete event %s: %v", externalID, err)
	}
	c.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventDeleted,
		IntegrationType: string(integration.ProviderGoogle),
		Message:         message,
		Success:         success,
	})
	return err
}
