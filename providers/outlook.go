package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"synchub/integration"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// OutlookClient manages Outlook calendar events through Microsoft Graph.
type OutlookClient struct {
	rest *restClient

	// baseURL overrides the Graph endpoint in tests.
	baseURL string
}

// NewOutlookClient creates the Outlook calendar client.
func NewOutlookClient(rest *restClient) *OutlookClient {
	return &OutlookClient{rest: rest, baseURL: graphBaseURL}
}

func (c *OutlookClient) Provider() integration.Provider {
	return integration.ProviderOutlook
}

// graphEvent is the payload shape for Graph event writes.
type graphEventBody struct {
	Subject string         `json:"subject"`
	Body    graphItemBody  `json:"body"`
	Start   graphDateTime  `json:"start"`
	End     graphDateTime  `json:"end"`
	IsAllDay bool          `json:"isAllDay,omitempty"`
	Location *graphLocation `json:"location,omitempty"`
	Attendees []graphAttendee `json:"attendees,omitempty"`
}

type graphItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphAttendee struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
	Type         string            `json:"type"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

func (c *OutlookClient) bookingEvent(booking *integration.Booking) *graphEventBody {
	content := fmt.Sprintf("Invitee: %s (%s)\nEvent Type: %s",
		booking.InviteeName, booking.InviteeEmail, booking.EventTypeName)
	if booking.MeetingLink != "" {
		content += "\n\nMeeting Link: " + booking.MeetingLink
	}
	ev := &graphEventBody{
		Subject: booking.Subject(),
		Body:    graphItemBody{ContentType: "text", Content: content},
		Start:   graphDateTime{DateTime: booking.StartTime.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		End:     graphDateTime{DateTime: booking.EndTime.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		Attendees: []graphAttendee{
			{EmailAddress: graphEmailAddress{Address: booking.InviteeEmail, Name: booking.InviteeName}, Type: "required"},
		},
	}
	if booking.LocationDetails != "" {
		ev.Location = &graphLocation{DisplayName: booking.LocationDetails}
	}
	return ev
}

func (c *OutlookClient) TestConnection(ctx context.Context, integ *integration.Integration) ConnectionStatus {
	status := ConnectionStatus{Provider: integration.ProviderOutlook, Type: integ.Type}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodGet,
		url:         c.baseURL + "/me",
		provider:    integration.ProviderOutlook,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
	})
	if err != nil {
		status.Message = err.Error()
	} else {
		status.Healthy = true
		status.Message = "Successfully connected to Outlook Calendar"
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogConnectionTest,
		IntegrationType: string(integration.ProviderOutlook),
		Message:         status.Message,
		Success:         status.Healthy,
	})
	return status
}

func (c *OutlookClient) GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error) {
	query := url.Values{}
	query.Set("startDateTime", start.UTC().Format(time.RFC3339))
	query.Set("endDateTime", end.UTC().Format(time.RFC3339))
	query.Set("$top", "250")

	resp, err := c.rest.do(ctx, &request{
		method:      http.MethodGet,
		url:         c.baseURL + "/me/calendarview?" + query.Encode(),
		provider:    integration.ProviderOutlook,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		headers:     map[string]string{"Prefer": `outlook.timezone="UTC"`},
	})
	if err != nil {
		c.rest.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogCalendarSync,
			IntegrationType: string(integration.ProviderOutlook),
			Message:         fmt.Sprintf("Failed to fetch events: %v", err),
			Success:         false,
			Details:         map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	var payload struct {
		Value []outlookEvent `json:"value"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode calendar view: %w", err)
	}

	events := make([]integration.NormalizedEvent, 0, len(payload.Value))
	for i := range payload.Value {
		ev, err := ParseOutlookEvent(&payload.Value[i])
		if err != nil {
			log.Printf("Warning: skipping outlook event: %v", err)
			continue
		}
		events = append(events, *ev)
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarSync,
		IntegrationType: string(integration.ProviderOutlook),
		Message:         fmt.Sprintf("Successfully fetched %d events from Outlook Calendar", len(events)),
		Success:         true,
		Details: map[string]string{
			"event_count": fmt.Sprintf("%d", len(events)),
			"date_range":  fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		},
	})
	return events, nil
}

func (c *OutlookClient) Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error) {
	resp, err := c.rest.do(ctx, &request{
		method:      http.MethodPost,
		url:         c.baseURL + "/me/events",
		body:        c.bookingEvent(booking),
		provider:    integration.ProviderOutlook,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusCreated},
	})
	if err != nil {
		c.rest.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogCalendarEventCreated,
			IntegrationType: string(integration.ProviderOutlook),
			Message:         fmt.Sprintf("Failed to create event: %v", err),
			Success:         false,
			BookingID:       booking.ID,
			Details:         map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created event: %w", err)
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventCreated,
		IntegrationType: string(integration.ProviderOutlook),
		Message:         fmt.Sprintf("Created Outlook Calendar event for booking %s", booking.ID),
		Success:         true,
		BookingID:       booking.ID,
		Details:         map[string]string{"external_event_id": created.ID},
	})
	return &integration.MeetingDetails{ExternalMeetingID: created.ID}, nil
}

func (c *OutlookClient) Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error {
	_, err := c.rest.do(ctx, &request{
		method:      http.MethodPatch,
		url:         c.baseURL + "/me/events/" + externalID,
		body:        c.bookingEvent(booking),
		provider:    integration.ProviderOutlook,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
	})

	success := err == nil
	message := fmt.Sprintf("Updated Outlook Calendar event %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to update event %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventUpdated,
		IntegrationType: string(integration.ProviderOutlook),
		Message:         message,
		Success:         success,
		BookingID:       booking.ID,
	})
	return err
}

func (c *OutlookClient) Delete(ctx context.Context, integ *integration.Integration, externalID string) error {
	_, err := c.rest.do(ctx, &request{
		method:      http.MethodDelete,
		url:         c.baseURL + "/me/events/" + externalID,
		provider:    integration.ProviderOutlook,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusNoContent},
		notFoundOK:  true,
	})

	success := err == nil
	message := fmt.Sprintf("Deleted Outlook Calendar event %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to delete event %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventDeleted,
		IntegrationType: string(integration.ProviderOutlook),
		Message:         message,
		Success:         success,
	})
	return err
}
