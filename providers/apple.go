package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"synchub/integration"
)

const caldavBaseURL = "https://caldav.icloud.com"

// AppleClient manages Apple Calendar over CalDAV. Authentication is Basic
// with the account email and an app-specific password stored as the access
// token; there is no OAuth refresh cycle.
type AppleClient struct {
	rest *restClient

	baseURL string
}

// NewAppleClient creates the Apple CalDAV client.
func NewAppleClient(rest *restClient) *AppleClient {
	return &AppleClient{rest: rest, baseURL: caldavBaseURL}
}

func (c *AppleClient) Provider() integration.Provider {
	return integration.ProviderApple
}

func (c *AppleClient) calendarHomeURL(integ *integration.Integration) string {
	return fmt.Sprintf("%s/%s/calendars/", c.baseURL, integ.ProviderUserID)
}

func (c *AppleClient) calendarURL(integ *integration.Integration) string {
	calID := integ.CalendarID
	if calID == "" {
		calID = "home"
	}
	return c.calendarHomeURL(integ) + calID + "/"
}

func (c *AppleClient) caldavRequest(integ *integration.Integration, method, url string, body []byte, okStatuses []int, notFoundOK bool) *request {
	return &request{
		method:      method,
		url:         url,
		rawBody:     body,
		provider:    integration.ProviderApple,
		organizerID: integ.OrganizerID,
		basicUser:   integ.ProviderEmail,
		basicPass:   integ.AccessToken,
		okStatuses:  okStatuses,
		notFoundOK:  notFoundOK,
	}
}

func (c *AppleClient) TestConnection(ctx context.Context, integ *integration.Integration) ConnectionStatus {
	status := ConnectionStatus{Provider: integration.ProviderApple, Type: integ.Type}

	req := c.caldavRequest(integ, "PROPFIND", c.calendarHomeURL(integ), nil,
		[]int{http.StatusOK, http.StatusMultiStatus}, false)
	req.headers = map[string]string{"Depth": "1"}

	_, err := c.rest.do(ctx, req)
	if err != nil {
		status.Message = err.Error()
	} else {
		status.Healthy = true
		status.Message = "Successfully connected to Apple Calendar"
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogConnectionTest,
		IntegrationType: string(integration.ProviderApple),
		Message:         status.Message,
		Success:         status.Healthy,
	})
	return status
}

func (c *AppleClient) GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error) {
	reportXML := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" ?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
    <D:prop>
        <D:getetag />
        <C:calendar-data />
    </D:prop>
    <C:filter>
        <C:comp-filter name="VCALENDAR">
            <C:comp-filter name="VEVENT">
                <C:time-range start="%s" end="%s"/>
            </C:comp-filter>
        </C:comp-filter>
    </C:filter>
</C:calendar-query>`,
		start.UTC().Format(icalTimeLayout), end.UTC().Format(icalTimeLayout))

	req := c.caldavRequest(integ, "REPORT", c.calendarURL(integ), []byte(reportXML),
		[]int{http.StatusMultiStatus}, false)
	req.headers = map[string]string{
		"Depth":        "1",
		"Content-Type": "application/xml; charset=utf-8",
	}

	resp, err := c.rest.do(ctx, req)
	if err != nil {
		c.rest.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogCalendarSync,
			IntegrationType: string(integration.ProviderApple),
			Message:         fmt.Sprintf("Failed to fetch events: %v", err),
			Success:         false,
			Details:         map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	events, err := ParseCalDAVReport(resp.body, integ.Location())
	if err != nil {
		return nil, err
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarSync,
		IntegrationType: string(integration.ProviderApple),
		Message:         fmt.Sprintf("Successfully fetched %d events from Apple Calendar", len(events)),
		Success:         true,
		Details: map[string]string{
			"event_count": fmt.Sprintf("%d", len(events)),
			"date_range":  fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		},
	})
	return events, nil
}

func (c *AppleClient) Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error) {
	uid := fmt.Sprintf("booking-%s@synchub.local", booking.ID)
	body := GenerateEventBody(booking, booking.OrganizerName, booking.OrganizerEmail, uid)

	req := c.caldavRequest(integ, http.MethodPut, c.calendarURL(integ)+uid+".ics", []byte(body),
		[]int{http.StatusCreated, http.StatusNoContent}, false)
	req.headers = map[string]string{"Content-Type": "text/calendar; charset=utf-8"}

	_, err := c.rest.do(ctx, req)
	if err != nil {
		c.rest.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogCalendarEventCreated,
			IntegrationType: string(integration.ProviderApple),
			Message:         fmt.Sprintf("Failed to create event: %v", err),
			Success:         false,
			BookingID:       booking.ID,
			Details:         map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventCreated,
		IntegrationType: string(integration.ProviderApple),
		Message:         fmt.Sprintf("Created Apple Calendar event for booking %s", booking.ID),
		Success:         true,
		BookingID:       booking.ID,
		Details:         map[string]string{"external_event_id": uid},
	})
	return &integration.MeetingDetails{ExternalMeetingID: uid}, nil
}

func (c *AppleClient) Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error {
	body := GenerateEventBody(booking, booking.OrganizerName, booking.OrganizerEmail, externalID)

	req := c.caldavRequest(integ, http.MethodPut, c.calendarURL(integ)+externalID+".ics", []byte(body),
		[]int{http.StatusOK, http.StatusCreated, http.StatusNoContent}, false)
	req.headers = map[string]string{"Content-Type": "text/calendar; charset=utf-8"}

	_, err := c.rest.do(ctx, req)

	success := err == nil
	message := fmt.Sprintf("Updated Apple Calendar event %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to update event %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventUpdated,
		IntegrationType: string(integration.ProviderApple),
		Message:         message,
		Success:         success,
		BookingID:       booking.ID,
	})
	return err
}

func (c *AppleClient) Delete(ctx context.Context, integ *integration.Integration, externalID string) error {
	req := c.caldavRequest(integ, http.MethodDelete, c.calendarURL(integ)+externalID+".ics", nil,
		[]int{http.StatusOK, http.StatusNoContent}, true)

	_, err := c.rest.do(ctx, req)

	success := err == nil
	message := fmt.Sprintf("Deleted Apple Calendar event %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to delete event %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogCalendarEventDeleted,
		IntegrationType: string(integration.ProviderApple),
		Message:         message,
		Success:         success,
	})
	return err
}
