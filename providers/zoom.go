package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"synchub/integration"
)

const zoomBaseURL = "https://api.zoom.us/v2"

// ZoomClient provisions Zoom meetings through the Zoom REST API.
type ZoomClient struct {
	rest *restClient

	baseURL string
}

// NewZoomClient creates the Zoom meeting client.
func NewZoomClient(rest *restClient) *ZoomClient {
	return &ZoomClient{rest: rest, baseURL: zoomBaseURL}
}

func (c *ZoomClient) Provider() integration.Provider {
	return integration.ProviderZoom
}

type zoomMeetingBody struct {
	Topic     string           `json:"topic"`
	Type      int              `json:"type"`
	StartTime string           `json:"start_time"`
	Duration  int              `json:"duration"`
	Timezone  string           `json:"timezone,omitempty"`
	Agenda    string           `json:"agenda,omitempty"`
	Settings  *zoomMeetingOpts `json:"settings,omitempty"`
}

type zoomMeetingOpts struct {
	JoinBeforeHost bool `json:"join_before_host"`
	WaitingRoom    bool `json:"waiting_room"`
}

// zoomScheduled is the fixed-time meeting type.
const zoomScheduled = 2

func (c *ZoomClient) meetingBody(integ *integration.Integration, booking *integration.Booking) *zoomMeetingBody {
	return &zoomMeetingBody{
		Topic:     booking.Subject(),
		Type:      zoomScheduled,
		StartTime: booking.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  int(booking.EndTime.Sub(booking.StartTime).Minutes()),
		Timezone:  integ.Timezone,
		Agenda:    fmt.Sprintf("Meeting with %s (%s)", booking.InviteeName, booking.InviteeEmail),
		Settings:  &zoomMeetingOpts{WaitingRoom: true},
	}
}

func (c *ZoomClient) dailyGuard(ctx context.Context, integ *integration.Integration) error {
	return c.rest.deps.Limiter.CheckDaily(ctx, integration.ProviderZoom, integ.OrganizerID)
}

func (c *ZoomClient) recordDaily(ctx context.Context, integ *integration.Integration) {
	if err := c.rest.deps.Limiter.RecordDaily(ctx, integration.ProviderZoom, integ.OrganizerID); err != nil {
		log.Printf("Warning: failed to record zoom daily API call: %v", err)
	}
}

func (c *ZoomClient) TestConnection(ctx context.Context, integ *integration.Integration) ConnectionStatus {
	status := ConnectionStatus{Provider: integration.ProviderZoom, Type: integ.Type}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodGet,
		url:         c.baseURL + "/users/me",
		provider:    integration.ProviderZoom,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
	})
	if err != nil {
		status.Message = err.Error()
	} else {
		status.Healthy = true
		status.Message = "Successfully connected to Zoom"
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogConnectionTest,
		IntegrationType: string(integration.ProviderZoom),
		Message:         status.Message,
		Success:         status.Healthy,
	})
	return status
}

// GetBusyTimes is not part of the Zoom surface.
func (c *ZoomClient) GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error) {
	return nil, fmt.Errorf("zoom does not expose busy times")
}

func (c *ZoomClient) Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error) {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return nil, err
	}

	resp, err := c.rest.do(ctx, &request{
		method:      http.MethodPost,
		url:         c.baseURL + "/users/me/meetings",
		body:        c.meetingBody(integ, booking),
		provider:    integration.ProviderZoom,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusCreated},
	})
	c.recordDaily(ctx, integ)
	if err != nil {
		c.rest.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogVideoLinkCreated,
			IntegrationType: string(integration.ProviderZoom),
			Message:         fmt.Sprintf("Failed to create meeting: %v", err),
			Success:         false,
			BookingID:       booking.ID,
			Details:         map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	var created struct {
		ID       int64  `json:"id"`
		JoinURL  string `json:"join_url"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created meeting: %w", err)
	}

	meetingID := fmt.Sprintf("%d", created.ID)
	details := &integration.MeetingDetails{
		ExternalMeetingID: meetingID,
		MeetingID:         meetingID,
		MeetingNumber:     meetingID,
		MeetingLink:       created.JoinURL,
		MeetingPassword:   created.Password,
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoLinkCreated,
		IntegrationType: string(integration.ProviderZoom),
		Message:         fmt.Sprintf("Created Zoom meeting for booking %s", booking.ID),
		Success:         true,
		BookingID:       booking.ID,
		Details:         map[string]string{"external_meeting_id": meetingID},
	})
	return details, nil
}

func (c *ZoomClient) Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return err
	}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodPatch,
		url:         c.baseURL + "/meetings/" + externalID,
		body:        c.meetingBody(integ, booking),
		provider:    integration.ProviderZoom,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusNoContent},
	})
	c.recordDaily(ctx, integ)

	success := err == nil
	message := fmt.Sprintf("Updated Zoom meeting %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to update meeting %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoMeetingUpdated,
		IntegrationType: string(integration.ProviderZoom),
		Message:         message,
		Success:         success,
		BookingID:       booking.ID,
	})
	return err
}

func (c *ZoomClient) Delete(ctx context.Context, integ *integration.Integration, externalID string) error {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return err
	}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodDelete,
		url:         c.baseURL + "/meetings/" + externalID,
		provider:    integration.ProviderZoom,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusNoContent},
		notFoundOK:  true,
	})
	c.recordDaily(ctx, integ)

	success := err == nil
	message := fmt.Sprintf("Deleted Zoom meeting %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to delete meeting %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoMeetingDeleted,
		IntegrationType: string(integration.ProviderZoom),
		Message:         message,
		Success:         success,
	})
	return err
}
