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

const webexBaseURL = "https://webexapis.com/v1"

// WebexClient provisions Webex meetings through the Webex REST API.
type WebexClient struct {
	rest *restClient

	baseURL string
}

// NewWebexClient creates the Webex meeting client.
func NewWebexClient(rest *restClient) *WebexClient {
	return &WebexClient{rest: rest, baseURL: webexBaseURL}
}

func (c *WebexClient) Provider() integration.Provider {
	return integration.ProviderWebex
}

type webexMeetingBody struct {
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
	Agenda   string `json:"agenda,omitempty"`

	EnabledAutoRecordMeeting      bool   `json:"enabledAutoRecordMeeting"`
	AllowAnyUserToBeCoHost        bool   `json:"allowAnyUserToBeCoHost"`
	EnabledJoinBeforeHost         bool   `json:"enabledJoinBeforeHost"`
	JoinBeforeHostMinutes         int    `json:"joinBeforeHostMinutes"`
	EnableConnectAudioBeforeHost  bool   `json:"enableConnectAudioBeforeHost"`
	ExcludePassword               bool   `json:"excludePassword"`
	PublicMeeting                 bool   `json:"publicMeeting"`
	ReminderTime                  int    `json:"reminderTime"`
	UnlockedMeetingJoinSecurity   string `json:"unlockedMeetingJoinSecurity"`
	SessionTypeID                 int    `json:"sessionTypeId"`

	Invitees []webexInvitee `json:"invitees,omitempty"`
}

type webexInvitee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	CoHost      bool   `json:"coHost"`
}

func (c *WebexClient) meetingBody(integ *integration.Integration, booking *integration.Booking) *webexMeetingBody {
	return &webexMeetingBody{
		Title:                       booking.Subject(),
		Start:                       booking.StartTime.UTC().Format(time.RFC3339),
		End:                         booking.EndTime.UTC().Format(time.RFC3339),
		Timezone:                    integ.Timezone,
		Agenda:                      fmt.Sprintf("Meeting with %s (%s)", booking.InviteeName, booking.InviteeEmail),
		ReminderTime:                15,
		UnlockedMeetingJoinSecurity: "allowJoinWithLobby",
		SessionTypeID:               1,
		Invitees: []webexInvitee{
			{Email: booking.InviteeEmail, DisplayName: booking.InviteeName},
		},
	}
}

func (c *WebexClient) dailyGuard(ctx context.Context, integ *integration.Integration) error {
	return c.rest.deps.Limiter.CheckDaily(ctx, integration.ProviderWebex, integ.OrganizerID)
}

func (c *WebexClient) recordDaily(ctx context.Context, integ *integration.Integration) {
	if err := c.rest.deps.Limiter.RecordDaily(ctx, integration.ProviderWebex, integ.OrganizerID); err != nil {
		log.Printf("Warning: failed to record webex daily API call: %v", err)
	}
}

func (c *WebexClient) TestConnection(ctx context.Context, integ *integration.Integration) ConnectionStatus {
	status := ConnectionStatus{Provider: integration.ProviderWebex, Type: integ.Type}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodGet,
		url:         c.baseURL + "/people/me",
		provider:    integration.ProviderWebex,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
	})
	if err != nil {
		status.Message = err.Error()
	} else {
		status.Healthy = true
		status.Message = "Successfully connected to Webex"
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogConnectionTest,
		IntegrationType: string(integration.ProviderWebex),
		Message:         status.Message,
		Success:         status.Healthy,
	})
	return status
}

// GetBusyTimes is not part of the Webex surface.
func (c *WebexClient) GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error) {
	return nil, fmt.Errorf("webex does not expose busy times")
}

func (c *WebexClient) Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error) {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return nil, err
	}

	resp, err := c.rest.do(ctx, &request{
		method:      http.MethodPost,
		url:         c.baseURL + "/meetings",
		body:        c.meetingBody(integ, booking),
		provider:    integration.ProviderWebex,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusOK},
	})
	c.recordDaily(ctx, integ)
	if err != nil {
		c.rest.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogVideoLinkCreated,
			IntegrationType: string(integration.ProviderWebex),
			Message:         fmt.Sprintf("Failed to create meeting: %v", err),
			Success:         false,
			BookingID:       booking.ID,
			Details:         map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	var created struct {
		ID            string `json:"id"`
		WebLink       string `json:"webLink"`
		Password      string `json:"password"`
		SIPAddress    string `json:"sipAddress"`
		MeetingNumber string `json:"meetingNumber"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created meeting: %w", err)
	}

	details := &integration.MeetingDetails{
		ExternalMeetingID: created.ID,
		MeetingID:         created.ID,
		MeetingLink:       created.WebLink,
		MeetingPassword:   created.Password,
		SIPAddress:        created.SIPAddress,
		MeetingNumber:     created.MeetingNumber,
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoLinkCreated,
		IntegrationType: string(integration.ProviderWebex),
		Message:         fmt.Sprintf("Created Webex meeting for booking %s", booking.ID),
		Success:         true,
		BookingID:       booking.ID,
		Details:         map[string]string{"external_meeting_id": created.ID},
	})
	return details, nil
}

func (c *WebexClient) Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return err
	}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodPut,
		url:         c.baseURL + "/meetings/" + externalID,
		body:        c.meetingBody(integ, booking),
		provider:    integration.ProviderWebex,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusOK},
	})
	c.recordDaily(ctx, integ)

	success := err == nil
	message := fmt.Sprintf("Updated Webex meeting %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to update meeting %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoMeetingUpdated,
		IntegrationType: string(integration.ProviderWebex),
		Message:         message,
		Success:         success,
		BookingID:       booking.ID,
	})
	return err
}

func (c *WebexClient) Delete(ctx context.Context, integ *integration.Integration, externalID string) error {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return err
	}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodDelete,
		url:         c.baseURL + "/meetings/" + externalID,
		provider:    integration.ProviderWebex,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusOK, http.StatusNoContent},
		notFoundOK:  true,
	})
	c.recordDaily(ctx, integ)

	success := err == nil
	message := fmt.Sprintf("Deleted Webex meeting %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to delete meeting %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoMeetingDeleted,
		IntegrationType: string(integration.ProviderWebex),
		Message:         message,
		Success:         success,
	})
	return err
}
