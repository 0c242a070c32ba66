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

// TeamsClient provisions Microsoft Teams online meetings through the Graph
// API. Calendar and Teams share Graph credentials; only the resource differs.
type TeamsClient struct {
	rest *restClient

	baseURL string
}

// NewTeamsClient creates the Teams meeting client.
func NewTeamsClient(rest *restClient) *TeamsClient {
	return &TeamsClient{rest: rest, baseURL: graphBaseURL}
}

func (c *TeamsClient) Provider() integration.Provider {
	return integration.ProviderMicrosoftTeams
}

type teamsMeetingBody struct {
	Subject      string             `json:"subject"`
	StartTime    string             `json:"startDateTime"`
	EndTime      string             `json:"endDateTime"`
	Participants *teamsParticipants `json:"participants,omitempty"`
}

type teamsParticipants struct {
	Organizer teamsParticipant   `json:"organizer"`
	Attendees []teamsParticipant `json:"attendees"`
}

type teamsParticipant struct {
	Identity teamsIdentitySet `json:"identity"`
	Role     string           `json:"role,omitempty"`
}

type teamsIdentitySet struct {
	User teamsUserIdentity `json:"user"`
}

type teamsUserIdentity struct {
	ID                string `json:"id,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

func (c *TeamsClient) meetingBody(integ *integration.Integration, booking *integration.Booking) *teamsMeetingBody {
	return &teamsMeetingBody{
		Subject:   booking.Subject(),
		StartTime: booking.StartTime.UTC().Format(time.RFC3339),
		EndTime:   booking.EndTime.UTC().Format(time.RFC3339),
		Participants: &teamsParticipants{
			Organizer: teamsParticipant{
				Identity: teamsIdentitySet{User: teamsUserIdentity{
					ID:                integ.ProviderUserID,
					DisplayName:       booking.OrganizerName,
					UserPrincipalName: booking.OrganizerEmail,
				}},
			},
			Attendees: []teamsParticipant{
				{
					Identity: teamsIdentitySet{User: teamsUserIdentity{
						DisplayName:       booking.InviteeName,
						UserPrincipalName: booking.InviteeEmail,
					}},
					Role: "attendee",
				},
			},
		},
	}
}

// dailyGuard enforces the daily video budget around one meeting mutation.
func (c *TeamsClient) dailyGuard(ctx context.Context, integ *integration.Integration) error {
	return c.rest.deps.Limiter.CheckDaily(ctx, integration.ProviderMicrosoftTeams, integ.OrganizerID)
}

func (c *TeamsClient) recordDaily(ctx context.Context, integ *integration.Integration) {
	if err := c.rest.deps.Limiter.RecordDaily(ctx, integration.ProviderMicrosoftTeams, integ.OrganizerID); err != nil {
		log.Printf("Warning: failed to record microsoft_teams daily API call: %v", err)
	}
}

func (c *TeamsClient) TestConnection(ctx context.Context, integ *integration.Integration) ConnectionStatus {
	status := ConnectionStatus{Provider: integration.ProviderMicrosoftTeams, Type: integ.Type}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodGet,
		url:         c.baseURL + "/me",
		provider:    integration.ProviderMicrosoftTeams,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
	})
	if err != nil {
		status.Message = err.Error()
	} else {
		status.Healthy = true
		status.Message = "Successfully connected to Microsoft Teams"
	}

	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogConnectionTest,
		IntegrationType: string(integration.ProviderMicrosoftTeams),
		Message:         status.Message,
		Success:         status.Healthy,
	})
	return status
}

// GetBusyTimes is not part of the Teams surface; busy times come from the
// calendar integration.
func (c *TeamsClient) GetBusyTimes(ctx context.Context, integ *integration.Integration, start, end time.Time) ([]integration.NormalizedEvent, error) {
	return nil, fmt.Errorf("microsoft_teams does not expose busy times")
}

func (c *TeamsClient) Create(ctx context.Context, integ *integration.Integration, booking *integration.Booking) (*integration.MeetingDetails, error) {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return nil, err
	}

	resp, err := c.rest.do(ctx, &request{
		method:      http.MethodPost,
		url:         c.baseURL + "/me/onlineMeetings",
		body:        c.meetingBody(integ, booking),
		provider:    integration.ProviderMicrosoftTeams,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusCreated},
	})
	c.recordDaily(ctx, integ)
	if err != nil {
		c.rest.deps.Audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogVideoLinkCreated,
			IntegrationType: string(integration.ProviderMicrosoftTeams),
			Message:         fmt.Sprintf("Failed to create meeting: %v", err),
			Success:         false,
			BookingID:       booking.ID,
			Details:         map[string]string{"error": err.Error()},
		})
		return nil, err
	}

	var created struct {
		ID                string `json:"id"`
		JoinWebURL        string `json:"joinWebUrl"`
		AudioConferencing struct {
			DialinURL    string `json:"dialinUrl"`
			ConferenceID string `json:"conferenceId"`
		} `json:"audioConferencing"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return nil, fmt.Errorf("failed to decode created meeting: %w", err)
	}

	details := &integration.MeetingDetails{
		ExternalMeetingID: created.ID,
		MeetingID:         created.ID,
		MeetingLink:       created.JoinWebURL,
		DialInNumbers:     created.AudioConferencing.DialinURL,
		ConferenceID:      created.AudioConferencing.ConferenceID,
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoLinkCreated,
		IntegrationType: string(integration.ProviderMicrosoftTeams),
		Message:         fmt.Sprintf("Created Microsoft Teams meeting for booking %s", booking.ID),
		Success:         true,
		BookingID:       booking.ID,
		Details:         map[string]string{"external_meeting_id": created.ID},
	})
	return details, nil
}

func (c *TeamsClient) Update(ctx context.Context, integ *integration.Integration, booking *integration.Booking, externalID string) error {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return err
	}

	body := &teamsMeetingBody{
		Subject:   booking.Subject(),
		StartTime: booking.StartTime.UTC().Format(time.RFC3339),
		EndTime:   booking.EndTime.UTC().Format(time.RFC3339),
	}
	_, err := c.rest.do(ctx, &request{
		method:      http.MethodPatch,
		url:         c.baseURL + "/me/onlineMeetings/" + externalID,
		body:        body,
		provider:    integration.ProviderMicrosoftTeams,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
	})
	c.recordDaily(ctx, integ)

	success := err == nil
	message := fmt.Sprintf("Updated Microsoft Teams meeting %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to update meeting %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoMeetingUpdated,
		IntegrationType: string(integration.ProviderMicrosoftTeams),
		Message:         message,
		Success:         success,
		BookingID:       booking.ID,
	})
	return err
}

func (c *TeamsClient) Delete(ctx context.Context, integ *integration.Integration, externalID string) error {
	if err := c.dailyGuard(ctx, integ); err != nil {
		return err
	}

	_, err := c.rest.do(ctx, &request{
		method:      http.MethodDelete,
		url:         c.baseURL + "/me/onlineMeetings/" + externalID,
		provider:    integration.ProviderMicrosoftTeams,
		organizerID: integ.OrganizerID,
		bearerToken: integ.AccessToken,
		okStatuses:  []int{http.StatusOK, http.StatusNoContent},
		notFoundOK:  true,
	})
	c.recordDaily(ctx, integ)

	success := err == nil
	message := fmt.Sprintf("Deleted Microsoft Teams meeting %s", externalID)
	if err != nil {
		message = fmt.Sprintf("Failed to delete meeting %s: %v", externalID, err)
	}
	c.rest.deps.Audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogVideoMeetingDeleted,
		IntegrationType: string(integration.ProviderMicrosoftTeams),
		Message:         message,
		Success:         success,
	})
	return err
}
