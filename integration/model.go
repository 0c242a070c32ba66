package integration

import (
	"time"
)

// Provider identifies an external calendar or video-conferencing service.
type Provider string

const (
	ProviderGoogle         Provider = "google"
	ProviderOutlook        Provider = "outlook"
	ProviderZoom           Provider = "zoom"
	ProviderApple          Provider = "apple"
	ProviderMicrosoftTeams Provider = "microsoft_teams"
	ProviderWebex          Provider = "webex"
)

// Providers lists every supported provider.
var Providers = []Provider{
	ProviderGoogle,
	ProviderOutlook,
	ProviderZoom,
	ProviderApple,
	ProviderMicrosoftTeams,
	ProviderWebex,
}

// ParseProvider converts a wire string into a Provider.
func ParseProvider(s string) (Provider, bool) {
	for _, p := range Providers {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// Type distinguishes calendar integrations from video-conference integrations.
type Type string

const (
	TypeCalendar Type = "calendar"
	TypeVideo    Type = "video"
)

// ParseType converts a wire string into a Type.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeCalendar, TypeVideo:
		return Type(s), true
	}
	return "", false
}

// Event status values on a NormalizedEvent.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Transparency values on a NormalizedEvent. Opaque events consume
// availability; transparent events are free time.
const (
	TransparencyOpaque      = "opaque"
	TransparencyTransparent = "transparent"
)

// NormalizedEvent is the canonical, provider-independent representation of a
// calendar event. Every provider parser produces this shape. A sync pass
// produces a fresh set that fully replaces the previous one for the queried
// integration and date range.
type NormalizedEvent struct {
	ExternalID    string    `json:"external_id"`
	Summary       string    `json:"summary"`
	StartDateTime time.Time `json:"start_datetime"`
	EndDateTime   time.Time `json:"end_datetime"`
	Updated       time.Time `json:"updated"`
	Status        string    `json:"status"`
	Transparency  string    `json:"transparency"`
}

// Busy reports whether the event blocks the organizer's availability.
// Cancelled or transparent events never do.
func (e *NormalizedEvent) Busy() bool {
	return e.Status != StatusCancelled && e.Transparency != TransparencyTransparent
}

// Integration links one organizer to one provider. At most one active
// integration exists per (organizer, provider, type); OAuth callbacks upsert
// on that key. Deactivation is a soft delete so historical logs keep a valid
// reference.
type Integration struct {
	ID                string    `json:"id"`
	OrganizerID       string    `json:"organizer_id"`
	OrganizerEmail    string    `json:"organizer_email,omitempty"`
	Provider          Provider  `json:"provider"`
	Type              Type      `json:"type"`
	AccessToken       string    `json:"access_token"`
	RefreshToken      string    `json:"refresh_token"`
	TokenExpiresAt    time.Time `json:"token_expires_at"`
	ProviderUserID    string    `json:"provider_user_id"`
	ProviderEmail     string    `json:"provider_email"`
	CalendarID        string    `json:"calendar_id,omitempty"`
	Timezone          string    `json:"timezone,omitempty"`
	IsActive          bool      `json:"is_active"`
	SyncEnabled       bool      `json:"sync_enabled"`
	AutoGenerateLinks bool      `json:"auto_generate_links"`
	SyncErrors        int       `json:"sync_errors"`
	LastSyncAt        time.Time `json:"last_sync_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TokenExpired reports whether the stored access token has passed its expiry.
// A zero expiry means the credential never expires (Apple app-specific
// credentials).
func (i *Integration) TokenExpired() bool {
	if i.TokenExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(i.TokenExpiresAt)
}

// Location resolves the organizer's configured time zone, defaulting to UTC.
func (i *Integration) Location() *time.Location {
	if i.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(i.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Booking carries the scheduling details provider clients need to create,
// update or delete an external meeting or calendar event. It mirrors the
// booking record owned by the scheduling subsystem.
type Booking struct {
	ID              string    `json:"id"`
	EventTypeName   string    `json:"event_type_name"`
	InviteeName     string    `json:"invitee_name"`
	InviteeEmail    string    `json:"invitee_email"`
	OrganizerName   string    `json:"organizer_name"`
	OrganizerEmail  string    `json:"organizer_email"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	CreatedAt       time.Time `json:"created_at"`
	MeetingLink     string    `json:"meeting_link,omitempty"`
	LocationDetails string    `json:"location_details,omitempty"`
	Timezone        string    `json:"timezone,omitempty"`
}

// Subject is the title used for externally created events and meetings.
func (b *Booking) Subject() string {
	return b.EventTypeName + " with " + b.InviteeName
}

// MeetingDetails is the provider's answer to a create call: the external
// reference plus whatever join metadata the provider returned.
type MeetingDetails struct {
	ExternalMeetingID string `json:"external_meeting_id"`
	MeetingLink       string `json:"meeting_link,omitempty"`
	MeetingID         string `json:"meeting_id,omitempty"`
	MeetingPassword   string `json:"meeting_password,omitempty"`
	DialInNumbers     string `json:"dial_in_numbers,omitempty"`
	ConferenceID      string `json:"conference_id,omitempty"`
	SIPAddress        string `json:"sip_address,omitempty"`
	MeetingNumber     string `json:"meeting_number,omitempty"`
	HostKey           string `json:"host_key,omitempty"`
}

// WebhookIntegration is an organizer-configured outbound webhook endpoint.
// Inbound deliveries addressed to it are validated against SecretKey.
type WebhookIntegration struct {
	ID          string    `json:"id"`
	OrganizerID string    `json:"organizer_id"`
	Name        string    `json:"name"`
	WebhookURL  string    `json:"webhook_url"`
	SecretKey   string    `json:"secret_key,omitempty"`
	Events      []string  `json:"events,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Audit log types. Every interaction with an external provider records one of
// these; the set is closed so log consumers can rely on it.
const (
	LogCalendarSync         = "calendar_sync"
	LogCalendarEventCreated = "calendar_event_created"
	LogCalendarEventUpdated = "calendar_event_updated"
	LogCalendarEventDeleted = "calendar_event_deleted"
	LogVideoLinkCreated     = "video_link_created"
	LogVideoMeetingUpdated  = "video_meeting_updated"
	LogVideoMeetingDeleted  = "video_meeting_deleted"
	LogWebhookReceived      = "webhook_received"
	LogWebhookSent          = "webhook_sent"
	LogTokenRefresh         = "token_refresh"
	LogConnectionTest       = "connection_test"
)

// LogEntry is one immutable audit record. Entries are append-only and never
// updated after creation.
type LogEntry struct {
	OrganizerID     string            `json:"organizer_id"`
	LogType         string            `json:"log_type"`
	IntegrationType string            `json:"integration_type"`
	Message         string            `json:"message"`
	Success         bool              `json:"success"`
	BookingID       string            `json:"booking_id,omitempty"`
	Details         map[string]string `json:"details,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
