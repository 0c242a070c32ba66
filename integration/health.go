package integration

import "time"

// Health states.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthDegraded  = "degraded"
)

// Calendar integrations tolerate this many consecutive sync failures before
// being reported unhealthy.
const maxHealthySyncErrors = 3

// CalendarHealth is the per-integration slice of a health report for a
// calendar integration.
type CalendarHealth struct {
	Provider     Provider `json:"provider"`
	IsActive     bool     `json:"is_active"`
	SyncEnabled  bool     `json:"sync_enabled"`
	TokenExpired bool     `json:"token_expired"`
	LastSync     string   `json:"last_sync,omitempty"`
	SyncErrors   int      `json:"sync_errors"`
	Health       string   `json:"health"`
}

// VideoHealth is the per-integration slice of a health report for a video
// integration.
type VideoHealth struct {
	Provider          Provider `json:"provider"`
	IsActive          bool     `json:"is_active"`
	AutoGenerateLinks bool     `json:"auto_generate_links"`
	TokenExpired      bool     `json:"token_expired"`
	Health            string   `json:"health"`
}

// HealthReport rolls up every integration of one organizer. OverallHealth is
// degraded as soon as any single integration is unhealthy.
type HealthReport struct {
	OrganizerID          string           `json:"organizer_id"`
	OrganizerEmail       string           `json:"organizer_email,omitempty"`
	Timestamp            string           `json:"timestamp"`
	CalendarIntegrations []CalendarHealth `json:"calendar_integrations"`
	VideoIntegrations    []VideoHealth    `json:"video_integrations"`
	OverallHealth        string           `json:"overall_health"`
}

// CalendarIntegrationHealth evaluates one calendar integration: healthy iff
// active, token valid and fewer than three consecutive sync errors.
func CalendarIntegrationHealth(i *Integration) string {
	if i.IsActive && !i.TokenExpired() && i.SyncErrors < maxHealthySyncErrors {
		return HealthHealthy
	}
	return HealthUnhealthy
}

// VideoIntegrationHealth evaluates one video integration: healthy iff active
// with a valid token.
func VideoIntegrationHealth(i *Integration) string {
	if i.IsActive && !i.TokenExpired() {
		return HealthHealthy
	}
	return HealthUnhealthy
}

// BuildHealthReport aggregates health for all integrations of an organizer.
// Pure read; nothing is mutated.
func BuildHealthReport(organizerID string, integrations []*Integration) *HealthReport {
	report := &HealthReport{
		OrganizerID:          organizerID,
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
		CalendarIntegrations: []CalendarHealth{},
		VideoIntegrations:    []VideoHealth{},
		OverallHealth:        HealthHealthy,
	}

	for _, integ := range integrations {
		if report.OrganizerEmail == "" {
			report.OrganizerEmail = integ.OrganizerEmail
		}
		switch integ.Type {
		case TypeCalendar:
			status := CalendarHealth{
				Provider:     integ.Provider,
				IsActive:     integ.IsActive,
				SyncEnabled:  integ.SyncEnabled,
				TokenExpired: integ.TokenExpired(),
				SyncErrors:   integ.SyncErrors,
				Health:       CalendarIntegrationHealth(integ),
			}
			if !integ.LastSyncAt.IsZero() {
				status.LastSync = integ.LastSyncAt.UTC().Format(time.RFC3339)
			}
			report.CalendarIntegrations = append(report.CalendarIntegrations, status)
			if status.Health == HealthUnhealthy {
				report.OverallHealth = HealthDegraded
			}
		case TypeVideo:
			status := VideoHealth{
				Provider:          integ.Provider,
				IsActive:          integ.IsActive,
				AutoGenerateLinks: integ.AutoGenerateLinks,
				TokenExpired:      integ.TokenExpired(),
				Health:            VideoIntegrationHealth(integ),
			}
			report.VideoIntegrations = append(report.VideoIntegrations, status)
			if status.Health == HealthUnhealthy {
				report.OverallHealth = HealthDegraded
			}
		}
	}
	return report
}
