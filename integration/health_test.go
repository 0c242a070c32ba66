package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarIntegrationHealth(t *testing.T) {
	valid := time.Now().Add(time.Hour)

	healthy := &Integration{IsActive: true, TokenExpiresAt: valid, SyncErrors: 2}
	assert.Equal(t, HealthHealthy, CalendarIntegrationHealth(healthy))

	tooManyErrors := &Integration{IsActive: true, TokenExpiresAt: valid, SyncErrors: 3}
	assert.Equal(t, HealthUnhealthy, CalendarIntegrationHealth(tooManyErrors))

	expired := &Integration{IsActive: true, TokenExpiresAt: time.Now().Add(-time.Hour)}
	assert.Equal(t, HealthUnhealthy, CalendarIntegrationHealth(expired))

	inactive := &Integration{IsActive: false, TokenExpiresAt: valid}
	assert.Equal(t, HealthUnhealthy, CalendarIntegrationHealth(inactive))
}

func TestVideoIntegrationHealth(t *testing.T) {
	valid := time.Now().Add(time.Hour)

	assert.Equal(t, HealthHealthy, VideoIntegrationHealth(&Integration{IsActive: true, TokenExpiresAt: valid}))
	assert.Equal(t, HealthUnhealthy, VideoIntegrationHealth(&Integration{IsActive: false, TokenExpiresAt: valid}))
}

func TestBuildHealthReportDegradesOnAnyUnhealthy(t *testing.T) {
	valid := time.Now().Add(time.Hour)
	lastSync := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	integrations := []*Integration{
		{
			OrganizerID:    "org-1",
			OrganizerEmail: "org@example.com",
			Provider:       ProviderGoogle,
			Type:           TypeCalendar,
			IsActive:       true,
			SyncEnabled:    true,
			TokenExpiresAt: valid,
			LastSyncAt:     lastSync,
		},
		{
			OrganizerID:    "org-1",
			Provider:       ProviderZoom,
			Type:           TypeVideo,
			IsActive:       true,
			TokenExpiresAt: time.Now().Add(-time.Hour),
		},
	}

	report := BuildHealthReport("org-1", integrations)

	assert.Equal(t, "org-1", report.OrganizerID)
	assert.Equal(t, "org@example.com", report.OrganizerEmail)
	assert.Equal(t, HealthDegraded, report.OverallHealth)

	assert.Len(t, report.CalendarIntegrations, 1)
	assert.Equal(t, HealthHealthy, report.CalendarIntegrations[0].Health)
	assert.Equal(t, "2026-08-28T12:00:00Z", report.CalendarIntegrations[0].LastSync)

	assert.Len(t, report.VideoIntegrations, 1)
	assert.Equal(t, HealthUnhealthy, report.VideoIntegrations[0].Health)
	assert.True(t, report.VideoIntegrations[0].TokenExpired)
}

func TestBuildHealthReportEmpty(t *testing.T) {
	report := BuildHealthReport("org-1", nil)

	assert.Equal(t, HealthHealthy, report.OverallHealth)
	assert.Empty(t, report.CalendarIntegrations)
	assert.Empty(t, report.VideoIntegrations)
}
