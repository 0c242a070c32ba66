package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"synchub/integration"
	"synchub/security"
)

// Helper function to get environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(raw string, def time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return def
}

func parseIntOrDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	return def
}

// loadProviderCredentials reads each provider's OAuth client configuration
// from the environment. Providers without credentials stay unconfigured;
// their OAuth routes return an error instead of failing startup.
func loadProviderCredentials() map[integration.Provider]security.ProviderCredentials {
	creds := map[integration.Provider]security.ProviderCredentials{}

	if id := os.Getenv("GOOGLE_OAUTH_CLIENT_ID"); id != "" {
		creds[integration.ProviderGoogle] = security.ProviderCredentials{
			ClientID:     id,
			ClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_OAUTH_REDIRECT_URI"),
		}
	}

	// Outlook and Teams share one Microsoft app registration.
	if id := os.Getenv("MICROSOFT_CLIENT_ID"); id != "" {
		ms := security.ProviderCredentials{
			ClientID:     id,
			ClientSecret: os.Getenv("MICROSOFT_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("MICROSOFT_REDIRECT_URI"),
			TenantID:     os.Getenv("MICROSOFT_TENANT_ID"),
		}
		creds[integration.ProviderOutlook] = ms
		creds[integration.ProviderMicrosoftTeams] = ms
	}

	if id := os.Getenv("ZOOM_CLIENT_ID"); id != "" {
		creds[integration.ProviderZoom] = security.ProviderCredentials{
			ClientID:     id,
			ClientSecret: os.Getenv("ZOOM_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("ZOOM_REDIRECT_URI"),
		}
	}

	if id := os.Getenv("APPLE_CLIENT_ID"); id != "" {
		creds[integration.ProviderApple] = security.ProviderCredentials{
			ClientID:     id,
			ClientSecret: os.Getenv("APPLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("APPLE_REDIRECT_URI"),
		}
	}

	if id := os.Getenv("WEBEX_CLIENT_ID"); id != "" {
		creds[integration.ProviderWebex] = security.ProviderCredentials{
			ClientID:     id,
			ClientSecret: os.Getenv("WEBEX_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("WEBEX_REDIRECT_URI"),
		}
	}

	return creds
}

// loadRateLimitOverrides reads per-provider per-minute budget overrides.
func loadRateLimitOverrides() map[integration.Provider]int {
	overrides := map[integration.Provider]int{}
	vars := map[integration.Provider]string{
		integration.ProviderGoogle:         "INTEGRATION_RATE_LIMIT_GOOGLE",
		integration.ProviderOutlook:        "INTEGRATION_RATE_LIMIT_MICROSOFT",
		integration.ProviderMicrosoftTeams: "INTEGRATION_RATE_LIMIT_MICROSOFT",
		integration.ProviderZoom:           "INTEGRATION_RATE_LIMIT_ZOOM",
		integration.ProviderApple:          "INTEGRATION_RATE_LIMIT_APPLE",
		integration.ProviderWebex:          "INTEGRATION_RATE_LIMIT_WEBEX",
	}
	for p, key := range vars {
		if n := parseIntOrDefault(os.Getenv(key), 0); n > 0 {
			overrides[p] = n
		}
	}
	return overrides
}
