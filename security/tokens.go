package security

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"synchub/audit"
	"synchub/integration"
)

// ProviderCredentials holds one provider's OAuth client configuration.
// AuthURL/TokenURL are normally empty and exist so tests can point the
// manager at a local server.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TenantID     string
	AuthURL      string
	TokenURL     string
}

const (
	refreshLockTTL  = 30 * time.Second
	refreshWaitStep = 250 * time.Millisecond
	refreshWaitMax  = 20
)

// TokenManager owns the credential lifecycle: it decides when an
// integration's token is expired, runs the provider-specific refresh, and
// persists renewed credentials. Refreshes for one integration are serialized
// through a short-lived Redis lease so concurrent syncs never race two
// refreshes against the same refresh token.
type TokenManager struct {
	client *redis.Client
	store  *integration.Store
	audit  *audit.Logger
	creds  map[integration.Provider]ProviderCredentials
}

// NewTokenManager creates a token manager.
func NewTokenManager(client *redis.Client, store *integration.Store, auditLogger *audit.Logger, creds map[integration.Provider]ProviderCredentials) *TokenManager {
	if creds == nil {
		creds = map[integration.Provider]ProviderCredentials{}
	}
	return &TokenManager{client: client, store: store, audit: auditLogger, creds: creds}
}

// Credentials returns the configured OAuth client for a provider.
func (m *TokenManager) Credentials(p integration.Provider) (ProviderCredentials, error) {
	creds, ok := m.creds[p]
	if !ok || creds.ClientID == "" {
		return ProviderCredentials{}, fmt.Errorf("OAuth credentials not configured for provider %s", p)
	}
	return creds, nil
}

// endpoint builds the provider's OAuth endpoint. Zoom transports the client
// pair as Basic auth; the rest put the client secret in the request body.
func (m *TokenManager) endpoint(p integration.Provider) oauth2.Endpoint {
	creds := m.creds[p]
	var ep oauth2.Endpoint
	switch p {
	case integration.ProviderGoogle:
		ep = google.Endpoint
	case integration.ProviderOutlook, integration.ProviderMicrosoftTeams:
		tenant := creds.TenantID
		if tenant == "" {
			tenant = "common"
		}
		ep = oauth2.Endpoint{
			AuthURL:   fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/authorize", tenant),
			TokenURL:  fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenant),
			AuthStyle: oauth2.AuthStyleInParams,
		}
	case integration.ProviderZoom:
		ep = oauth2.Endpoint{
			AuthURL:   "https://zoom.us/oauth/authorize",
			TokenURL:  "https://zoom.us/oauth/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		}
	case integration.ProviderApple:
		ep = oauth2.Endpoint{
			AuthURL:   "https://appleid.apple.com/auth/authorize",
			TokenURL:  "https://appleid.apple.com/auth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	case integration.ProviderWebex:
		ep = oauth2.Endpoint{
			AuthURL:   "https://webexapis.com/v1/authorize",
			TokenURL:  "https://webexapis.com/v1/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
	if creds.AuthURL != "" {
		ep.AuthURL = creds.AuthURL
	}
	if creds.TokenURL != "" {
		ep.TokenURL = creds.TokenURL
	}
	return ep
}

// OAuthConfig assembles the oauth2 configuration for one provider and
// integration type.
func (m *TokenManager) OAuthConfig(p integration.Provider, typ integration.Type) (*oauth2.Config, error) {
	creds, err := m.Credentials(p)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL,
		Scopes:       ProviderScopes(p, typ),
		Endpoint:     m.endpoint(p),
	}, nil
}

func refreshLockKey(integ *integration.Integration) string {
	return fmt.Sprintf("refresh_lock:%s:%s:%s", integ.Provider, integ.Type, integ.OrganizerID)
}

// EnsureValid makes sure the integration carries a usable access token,
// refreshing it when expired. Apple app-specific credentials never expire, so
// refresh is a guaranteed no-op there. On refresh failure the stored
// integration is left untouched and the error is reported, not retried.
func (m *TokenManager) EnsureValid(ctx context.Context, integ *integration.Integration) error {
	if integ.Provider == integration.ProviderApple {
		return nil
	}
	if !integ.TokenExpired() {
		return nil
	}
	if integ.RefreshToken == "" {
		return fmt.Errorf("%s: %w", integ.Provider, integration.ErrNoRefreshToken)
	}

	lockKey := refreshLockKey(integ)
	lockVal := uuid.New().String()
	acquired, err := m.client.SetNX(ctx, lockKey, lockVal, refreshLockTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire refresh lock: %w", err)
	}
	if !acquired {
		return m.awaitRefresh(ctx, integ)
	}
	defer m.client.Del(ctx, lockKey)

	return m.refresh(ctx, integ)
}

func (m *TokenManager) refresh(ctx context.Context, integ *integration.Integration) error {
	cfg, err := m.OAuthConfig(integ.Provider, integ.Type)
	if err != nil {
		return err
	}

	// Seed the source with an already-expired token so it performs a real
	// refresh instead of returning the cached access token.
	seed := &oauth2.Token{
		AccessToken:  integ.AccessToken,
		RefreshToken: integ.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	tok, err := cfg.TokenSource(ctx, seed).Token()
	if err != nil {
		m.audit.Log(ctx, integration.LogEntry{
			OrganizerID:     integ.OrganizerID,
			LogType:         integration.LogTokenRefresh,
			IntegrationType: string(integ.Provider),
			Message:         fmt.Sprintf("Token refresh failed for %s: %v", integ.Provider, err),
			Success:         false,
			Details:         map[string]string{"error": err.Error()},
		})
		return fmt.Errorf("%w for %s: %v", integration.ErrRefreshFailed, integ.Provider, err)
	}

	// Providers may omit the refresh token on renewal; that means unchanged.
	refreshToken := ""
	if tok.RefreshToken != integ.RefreshToken {
		refreshToken = tok.RefreshToken
	}
	if err := m.store.SaveTokens(ctx, integ, tok.AccessToken, refreshToken, tok.Expiry); err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Printf("Refreshed %s token for organizer %s", integ.Provider, integ.OrganizerID)
	m.audit.Log(ctx, integration.LogEntry{
		OrganizerID:     integ.OrganizerID,
		LogType:         integration.LogTokenRefresh,
		IntegrationType: string(integ.Provider),
		Message:         fmt.Sprintf("Refreshed %s token", integ.Provider),
		Success:         true,
		Details:         map[string]string{"expires_at": tok.Expiry.UTC().Format(time.RFC3339)},
	})
	return nil
}

// awaitRefresh is taken by the loser of the lock race: another sync is
// already refreshing this integration, so wait for it to land and adopt the
// stored credentials instead of issuing a second refresh.
func (m *TokenManager) awaitRefresh(ctx context.Context, integ *integration.Integration) error {
	for i := 0; i < refreshWaitMax; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(refreshWaitStep):
		}

		stored, err := m.store.Get(ctx, integ.OrganizerID, integ.Type, integ.Provider)
		if err != nil {
			return err
		}
		if !stored.TokenExpired() {
			integ.AccessToken = stored.AccessToken
			integ.RefreshToken = stored.RefreshToken
			integ.TokenExpiresAt = stored.TokenExpiresAt
			return nil
		}
	}
	return fmt.Errorf("%w for %s: concurrent refresh did not complete", integration.ErrRefreshFailed, integ.Provider)
}
