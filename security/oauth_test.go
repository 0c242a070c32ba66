package security

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synchub/audit"
	"synchub/integration"
)

func TestProviderScopes(t *testing.T) {
	google := ProviderScopes(integration.ProviderGoogle, integration.TypeCalendar)
	assert.Contains(t, google, "https://www.googleapis.com/auth/calendar.events")

	outlookCalendar := ProviderScopes(integration.ProviderOutlook, integration.TypeCalendar)
	assert.NotContains(t, outlookCalendar, "https://graph.microsoft.com/onlineMeetings.readwrite")
	outlookVideo := ProviderScopes(integration.ProviderOutlook, integration.TypeVideo)
	assert.Contains(t, outlookVideo, "https://graph.microsoft.com/onlineMeetings.readwrite")
	assert.Contains(t, outlookVideo, "offline_access")

	assert.Equal(t, []string{"meeting:write", "meeting:read"}, ProviderScopes(integration.ProviderZoom, integration.TypeVideo))
	assert.Contains(t, ProviderScopes(integration.ProviderWebex, integration.TypeVideo), "spark:meetings_write")
	assert.Nil(t, ProviderScopes("unknown", integration.TypeCalendar))
}

func newOAuthFixture(t *testing.T, creds map[integration.Provider]ProviderCredentials) (*OAuthService, *redis.Client, *integration.Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := integration.NewStore(client)
	tokens := NewTokenManager(client, store, audit.NewLogger(client), creds)
	return NewOAuthService(client, store, tokens), client, store
}

func TestAuthorizationURLStoresState(t *testing.T) {
	svc, client, _ := newOAuthFixture(t, map[integration.Provider]ProviderCredentials{
		integration.ProviderGoogle: {
			ClientID:    "client-id",
			RedirectURL: "https://app.example.com/callback",
		},
	})

	authURL, token, err := svc.AuthorizationURL(context.Background(), "org-1", integration.ProviderGoogle, integration.TypeCalendar)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, fmt.Sprintf("google:calendar:%s", token), q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Contains(t, q.Get("scope"), "calendar.events")

	stored, err := client.Get(context.Background(), stateKey("org-1", integration.ProviderGoogle, integration.TypeCalendar)).Result()
	require.NoError(t, err)
	assert.Equal(t, token, stored)
}

func TestCompleteCallbackPersistsIntegration(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "auth-code", r.Form.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		if !strings.HasSuffix(r.URL.Path, "/google") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"uid-1","email":"org@example.com","name":"Org Anizer"}`))
	}))
	defer userInfoServer.Close()

	svc, client, store := newOAuthFixture(t, map[integration.Provider]ProviderCredentials{
		integration.ProviderGoogle: {
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			TokenURL:     tokenServer.URL,
		},
	})
	svc.userInfoBase = userInfoServer.URL

	_, token, err := svc.AuthorizationURL(context.Background(), "org-1", integration.ProviderGoogle, integration.TypeCalendar)
	require.NoError(t, err)

	state := fmt.Sprintf("google:calendar:%s", token)
	integ, created, err := svc.CompleteCallback(context.Background(), "org-1", integration.ProviderGoogle, integration.TypeCalendar, "auth-code", state)
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, "at-1", integ.AccessToken)
	assert.Equal(t, "rt-1", integ.RefreshToken)
	assert.Equal(t, "uid-1", integ.ProviderUserID)
	assert.Equal(t, "org@example.com", integ.ProviderEmail)
	assert.True(t, integ.IsActive)
	assert.True(t, integ.SyncEnabled)
	assert.False(t, integ.AutoGenerateLinks)

	stored, err := store.Get(context.Background(), "org-1", integration.TypeCalendar, integration.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "at-1", stored.AccessToken)

	// The state is single use.
	err = client.Get(context.Background(), stateKey("org-1", integration.ProviderGoogle, integration.TypeCalendar)).Err()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompleteCallbackRejectsBadState(t *testing.T) {
	svc, _, _ := newOAuthFixture(t, map[integration.Provider]ProviderCredentials{
		integration.ProviderZoom: {ClientID: "client-id"},
	})

	_, _, err := svc.CompleteCallback(context.Background(), "org-1", integration.ProviderZoom, integration.TypeVideo, "code", "zoom:video:whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found or expired")

	_, _, err = svc.AuthorizationURL(context.Background(), "org-1", integration.ProviderZoom, integration.TypeVideo)
	require.NoError(t, err)

	_, _, err = svc.CompleteCallback(context.Background(), "org-1", integration.ProviderZoom, integration.TypeVideo, "code", "zoom:video:forged-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}
