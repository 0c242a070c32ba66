package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"synchub/integration"
)

const stateTTL = 10 * time.Minute

// ProviderScopes returns the OAuth scopes required for one provider and
// integration type. Unknown combinations return nil, which surfaces as an
// empty scope parameter rather than an error; providers reject those
// themselves.
func ProviderScopes(p integration.Provider, typ integration.Type) []string {
	switch p {
	case integration.ProviderGoogle:
		return []string{
			"https://www.googleapis.com/auth/calendar",
			"https://www.googleapis.com/auth/calendar.events",
		}
	case integration.ProviderOutlook:
		if typ == integration.TypeVideo {
			return []string{
				"https://graph.microsoft.com/calendars.readwrite",
				"https://graph.microsoft.com/onlineMeetings.readwrite",
				"offline_access",
			}
		}
		return []string{
			"https://graph.microsoft.com/calendars.readwrite",
			"offline_access",
		}
	case integration.ProviderZoom:
		return []string{"meeting:write", "meeting:read"}
	case integration.ProviderApple:
		return []string{"name", "email"}
	case integration.ProviderMicrosoftTeams:
		return []string{
			"https://graph.microsoft.com/OnlineMeetings.ReadWrite",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		}
	case integration.ProviderWebex:
		return []string{"spark:meetings_write", "spark:meetings_read"}
	}
	return nil
}

// UserInfo is the provider-independent identity attached to an integration
// after the OAuth callback.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OAuthService runs the authorization-code flow: it issues authorization
// URLs with a stored state parameter and turns callbacks into persisted
// integrations.
type OAuthService struct {
	client     *redis.Client
	store      *integration.Store
	tokens     *TokenManager
	httpClient *http.Client

	// userInfoBase overrides the provider user-info hosts in tests.
	userInfoBase string
}

// NewOAuthService creates an OAuth service.
func NewOAuthService(client *redis.Client, store *integration.Store, tokens *TokenManager) *OAuthService {
	return &OAuthService{
		client:     client,
		store:      store,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func stateKey(organizerID string, p integration.Provider, typ integration.Type) string {
	return fmt.Sprintf("oauth_state:%s:%s:%s", organizerID, p, typ)
}

// AuthorizationURL begins the flow: it generates an unguessable state token,
// stores it for the callback to verify, and returns the provider's consent
// URL. The state parameter on the wire is "provider:type:token" so the
// callback can be routed without extra context.
func (s *OAuthService) AuthorizationURL(ctx context.Context, organizerID string, p integration.Provider, typ integration.Type) (string, string, error) {
	cfg, err := s.tokens.OAuthConfig(p, typ)
	if err != nil {
		return "", "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate state token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := s.client.Set(ctx, stateKey(organizerID, p, typ), token, stateTTL).Err(); err != nil {
		return "", "", fmt.Errorf("failed to store OAuth state: %w", err)
	}

	state := fmt.Sprintf("%s:%s:%s", p, typ, token)
	var opts []oauth2.AuthCodeOption
	if p == integration.ProviderGoogle {
		// Google only returns a refresh token with offline access and a
		// forced consent prompt.
		opts = append(opts, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	}
	if p == integration.ProviderApple {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", "form_post"))
	}

	return cfg.AuthCodeURL(state, opts...), token, nil
}

// CompleteCallback verifies the state, exchanges the authorization code,
// fetches the provider identity, and persists the integration. It returns
// the stored integration and whether it was newly created.
func (s *OAuthService) CompleteCallback(ctx context.Context, organizerID string, p integration.Provider, typ integration.Type, code, state string) (*integration.Integration, bool, error) {
	key := stateKey(organizerID, p, typ)
	stored, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, fmt.Errorf("OAuth state not found or expired for %s", p)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load OAuth state: %w", err)
	}
	if !strings.HasSuffix(state, stored) {
		return nil, false, fmt.Errorf("OAuth state mismatch for %s", p)
	}

	cfg, err := s.tokens.OAuthConfig(p, typ)
	if err != nil {
		return nil, false, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, false, fmt.Errorf("token exchange failed for %s: %w", p, err)
	}

	info, err := s.fetchUserInfo(ctx, p, tok.AccessToken)
	if err != nil {
		// Identity fetch is best effort; the tokens are still good.
		log.Printf("Warning: could not fetch %s user info: %v", p, err)
		info = &UserInfo{}
	}

	integ := &integration.Integration{
		OrganizerID:    organizerID,
		Provider:       p,
		Type:           typ,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		TokenExpiresAt: tok.Expiry,
		ProviderUserID: info.ID,
		ProviderEmail:  info.Email,
		IsActive:       true,
		SyncEnabled:    typ == integration.TypeCalendar,
	}
	if typ == integration.TypeVideo {
		integ.AutoGenerateLinks = true
	}

	created, err := s.store.Upsert(ctx, integ)
	if err != nil {
		return nil, false, err
	}

	s.client.Del(ctx, key)
	log.Printf("Completed %s %s OAuth for organizer %s (created=%t)", p, typ, organizerID, created)
	return integ, created, nil
}

func userInfoEndpoint(p integration.Provider) string {
	switch p {
	case integration.ProviderGoogle:
		return "https://www.googleapis.com/oauth2/v2/userinfo"
	case integration.ProviderOutlook, integration.ProviderMicrosoftTeams:
		return "https://graph.microsoft.com/v1.0/me"
	case integration.ProviderZoom:
		return "https://api.zoom.us/v2/users/me"
	case integration.ProviderApple:
		return "https://appleid.apple.com/auth/userinfo"
	case integration.ProviderWebex:
		return "https://webexapis.com/v1/people/me"
	}
	return ""
}

// fetchUserInfo retrieves and normalizes the authenticated user's identity.
// Each provider shapes this payload differently; everything is folded into
// the common id/email/name triple.
func (s *OAuthService) fetchUserInfo(ctx context.Context, p integration.Provider, accessToken string) (*UserInfo, error) {
	endpoint := userInfoEndpoint(p)
	if endpoint == "" {
		return nil, fmt.Errorf("no user info endpoint for provider %s", p)
	}
	if s.userInfoBase != "" {
		endpoint = s.userInfoBase + "/" + string(p)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request returned %d: %s", resp.StatusCode, body)
	}

	switch p {
	case integration.ProviderWebex:
		var payload struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
			Emails      []struct {
				Value string `json:"value"`
				Type  string `json:"type"`
			} `json:"emails"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		email := ""
		for _, e := range payload.Emails {
			if e.Type == "work" {
				email = e.Value
				break
			}
		}
		if email == "" && len(payload.Emails) > 0 {
			email = payload.Emails[0].Value
		}
		return &UserInfo{ID: payload.ID, Email: email, Name: payload.DisplayName}, nil

	case integration.ProviderApple:
		var payload struct {
			Sub   string `json:"sub"`
			Email string `json:"email"`
			Name  struct {
				FirstName string `json:"firstName"`
				LastName  string `json:"lastName"`
			} `json:"name"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(payload.Name.FirstName + " " + payload.Name.LastName)
		return &UserInfo{ID: payload.Sub, Email: payload.Email, Name: name}, nil

	case integration.ProviderOutlook, integration.ProviderMicrosoftTeams:
		var payload struct {
			ID                string `json:"id"`
			Mail              string `json:"mail"`
			UserPrincipalName string `json:"userPrincipalName"`
			DisplayName       string `json:"displayName"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		email := payload.Mail
		if email == "" {
			email = payload.UserPrincipalName
		}
		return &UserInfo{ID: payload.ID, Email: email, Name: payload.DisplayName}, nil

	case integration.ProviderZoom:
		var payload struct {
			ID          string `json:"id"`
			Email       string `json:"email"`
			DisplayName string `json:"display_name"`
			FirstName   string `json:"first_name"`
			LastName    string `json:"last_name"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		name := payload.DisplayName
		if name == "" {
			name = strings.TrimSpace(payload.FirstName + " " + payload.LastName)
		}
		return &UserInfo{ID: payload.ID, Email: payload.Email, Name: name}, nil

	default:
		var payload struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}
		return &UserInfo{ID: payload.ID, Email: payload.Email, Name: payload.Name}, nil
	}
}
