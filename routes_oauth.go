package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"synchub/integration"
	"synchub/security"
	"synchub/syncer"
)

type oauthHandler struct {
	oauth        *security.OAuthService
	sync         *syncer.Syncer
	integrations *integration.Store
}

type oauthInitiateRequest struct {
	OrganizerID     string `json:"organizer_id"`
	Provider        string `json:"provider"`
	IntegrationType string `json:"integration_type"`
}

type oauthInitiateResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Provider         string `json:"provider"`
	IntegrationType  string `json:"integration_type"`
	State            string `json:"state"`
}

type oauthCallbackRequest struct {
	OrganizerID     string `json:"organizer_id"`
	Provider        string `json:"provider"`
	IntegrationType string `json:"integration_type"`
	Code            string `json:"code"`
	State           string `json:"state"`
}

func registerOAuthRoutes(r *mux.Router, oauth *security.OAuthService, sync *syncer.Syncer, integrations *integration.Store) {
	h := &oauthHandler{oauth: oauth, sync: sync, integrations: integrations}
	r.HandleFunc("/integrations/oauth/initiate", h.handleInitiate).Methods("POST")
	r.HandleFunc("/integrations/oauth/callback", h.handleCallback).Methods("POST")
}

func (h *oauthHandler) parseTarget(w http.ResponseWriter, organizerID, provider, integrationType string) (integration.Provider, integration.Type, bool) {
	if strings.TrimSpace(organizerID) == "" {
		http.Error(w, "organizer_id is required", http.StatusBadRequest)
		return "", "", false
	}
	p, ok := integration.ParseProvider(provider)
	if !ok {
		http.Error(w, fmt.Sprintf("Provider %s not supported", provider), http.StatusBadRequest)
		return "", "", false
	}
	typ, ok := integration.ParseType(integrationType)
	if !ok {
		http.Error(w, fmt.Sprintf("Integration type %s not supported", integrationType), http.StatusBadRequest)
		return "", "", false
	}
	return p, typ, true
}

func (h *oauthHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req oauthInitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	p, typ, ok := h.parseTarget(w, req.OrganizerID, req.Provider, req.IntegrationType)
	if !ok {
		return
	}

	authURL, state, err := h.oauth.AuthorizationURL(r.Context(), req.OrganizerID, p, typ)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(oauthInitiateResponse{
		AuthorizationURL: authURL,
		Provider:         string(p),
		IntegrationType:  string(typ),
		State:            state,
	})
}

func (h *oauthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req oauthCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	p, typ, ok := h.parseTarget(w, req.OrganizerID, req.Provider, req.IntegrationType)
	if !ok {
		return
	}
	if req.Code == "" || req.State == "" {
		http.Error(w, "code and state are required", http.StatusBadRequest)
		return
	}

	integ, created, err := h.oauth.CompleteCallback(r.Context(), req.OrganizerID, p, typ, req.Code, req.State)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Prime availability right away so the organizer sees synced blocks
	// without waiting for the next scheduler pass.
	if typ == integration.TypeCalendar {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := h.sync.SyncIntegration(ctx, integ); err != nil {
				log.Printf("Initial sync after %s connect failed: %v", p, err)
			}
		}()
	}

	w.Header().Set("Content-Type", "application/json")
	if created {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(integration.Redact(integ))
}
