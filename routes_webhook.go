package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"synchub/audit"
	"synchub/integration"
	"synchub/security"
)

type webhookHandler struct {
	store      *integration.Store
	audit      *audit.Logger
	dispatcher *WebhookDispatcher
}

func registerWebhookRoutes(r *mux.Router, store *integration.Store, auditLogger *audit.Logger, dispatcher *WebhookDispatcher) {
	h := &webhookHandler{store: store, audit: auditLogger, dispatcher: dispatcher}
	r.HandleFunc("/webhooks/receive", h.handleReceive).Methods("POST")
	r.HandleFunc("/webhooks", h.handleCreate).Methods("POST")
	r.HandleFunc("/webhooks", h.handleList).Methods("GET")
	r.HandleFunc("/webhooks/{id}", h.handleDelete).Methods("DELETE")
	r.HandleFunc("/webhooks/{id}/test", h.handleTestFire).Methods("POST")
}

// signatureHeader returns the first signature-bearing header, in priority
// order.
func signatureHeader(r *http.Request) string {
	for _, name := range []string{
		"X-Webhook-Signature",
		"X-Hub-Signature-256",
		"X-Stripe-Signature",
		"X-Signature",
	} {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func (h *webhookHandler) handleReceive(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	webhookID := r.URL.Query().Get("webhook_id")
	if webhookID == "" {
		http.Error(w, "webhook_id parameter is required", http.StatusBadRequest)
		return
	}

	hook, err := h.store.GetWebhook(r.Context(), webhookID)
	if err == integration.ErrNotFound {
		http.Error(w, "Webhook integration not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !hook.IsActive {
		http.Error(w, "Webhook integration not found", http.StatusNotFound)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result := security.ValidateSignature(payload, signatureHeader(r), hook.SecretKey)
	if !result.Valid {
		h.audit.Log(r.Context(), integration.LogEntry{
			OrganizerID:     hook.OrganizerID,
			LogType:         integration.LogWebhookReceived,
			IntegrationType: "webhook",
			Message:         fmt.Sprintf("Rejected webhook delivery for %s: %s", hook.Name, result.Error),
			Success:         false,
			Details:         map[string]string{"webhook_id": hook.ID, "error": result.Error},
		})
		http.Error(w, "invalid webhook signature", http.StatusUnauthorized)
		return
	}

	h.audit.Log(r.Context(), integration.LogEntry{
		OrganizerID:     hook.OrganizerID,
		LogType:         integration.LogWebhookReceived,
		IntegrationType: "webhook",
		Message:         fmt.Sprintf("Received webhook delivery for %s", hook.Name),
		Success:         true,
		Details: map[string]string{
			"webhook_id":      hook.ID,
			"format_detected": result.FormatDetected,
			"payload_size":    fmt.Sprintf("%d", len(payload)),
		},
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          "received",
		"format_detected": result.FormatDetected,
	})
}

type webhookCreateRequest struct {
	OrganizerID string   `json:"organizer_id"`
	Name        string   `json:"name"`
	WebhookURL  string   `json:"webhook_url"`
	SecretKey   string   `json:"secret_key"`
	Events      []string `json:"events"`
}

func (h *webhookHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req webhookCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.OrganizerID) == "" || strings.TrimSpace(req.WebhookURL) == "" {
		http.Error(w, "organizer_id and webhook_url are required", http.StatusBadRequest)
		return
	}

	hook := &integration.WebhookIntegration{
		OrganizerID: req.OrganizerID,
		Name:        req.Name,
		WebhookURL:  req.WebhookURL,
		SecretKey:   req.SecretKey,
		Events:      req.Events,
		IsActive:    true,
	}
	if err := h.store.SaveWebhook(r.Context(), hook); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(hook)
}

func (h *webhookHandler) handleList(w http.ResponseWriter, r *http.Request) {
	organizerID := r.URL.Query().Get("organizer_id")
	if organizerID == "" {
		http.Error(w, "organizer_id parameter is required", http.StatusBadRequest)
		return
	}

	hooks, err := h.store.ListWebhooks(r.Context(), organizerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Secrets never leave the server.
	for _, hook := range hooks {
		hook.SecretKey = ""
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hooks)
}

func (h *webhookHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	err := h.store.DeleteWebhook(r.Context(), id)
	if err == integration.ErrNotFound {
		http.Error(w, "Webhook integration not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestFire sends a signed test event to the webhook's endpoint so the
// organizer can verify their receiver end to end.
func (h *webhookHandler) handleTestFire(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	hook, err := h.store.GetWebhook(r.Context(), id)
	if err == integration.ErrNotFound {
		http.Error(w, "Webhook integration not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !hook.IsActive {
		http.Error(w, "Webhook integration is not active", http.StatusBadRequest)
		return
	}

	deliverErr := h.dispatcher.Deliver(r.Context(), hook, "webhook.test", map[string]interface{}{
		"message": "Test delivery from SyncHub",
	})

	w.Header().Set("Content-Type", "application/json")
	if deliverErr != nil {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": deliverErr.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "delivered"})
}
