package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"synchub/audit"
	"synchub/availability"
	"synchub/conflict"
	"synchub/integration"
	"synchub/providers"
	"synchub/security"
	"synchub/syncer"
)

type integrationHandler struct {
	integrations *integration.Store
	blocked      *availability.Store
	registry     *providers.Registry
	tokens       *security.TokenManager
	sync         *syncer.Syncer
	audit        *audit.Logger
}

func registerIntegrationRoutes(r *mux.Router, integrations *integration.Store, blocked *availability.Store, registry *providers.Registry, tokens *security.TokenManager, sync *syncer.Syncer, auditLogger *audit.Logger) {
	h := &integrationHandler{
		integrations: integrations,
		blocked:      blocked,
		registry:     registry,
		tokens:       tokens,
		sync:         sync,
		audit:        auditLogger,
	}
	r.HandleFunc("/integrations", h.handleList).Methods("GET")
	r.HandleFunc("/integrations/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/integrations/conflicts", h.handleConflicts).Methods("GET")
	r.HandleFunc("/integrations/logs", h.handleLogs).Methods("GET")
	r.HandleFunc("/integrations/{type}/{provider}/sync", h.handleForceSync).Methods("POST")
	r.HandleFunc("/integrations/{type}/{provider}/test", h.handleTestConnection).Methods("POST")
	r.HandleFunc("/integrations/{type}/{provider}", h.handleDeactivate).Methods("DELETE")
	r.HandleFunc("/blocked", h.handleAddBlock).Methods("POST")
	r.HandleFunc("/blocked", h.handleListBlocks).Methods("GET")
}

func requireOrganizer(w http.ResponseWriter, r *http.Request) (string, bool) {
	organizerID := strings.TrimSpace(r.URL.Query().Get("organizer_id"))
	if organizerID == "" {
		http.Error(w, "organizer_id parameter is required", http.StatusBadRequest)
		return "", false
	}
	return organizerID, true
}

func (h *integrationHandler) lookup(w http.ResponseWriter, r *http.Request) (*integration.Integration, bool) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return nil, false
	}
	vars := mux.Vars(r)
	typ, ok := integration.ParseType(vars["type"])
	if !ok {
		http.Error(w, fmt.Sprintf("Integration type %s not supported", vars["type"]), http.StatusBadRequest)
		return nil, false
	}
	p, ok := integration.ParseProvider(vars["provider"])
	if !ok {
		http.Error(w, fmt.Sprintf("Provider %s not supported", vars["provider"]), http.StatusBadRequest)
		return nil, false
	}

	integ, err := h.integrations.Get(r.Context(), organizerID, typ, p)
	if err == integration.ErrNotFound {
		http.Error(w, "Integration not found", http.StatusNotFound)
		return nil, false
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return integ, true
}

func (h *integrationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}

	list, err := h.integrations.ListByOrganizer(r.Context(), organizerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	redacted := make([]*integration.Integration, 0, len(list))
	for _, integ := range list {
		redacted = append(redacted, integration.Redact(integ))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(redacted)
}

func (h *integrationHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}

	list, err := h.integrations.ListByOrganizer(r.Context(), organizerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(integration.BuildHealthReport(organizerID, list))
}

// handleConflicts compares future synced events against the organizer's
// manual blocks.
func (h *integrationHandler) handleConflicts(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}

	manual, err := h.blocked.ListManual(r.Context(), organizerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	synced, err := h.blocked.ListSynced(r.Context(), organizerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	var events []integration.NormalizedEvent
	for _, block := range synced {
		if block.StartDateTime.Before(now) {
			continue
		}
		events = append(events, integration.NormalizedEvent{
			ExternalID:    block.ExternalID,
			Summary:       block.Reason,
			StartDateTime: block.StartDateTime,
			EndDateTime:   block.EndDateTime,
			Updated:       block.ExternalUpdatedAt,
			Status:        integration.StatusConfirmed,
			Transparency:  integration.TransparencyOpaque,
		})
	}

	var future []availability.BlockedTime
	for _, block := range manual {
		if !block.StartDateTime.Before(now) {
			future = append(future, block)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conflict.Detect(events, future))
}

func (h *integrationHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}
	count := int64(parseIntOrDefault(r.URL.Query().Get("count"), 50))

	entries, err := h.audit.Recent(r.Context(), organizerID, count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *integrationHandler) handleForceSync(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !integ.IsActive {
		http.Error(w, "Integration is not active", http.StatusBadRequest)
		return
	}
	if integ.Type != integration.TypeCalendar {
		http.Error(w, "Only calendar integrations can be synced", http.StatusBadRequest)
		return
	}

	if err := h.sync.SyncIntegration(r.Context(), integ); err != nil {
		http.Error(w, fmt.Sprintf("sync failed: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Calendar sync completed"})
}

func (h *integrationHandler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.tokens.EnsureValid(r.Context(), integ); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	client, err := h.registry.Client(integ.Provider, integ.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(client.TestConnection(r.Context(), integ))
}

func (h *integrationHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	integ, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := h.integrations.Deactivate(r.Context(), integ.OrganizerID, integ.Type, integ.Provider); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blockRequest struct {
	OrganizerID   string    `json:"organizer_id"`
	StartDateTime time.Time `json:"start_datetime"`
	EndDateTime   time.Time `json:"end_datetime"`
	Reason        string    `json:"reason"`
}

func (h *integrationHandler) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.OrganizerID) == "" {
		http.Error(w, "organizer_id is required", http.StatusBadRequest)
		return
	}
	if !req.EndDateTime.After(req.StartDateTime) {
		http.Error(w, "end_datetime must be after start_datetime", http.StatusBadRequest)
		return
	}

	block := &availability.BlockedTime{
		OrganizerID:   req.OrganizerID,
		StartDateTime: req.StartDateTime.UTC(),
		EndDateTime:   req.EndDateTime.UTC(),
		Reason:        req.Reason,
	}
	if err := h.blocked.AddManual(r.Context(), block); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(block)
}

func (h *integrationHandler) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	organizerID, ok := requireOrganizer(w, r)
	if !ok {
		return
	}

	manual, err := h.blocked.ListManual(r.Context(), organizerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	synced, err := h.blocked.ListSynced(r.Context(), organizerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"manual": manual,
		"synced": synced,
	})
}
