package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synchub/audit"
	"synchub/integration"
	"synchub/security"
)

func newWebhookFixture(t *testing.T) (*mux.Router, *integration.Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := integration.NewStore(client)
	auditLogger := audit.NewLogger(client)
	dispatcher := NewWebhookDispatcher(store, auditLogger)

	r := mux.NewRouter()
	registerWebhookRoutes(r, store, auditLogger, dispatcher)
	return r, store
}

func saveHook(t *testing.T, store *integration.Store, hook *integration.WebhookIntegration) *integration.WebhookIntegration {
	require.NoError(t, store.SaveWebhook(context.Background(), hook))
	return hook
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestReceiveRequiresWebhookID(t *testing.T) {
	router, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/receive", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceiveUnknownWebhook(t *testing.T) {
	router, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/receive?webhook_id=nope", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiveInactiveWebhookIsHidden(t *testing.T) {
	router, store := newWebhookFixture(t)
	hook := saveHook(t, store, &integration.WebhookIntegration{
		OrganizerID: "org-1",
		Name:        "disabled",
		WebhookURL:  "https://example.com/hook",
		SecretKey:   "secret",
		IsActive:    false,
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/receive?webhook_id="+hook.ID, bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	router, store := newWebhookFixture(t)
	hook := saveHook(t, store, &integration.WebhookIntegration{
		OrganizerID: "org-1",
		Name:        "crm",
		WebhookURL:  "https://example.com/hook",
		SecretKey:   "right-secret",
		IsActive:    true,
	})

	payload := []byte(`{"event":"invoice.paid"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/receive?webhook_id="+hook.ID, bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", sign(payload, "wrong-secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReceiveAcceptsValidSignature(t *testing.T) {
	router, store := newWebhookFixture(t)
	hook := saveHook(t, store, &integration.WebhookIntegration{
		OrganizerID: "org-1",
		Name:        "crm",
		WebhookURL:  "https://example.com/hook",
		SecretKey:   "right-secret",
		IsActive:    true,
	})

	payload := []byte(`{"event":"invoice.paid"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/receive?webhook_id="+hook.ID, bytes.NewReader(payload))
	req.Header.Set("X-Hub-Signature-256", sign(payload, "right-secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "received", resp["status"])
	assert.Equal(t, "github", resp["format_detected"])
}

func TestCreateAndListWebhooks(t *testing.T) {
	router, _ := newWebhookFixture(t)

	body := `{"organizer_id":"org-1","name":"crm","webhook_url":"https://example.com/hook","secret_key":"s3cret","events":["booking.created"]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created integration.WebhookIntegration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive)

	req = httptest.NewRequest(http.MethodGet, "/webhooks?organizer_id=org-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var hooks []integration.WebhookIntegration
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hooks))
	require.Len(t, hooks, 1)
	assert.Empty(t, hooks[0].SecretKey, "secrets must not be listed")
}

func TestCreateWebhookValidatesInput(t *testing.T) {
	router, _ := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks", bytes.NewReader([]byte(`{"organizer_id":"org-1"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteWebhook(t *testing.T) {
	router, store := newWebhookFixture(t)
	hook := saveHook(t, store, &integration.WebhookIntegration{
		OrganizerID: "org-1",
		Name:        "crm",
		WebhookURL:  "https://example.com/hook",
		IsActive:    true,
	})

	req := httptest.NewRequest(http.MethodDelete, "/webhooks/"+hook.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/webhooks/"+hook.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTestFireDeliversSignedEvent(t *testing.T) {
	router, store := newWebhookFixture(t)

	var gotSignature string
	var gotBody []byte
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	hook := saveHook(t, store, &integration.WebhookIntegration{
		OrganizerID: "org-1",
		Name:        "crm",
		WebhookURL:  receiver.URL,
		SecretKey:   "s3cret",
		IsActive:    true,
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+hook.ID+"/test", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotEmpty(t, gotSignature)
	result := security.ValidateSignature(gotBody, gotSignature, "s3cret")
	assert.True(t, result.Valid)

	var delivered map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &delivered))
	assert.Equal(t, "webhook.test", delivered["event"])
	assert.Equal(t, hook.ID, delivered["webhook_id"])
}
