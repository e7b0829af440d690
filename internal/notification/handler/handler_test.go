package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doobee46/idswyft-sub005/internal/notification"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

type fakeService struct {
	registerFn   func(ctx context.Context, orgID *domain.OrganizationID, url, secret string, events []notification.Event) (*notification.Target, error)
	listFn       func(ctx context.Context) ([]*notification.Target, error)
	deleteFn     func(ctx context.Context, id domain.WebhookID) error
	testFn       func(ctx context.Context, id domain.WebhookID) (*notification.Delivery, error)
	deliveriesFn func(ctx context.Context, id domain.WebhookID, limit int) ([]*notification.Delivery, error)
}

func (f *fakeService) Register(ctx context.Context, orgID *domain.OrganizationID, url, secret string, events []notification.Event) (*notification.Target, error) {
	return f.registerFn(ctx, orgID, url, secret, events)
}

func (f *fakeService) List(ctx context.Context) ([]*notification.Target, error) {
	return f.listFn(ctx)
}

func (f *fakeService) Delete(ctx context.Context, id domain.WebhookID) error {
	return f.deleteFn(ctx, id)
}

func (f *fakeService) Test(ctx context.Context, id domain.WebhookID) (*notification.Delivery, error) {
	return f.testFn(ctx, id)
}

func (f *fakeService) Deliveries(ctx context.Context, id domain.WebhookID, limit int) ([]*notification.Delivery, error) {
	return f.deliveriesFn(ctx, id, limit)
}

func newTestRouter(t *testing.T, service Service) *chi.Mux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(service, logger)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func sampleTarget() *notification.Target {
	return &notification.Target{
		ID:        domain.NewWebhookID(),
		URL:       "https://example.com/hook",
		Secret:    "super-secret",
		Events:    []notification.Event{notification.EventVerificationVerified},
		Active:    true,
		CreatedAt: time.Now(),
	}
}

func TestHandleRegister_ReturnsSecretOnce(t *testing.T) {
	target := sampleTarget()
	service := &fakeService{
		registerFn: func(ctx context.Context, orgID *domain.OrganizationID, url, secret string, events []notification.Event) (*notification.Target, error) {
			assert.Equal(t, "https://example.com/hook", url)
			assert.Equal(t, []notification.Event{notification.EventVerificationVerified}, events)
			return target, nil
		},
	}
	router := newTestRouter(t, service)

	body, err := json.Marshal(map[string]any{
		"url":    "https://example.com/hook",
		"events": []string{"verification.verified"},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "super-secret", resp["secret"])
	assert.Equal(t, target.ID.String(), resp["webhook_id"])
}

func TestHandleList_RedactsSecrets(t *testing.T) {
	service := &fakeService{
		listFn: func(ctx context.Context) ([]*notification.Target, error) {
			return []*notification.Target{sampleTarget(), sampleTarget()}, nil
		},
	}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "super-secret")

	var resp map[string][]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["webhooks"], 2)
}

func TestHandleDelete_NoContentOnSuccess(t *testing.T) {
	id := domain.NewWebhookID()
	service := &fakeService{
		deleteFn: func(ctx context.Context, got domain.WebhookID) error {
			assert.Equal(t, id, got)
			return nil
		},
	}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodDelete, "/api/webhooks/"+id.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleDelete_UnknownWebhookNotFound(t *testing.T) {
	service := &fakeService{
		deleteFn: func(ctx context.Context, id domain.WebhookID) error {
			return derrors.New(derrors.CodeNotFound, "webhook not found")
		},
	}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodDelete, "/api/webhooks/"+domain.NewWebhookID().String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleTest_QueuesDelivery(t *testing.T) {
	id := domain.NewWebhookID()
	service := &fakeService{
		testFn: func(ctx context.Context, got domain.WebhookID) (*notification.Delivery, error) {
			return &notification.Delivery{
				ID:            domain.NewDeliveryID(),
				TargetID:      got,
				Event:         notification.EventWebhookTest,
				Status:        notification.DeliveryPending,
				NextAttemptAt: time.Now(),
				CreatedAt:     time.Now(),
			}, nil
		},
	}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/"+id.String()+"/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp["status"])
	assert.Equal(t, "webhook.test", resp["event"])
}

func TestHandleDeliveries_PassesLimitThrough(t *testing.T) {
	id := domain.NewWebhookID()
	service := &fakeService{
		deliveriesFn: func(ctx context.Context, got domain.WebhookID, limit int) ([]*notification.Delivery, error) {
			assert.Equal(t, 5, limit)
			return []*notification.Delivery{{
				ID:        domain.NewDeliveryID(),
				TargetID:  got,
				Event:     notification.EventVerificationVerified,
				Status:    notification.DeliveryDelivered,
				Attempts:  1,
				CreatedAt: time.Now(),
			}}, nil
		},
	}
	router := newTestRouter(t, service)

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/"+id.String()+"/deliveries?limit=5", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string][]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["deliveries"], 1)
}

func TestHandleDeliveries_RejectsBadLimit(t *testing.T) {
	router := newTestRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/webhooks/"+domain.NewWebhookID().String()+"/deliveries?limit=many", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
