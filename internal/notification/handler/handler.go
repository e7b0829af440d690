// Package handler exposes the webhook management HTTP surface.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doobee46/idswyft-sub005/internal/notification"
	"github.com/doobee46/idswyft-sub005/internal/platform/middleware"
	"github.com/doobee46/idswyft-sub005/internal/transport/http/shared"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

// Service defines the webhook management operations the handler exposes.
type Service interface {
	Register(ctx context.Context, orgID *domain.OrganizationID, url, secret string, events []notification.Event) (*notification.Target, error)
	List(ctx context.Context) ([]*notification.Target, error)
	Delete(ctx context.Context, id domain.WebhookID) error
	Test(ctx context.Context, id domain.WebhookID) (*notification.Delivery, error)
	Deliveries(ctx context.Context, id domain.WebhookID, limit int) ([]*notification.Delivery, error)
}

// Handler handles webhook management endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the webhook routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/", h.handleRegister)
		r.Get("/", h.handleList)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/test", h.handleTest)
		r.Get("/{id}/deliveries", h.handleDeliveries)
	})
}

type registerRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	events := make([]notification.Event, 0, len(req.Events))
	for _, event := range req.Events {
		events = append(events, notification.Event(event))
	}

	var orgID *domain.OrganizationID
	if fromKey := middleware.GetOrganizationID(ctx); !fromKey.IsNil() {
		orgID = &fromKey
	}

	target, err := h.service.Register(ctx, orgID, req.URL, req.Secret, events)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to register webhook")
		return
	}
	// The secret appears in this response only; listings redact it.
	shared.WriteJSON(w, http.StatusCreated, targetProjection(target, true))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targets, err := h.service.List(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list webhooks")
		return
	}
	projections := make([]targetResponse, 0, len(targets))
	for _, target := range targets {
		projections = append(projections, targetProjection(target, false))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"webhooks": projections})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseWebhookID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, id); err != nil {
		h.writeServiceError(ctx, w, err, "failed to delete webhook")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseWebhookID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	delivery, err := h.service.Test(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to queue test delivery")
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, deliveryProjection(delivery))
}

func (h *Handler) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseWebhookID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.WriteError(w, derrors.New(derrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
	}
	deliveries, err := h.service.Deliveries(ctx, id, limit)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list deliveries")
		return
	}
	projections := make([]deliveryResponse, 0, len(deliveries))
	for _, delivery := range deliveries {
		projections = append(projections, deliveryProjection(delivery))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"deliveries": projections})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, message string) {
	if derrors.CodeOf(err) == derrors.CodeInternal {
		h.logger.ErrorContext(ctx, message,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, derrors.New(derrors.CodeInternal, message))
		return
	}
	h.logger.WarnContext(ctx, message,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	shared.WriteError(w, err)
}

type targetResponse struct {
	WebhookID string    `json:"webhook_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"secret,omitempty"`
	Events    []string  `json:"events"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type deliveryResponse struct {
	DeliveryID     string     `json:"delivery_id"`
	WebhookID      string     `json:"webhook_id"`
	VerificationID string     `json:"verification_id,omitempty"`
	Event          string     `json:"event"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	ResponseStatus int        `json:"response_status,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func targetProjection(target *notification.Target, includeSecret bool) targetResponse {
	events := make([]string, 0, len(target.Events))
	for _, event := range target.Events {
		events = append(events, string(event))
	}
	resp := targetResponse{
		WebhookID: target.ID.String(),
		URL:       target.URL,
		Events:    events,
		Active:    target.Active,
		CreatedAt: target.CreatedAt,
	}
	if includeSecret {
		resp.Secret = target.Secret
	}
	return resp
}

func deliveryProjection(delivery *notification.Delivery) deliveryResponse {
	resp := deliveryResponse{
		DeliveryID:     delivery.ID.String(),
		WebhookID:      delivery.TargetID.String(),
		Event:          string(delivery.Event),
		Status:         string(delivery.Status),
		Attempts:       delivery.Attempts,
		ResponseStatus: delivery.ResponseStatus,
		LastError:      delivery.LastError,
		CreatedAt:      delivery.CreatedAt,
	}
	if !delivery.VerificationID.IsNil() {
		resp.VerificationID = delivery.VerificationID.String()
	}
	if delivery.Status == notification.DeliveryPending {
		next := delivery.NextAttemptAt
		resp.NextAttemptAt = &next
	}
	return resp
}
