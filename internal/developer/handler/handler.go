// Package handler exposes API key management endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doobee46/idswyft-sub005/internal/developer"
	"github.com/doobee46/idswyft-sub005/internal/platform/middleware"
	"github.com/doobee46/idswyft-sub005/internal/transport/http/shared"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

// Service defines the key management operations the handler exposes.
type Service interface {
	Issue(ctx context.Context, orgID *domain.OrganizationID, name string, sandbox bool) (*developer.APIKey, string, error)
	List(ctx context.Context) ([]*developer.APIKey, error)
	Revoke(ctx context.Context, id domain.APIKeyID) error
}

// Handler handles API key endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the key management routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/developer/keys", func(r chi.Router) {
		r.Post("/", h.handleIssue)
		r.Get("/", h.handleList)
		r.Delete("/{id}", h.handleRevoke)
	})
}

type issueRequest struct {
	Name           string `json:"name"`
	OrganizationID string `json:"organization_id,omitempty"`
	Sandbox        bool   `json:"sandbox"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	var orgID *domain.OrganizationID
	if req.OrganizationID != "" {
		parsed, err := domain.ParseOrganizationID(req.OrganizationID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		orgID = &parsed
	}

	key, rawKey, err := h.service.Issue(ctx, orgID, req.Name, req.Sandbox)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to issue api key")
		return
	}
	resp := keyProjection(key)
	// Shown once. Only the bcrypt hash survives server side.
	resp.Key = rawKey
	shared.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := h.service.List(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list api keys")
		return
	}
	projections := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		projections = append(projections, keyProjection(key))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"api_keys": projections})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseAPIKeyID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.service.Revoke(ctx, id); err != nil {
		h.writeServiceError(ctx, w, err, "failed to revoke api key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

type keyResponse struct {
	KeyID      string     `json:"key_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Key        string     `json:"key,omitempty"`
	Sandbox    bool       `json:"sandbox"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func keyProjection(key *developer.APIKey) keyResponse {
	return keyResponse{
		KeyID:      key.ID.String(),
		Name:       key.Name,
		Prefix:     key.Prefix,
		Sandbox:    key.Sandbox,
		Active:     key.Active,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
	}
}
