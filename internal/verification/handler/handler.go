// Package handler exposes the verification HTTP surface.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doobee46/idswyft-sub005/internal/extraction"
	"github.com/doobee46/idswyft-sub005/internal/livecapture"
	"github.com/doobee46/idswyft-sub005/internal/platform/middleware"
	"github.com/doobee46/idswyft-sub005/internal/transport/http/shared"
	"github.com/doobee46/idswyft-sub005/internal/verification"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

// Service defines the verification operations the handler exposes.
type Service interface {
	Start(ctx context.Context, userID domain.UserID, orgID *domain.OrganizationID, sandbox bool) (*verification.VerificationContext, error)
	AttachDocument(ctx context.Context, id domain.VerificationID, docType extraction.DocumentType, image []byte) (*verification.VerificationContext, error)
	AttachBackOfID(ctx context.Context, id domain.VerificationID, image []byte) (*verification.VerificationContext, error)
	AttachLiveCapture(ctx context.Context, id domain.VerificationID, selfie []byte, challenge string) (*verification.VerificationContext, error)
	Get(ctx context.Context, id domain.VerificationID) (*verification.VerificationContext, error)
	History(ctx context.Context, userID domain.UserID) ([]*verification.VerificationContext, error)
}

// TokenIssuer mints and validates live-capture tokens.
type TokenIssuer interface {
	Issue(verificationID domain.VerificationID, challenge string) (token, resolvedChallenge string, err error)
	Validate(token string) (*livecapture.Claims, error)
}

// Handler handles verification endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	tokens  TokenIssuer
}

func New(service Service, tokens TokenIssuer, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service, tokens: tokens}
}

// Register mounts the verification routes. API key enforcement happens in the
// parent router's middleware chain.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/verify", func(r chi.Router) {
		r.Post("/start", h.handleStart)
		r.Post("/document", h.handleDocument)
		r.Post("/back-of-id", h.handleBackOfID)
		r.Post("/live-capture", h.handleLiveCapture)
		r.Post("/generate-live-token", h.handleGenerateLiveToken)
		r.Get("/status/{id}", h.handleStatus)
		r.Get("/results/{id}", h.handleResults)
		r.Get("/history/{user_id}", h.handleHistory)
	})
}

type startRequest struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
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
	} else if fromKey := middleware.GetOrganizationID(ctx); !fromKey.IsNil() {
		orgID = &fromKey
	}

	vc, err := h.service.Start(ctx, userID, orgID, middleware.IsSandbox(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to start verification")
		return
	}
	shared.WriteJSON(w, http.StatusCreated, statusProjection(vc))
}

type imageRequest struct {
	VerificationID string `json:"verification_id"`
	DocumentType   string `json:"document_type,omitempty"`
	ImageBase64    string `json:"image_base64"`
	Challenge      string `json:"challenge,omitempty"`
	LiveToken      string `json:"live_token,omitempty"`
}

func (req *imageRequest) image() ([]byte, error) {
	if req.ImageBase64 == "" {
		return nil, derrors.New(derrors.CodeInvalidInput, "image_base64 is required")
	}
	decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, derrors.New(derrors.CodeInvalidInput, "image_base64 is not valid base64")
	}
	return decoded, nil
}

func (h *Handler) decodeImageRequest(w http.ResponseWriter, r *http.Request) (*imageRequest, domain.VerificationID, []byte, bool) {
	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return nil, domain.VerificationID{}, nil, false
	}
	id, err := domain.ParseVerificationID(req.VerificationID)
	if err != nil {
		shared.WriteError(w, err)
		return nil, domain.VerificationID{}, nil, false
	}
	image, err := req.image()
	if err != nil {
		shared.WriteError(w, err)
		return nil, domain.VerificationID{}, nil, false
	}
	return &req, id, image, true
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, id, image, ok := h.decodeImageRequest(w, r)
	if !ok {
		return
	}

	vc, err := h.service.AttachDocument(ctx, id, extraction.DocumentType(req.DocumentType), image)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to process document")
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, statusProjection(vc))
}

func (h *Handler) handleBackOfID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, id, image, ok := h.decodeImageRequest(w, r)
	if !ok {
		return
	}

	vc, err := h.service.AttachBackOfID(ctx, id, image)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to process back of id")
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, statusProjection(vc))
}

func (h *Handler) handleLiveCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, id, image, ok := h.decodeImageRequest(w, r)
	if !ok {
		return
	}

	challenge := req.Challenge
	if req.LiveToken != "" {
		claims, err := h.tokens.Validate(req.LiveToken)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		if claims.VerificationID != id {
			shared.WriteError(w, derrors.New(derrors.CodeForbidden, "live token is bound to a different verification"))
			return
		}
		challenge = claims.Challenge
	}

	vc, err := h.service.AttachLiveCapture(ctx, id, image, challenge)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to process live capture")
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, resultsProjection(vc))
}

type liveTokenRequest struct {
	VerificationID string `json:"verification_id"`
	Challenge      string `json:"challenge,omitempty"`
}

func (h *Handler) handleGenerateLiveToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req liveTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, derrors.New(derrors.CodeBadRequest, "invalid request body"))
		return
	}
	id, err := domain.ParseVerificationID(req.VerificationID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// The verification must exist before a token is bound to it.
	if _, err := h.service.Get(ctx, id); err != nil {
		h.writeServiceError(ctx, w, err, "failed to load verification")
		return
	}

	challenge := req.Challenge
	if challenge == "" {
		challenge = livecapture.ChallengeRandom
	}
	token, resolved, err := h.tokens.Issue(id, challenge)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to issue live token")
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{
		"verification_id": id.String(),
		"live_token":      token,
		"challenge":       resolved,
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	vc, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load verification")
		return
	}
	shared.WriteJSON(w, http.StatusOK, statusProjection(vc))
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	vc, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to load verification")
		return
	}
	shared.WriteJSON(w, http.StatusOK, resultsProjection(vc))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := domain.ParseUserID(chi.URLParam(r, "user_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	contexts, err := h.service.History(ctx, userID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list verifications")
		return
	}

	projections := make([]statusResponse, 0, len(contexts))
	for _, vc := range contexts {
		projections = append(projections, statusProjection(vc))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"verifications": projections})
}

// writeServiceError passes coded errors through and hides everything else
// behind a generic internal response.
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

type statusResponse struct {
	VerificationID string `json:"verification_id"`
	Status         string `json:"status"`
	NextStep       string `json:"next_step,omitempty"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type resultsResponse struct {
	VerificationID string             `json:"verification_id"`
	Status         string             `json:"status"`
	Sandbox        bool               `json:"sandbox"`
	Scores         map[string]float64 `json:"scores"`
	Reason         string             `json:"reason,omitempty"`
	Errors         []errorResponse    `json:"errors,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

func statusProjection(vc *verification.VerificationContext) statusResponse {
	return statusResponse{
		VerificationID: vc.ID.String(),
		Status:         string(vc.Status),
		NextStep:       nextStep(vc),
	}
}

// resultsProjection exposes scores and user-facing errors only; technical
// detail stays internal.
func resultsProjection(vc *verification.VerificationContext) resultsResponse {
	resp := resultsResponse{
		VerificationID: vc.ID.String(),
		Status:         string(vc.Status),
		Sandbox:        vc.Sandbox,
		Scores:         vc.Scores,
		Reason:         vc.Reason,
		CreatedAt:      vc.CreatedAt,
		CompletedAt:    vc.CompletedAt,
	}
	for _, record := range vc.Errors {
		if !record.UserFacing {
			continue
		}
		resp.Errors = append(resp.Errors, errorResponse{
			Kind:    string(record.Kind),
			Stage:   record.Stage,
			Message: record.Message,
		})
	}
	return resp
}

func nextStep(vc *verification.VerificationContext) string {
	switch vc.Status {
	case verification.StatusPending, verification.StatusDocumentUploaded:
		return "upload_document"
	case verification.StatusOCRProcessing:
		return "upload_back_of_id_or_live_capture"
	case verification.StatusBackOfIDProcessing, verification.StatusCrossValidation:
		return "live_capture"
	case verification.StatusLiveCaptureProcessing:
		return "await_results"
	default:
		return ""
	}
}
