// Package domain holds typed identifiers shared across the verification service.
//
// Each ID is a distinct type over uuid.UUID so the compiler rejects cross-type
// assignment (a DeliveryID can never be passed where a VerificationID is
// expected). Parse functions enforce the trust-boundary invariant that IDs are
// valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

type (
	// VerificationID identifies one verification attempt.
	VerificationID uuid.UUID
	// UserID identifies the end user being verified.
	UserID uuid.UUID
	// OrganizationID identifies a tenant organization with threshold overrides.
	OrganizationID uuid.UUID
	// WebhookID identifies a registered notification target.
	WebhookID uuid.UUID
	// DeliveryID identifies one outbound notification delivery record.
	DeliveryID uuid.UUID
	// APIKeyID identifies a developer API key.
	APIKeyID uuid.UUID
)

func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id WebhookID) String() string      { return uuid.UUID(id).String() }
func (id DeliveryID) String() string     { return uuid.UUID(id).String() }
func (id APIKeyID) String() string       { return uuid.UUID(id).String() }

func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id WebhookID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id DeliveryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id APIKeyID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// NewVerificationID returns a fresh random verification ID.
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }

// NewWebhookID returns a fresh random webhook ID.
func NewWebhookID() WebhookID { return WebhookID(uuid.New()) }

// NewDeliveryID returns a fresh random delivery ID.
func NewDeliveryID() DeliveryID { return DeliveryID(uuid.New()) }

// NewAPIKeyID returns a fresh random API key ID.
func NewAPIKeyID() APIKeyID { return APIKeyID(uuid.New()) }

// parseUUID enforces the shared invariant: valid, non-empty, non-nil.
func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "%s is required", kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "%s is not a valid UUID", kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, derrors.Newf(derrors.CodeInvalidInput, "%s must not be the nil UUID", kind)
	}
	return parsed, nil
}

// ParseVerificationID parses and validates a verification ID from its string form.
func ParseVerificationID(raw string) (VerificationID, error) {
	parsed, err := parseUUID(raw, "verification_id")
	if err != nil {
		return VerificationID{}, err
	}
	return VerificationID(parsed), nil
}

// ParseUserID parses and validates a user ID from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user_id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

// ParseOrganizationID parses and validates an organization ID from its string form.
func ParseOrganizationID(raw string) (OrganizationID, error) {
	parsed, err := parseUUID(raw, "organization_id")
	if err != nil {
		return OrganizationID{}, err
	}
	return OrganizationID(parsed), nil
}

// ParseWebhookID parses and validates a webhook ID from its string form.
func ParseWebhookID(raw string) (WebhookID, error) {
	parsed, err := parseUUID(raw, "webhook_id")
	if err != nil {
		return WebhookID{}, err
	}
	return WebhookID(parsed), nil
}

// ParseDeliveryID parses and validates a delivery ID from its string form.
func ParseDeliveryID(raw string) (DeliveryID, error) {
	parsed, err := parseUUID(raw, "delivery_id")
	if err != nil {
		return DeliveryID{}, err
	}
	return DeliveryID(parsed), nil
}

// ParseAPIKeyID parses and validates an API key ID from its string form.
func ParseAPIKeyID(raw string) (APIKeyID, error) {
	parsed, err := parseUUID(raw, "key_id")
	if err != nil {
		return APIKeyID{}, err
	}
	return APIKeyID(parsed), nil
}
