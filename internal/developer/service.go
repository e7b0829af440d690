package developer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/doobee46/idswyft-sub005/internal/platform/middleware"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// Service issues and validates API keys. It implements
// middleware.APIKeyValidator for the verify surface.
type Service struct {
	store      Store
	logger     *slog.Logger
	bcryptCost int
	now        func() time.Time
}

type Option func(*Service)

// WithBcryptCost overrides the hash cost, for tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a new key and returns it with the raw credential. The raw key
// is not recoverable afterwards.
func (s *Service) Issue(ctx context.Context, orgID *domain.OrganizationID, name string, sandbox bool) (*APIKey, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", derrors.New(derrors.CodeInvalidInput, "key name is required")
	}

	rawKey, err := generateRawKey(sandbox)
	if err != nil {
		return nil, "", derrors.Wrap(err, derrors.CodeInternal, "failed to generate api key")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), s.bcryptCost)
	if err != nil {
		return nil, "", derrors.Wrap(err, derrors.CodeInternal, "failed to hash api key")
	}

	key := &APIKey{
		ID:             domain.NewAPIKeyID(),
		OrganizationID: orgID,
		Name:           name,
		Prefix:         rawKey[:lookupPrefixLen],
		Hash:           hash,
		Sandbox:        sandbox,
		Active:         true,
		CreatedAt:      s.now(),
	}
	if err := s.store.Create(ctx, key); err != nil {
		return nil, "", derrors.Wrap(err, derrors.CodeInternal, "failed to store api key")
	}
	return key, rawKey, nil
}

func (s *Service) List(ctx context.Context) ([]*APIKey, error) {
	keys, err := s.store.List(ctx)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list api keys")
	}
	return keys, nil
}

func (s *Service) Revoke(ctx context.Context, id domain.APIKeyID) error {
	if err := s.store.Revoke(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return derrors.New(derrors.CodeNotFound, "api key not found")
		}
		return derrors.Wrap(err, derrors.CodeInternal, "failed to revoke api key")
	}
	return nil
}

// ValidateKey resolves a raw key into claims. Unknown, mismatched, and
// revoked keys all come back as the same unauthorized error so callers learn
// nothing about which keys exist.
func (s *Service) ValidateKey(ctx context.Context, rawKey string) (*middleware.APIKeyClaims, error) {
	if len(rawKey) <= lookupPrefixLen {
		return nil, errUnauthorizedKey()
	}
	key, err := s.store.GetByPrefix(ctx, rawKey[:lookupPrefixLen])
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errUnauthorizedKey()
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to load api key")
	}
	if !key.Active {
		return nil, errUnauthorizedKey()
	}
	if err := bcrypt.CompareHashAndPassword(key.Hash, []byte(rawKey)); err != nil {
		return nil, errUnauthorizedKey()
	}

	if err := s.store.TouchLastUsed(ctx, key.ID, s.now()); err != nil {
		// Last-used is bookkeeping; a failed touch must not block the request.
		s.logger.WarnContext(ctx, "failed to record api key usage",
			"key_id", key.ID.String(), "error", err.Error())
	}

	claims := &middleware.APIKeyClaims{
		KeyID:   key.ID,
		Sandbox: key.Sandbox,
	}
	if key.OrganizationID != nil {
		claims.OrganizationID = *key.OrganizationID
	}
	return claims, nil
}

func generateRawKey(sandbox bool) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	prefix := prefixProduction
	if sandbox {
		prefix = prefixSandbox
	}
	return prefix + hex.EncodeToString(buf), nil
}

func errUnauthorizedKey() error {
	return derrors.New(derrors.CodeUnauthorized, "invalid or revoked api key")
}
