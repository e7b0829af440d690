// Package developer manages the API keys that gate the verification surface.
// Keys are bcrypt-hashed at rest; the raw key is shown once at issue time.
package developer

import (
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// Key prefixes distinguish environments at a glance and pick the threshold
// profile for the requests they authenticate.
const (
	prefixProduction = "ik_live_"
	prefixSandbox    = "ik_test_"

	// lookupPrefixLen is how many leading characters of the raw key are
	// stored in clear for lookup before the bcrypt comparison.
	lookupPrefixLen = 16
)

// APIKey is a stored credential. Hash is the bcrypt digest of the full raw
// key; Prefix is its first characters, kept in clear so validation can find
// the candidate row without comparing against every key.
type APIKey struct {
	ID             domain.APIKeyID
	OrganizationID *domain.OrganizationID
	Name           string
	Prefix         string
	Hash           []byte
	Sandbox        bool
	Active         bool
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

func (k *APIKey) clone() *APIKey {
	dup := *k
	dup.Hash = append([]byte(nil), k.Hash...)
	if k.OrganizationID != nil {
		org := *k.OrganizationID
		dup.OrganizationID = &org
	}
	if k.LastUsedAt != nil {
		used := *k.LastUsedAt
		dup.LastUsedAt = &used
	}
	return &dup
}
