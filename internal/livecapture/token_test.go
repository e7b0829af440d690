package livecapture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

func TestIssue_RoundTrip(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Minute)
	verificationID := domain.NewVerificationID()

	token, challenge, err := issuer.Issue(verificationID, ChallengeBlink)
	require.NoError(t, err)
	assert.Equal(t, ChallengeBlink, challenge)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, verificationID, claims.VerificationID)
	assert.Equal(t, ChallengeBlink, claims.Challenge)
}

func TestIssue_RandomResolvesToConcreteChallenge(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Minute)

	_, challenge, err := issuer.Issue(domain.NewVerificationID(), ChallengeRandom)
	require.NoError(t, err)
	assert.Contains(t, []string{ChallengeBlink, ChallengeSmile, ChallengeTurnHead}, challenge)
}

func TestIssue_UnknownChallengeRejected(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Minute)

	_, _, err := issuer.Issue(domain.NewVerificationID(), "backflip")
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))
}

func TestValidate_WrongKeyRejected(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Minute)
	other := NewIssuer("different-key", time.Minute)

	token, _, err := issuer.Issue(domain.NewVerificationID(), ChallengeSmile)
	require.NoError(t, err)

	_, err = other.Validate(token)
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeUnauthorized))
}

func TestValidate_ExpiredTokenRejected(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Minute)
	issued := time.Now()
	issuer.now = func() time.Time { return issued }

	token, _, err := issuer.Issue(domain.NewVerificationID(), ChallengeTurnHead)
	require.NoError(t, err)

	issuer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = issuer.Validate(token)
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeUnauthorized))
}

func TestValidate_GarbageRejected(t *testing.T) {
	issuer := NewIssuer("test-signing-key", time.Minute)

	_, err := issuer.Validate("not.a.token")
	require.Error(t, err)
}
