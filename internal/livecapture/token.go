// Package livecapture issues and validates the short-lived tokens that
// authorize a live selfie submission against one verification.
package livecapture

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

// Challenge types a client may be asked to perform during capture.
const (
	ChallengeBlink    = "blink"
	ChallengeSmile    = "smile"
	ChallengeTurnHead = "turn_head"
	ChallengeRandom   = "random"
)

var challenges = []string{ChallengeBlink, ChallengeSmile, ChallengeTurnHead}

// ValidChallenge reports whether the challenge type is one we issue.
func ValidChallenge(challenge string) bool {
	for _, known := range challenges {
		if challenge == known {
			return true
		}
	}
	return challenge == ChallengeRandom
}

// Claims bind a live-capture token to one verification and challenge.
type Claims struct {
	VerificationID domain.VerificationID
	Challenge      string
	ExpiresAt      time.Time
}

type tokenClaims struct {
	Challenge string `json:"challenge"`
	jwt.RegisteredClaims
}

// Issuer mints and validates HS256 live-capture tokens.
type Issuer struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewIssuer builds an Issuer. ttl <= 0 falls back to five minutes, short
// enough that a leaked token is useless by the time it travels anywhere.
func NewIssuer(signingKey string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Issuer{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}
}

// Issue mints a token for one verification. ChallengeRandom picks a concrete
// challenge at issue time so the client receives an actionable instruction.
func (i *Issuer) Issue(verificationID domain.VerificationID, challenge string) (token, resolvedChallenge string, err error) {
	if !ValidChallenge(challenge) {
		return "", "", derrors.Newf(derrors.CodeInvalidInput, "unknown challenge type %q", challenge)
	}
	if challenge == ChallengeRandom {
		challenge = challenges[rand.Intn(len(challenges))]
	}

	now := i.now()
	claims := tokenClaims{
		Challenge: challenge,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   verificationID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("sign live capture token: %w", err)
	}
	return signed, challenge, nil
}

// Validate parses and verifies a token, returning the bound claims.
func (i *Issuer) Validate(token string) (*Claims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.signingKey, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeUnauthorized, "invalid live capture token")
	}
	if !parsed.Valid {
		return nil, derrors.New(derrors.CodeUnauthorized, "invalid live capture token")
	}

	verificationID, err := domain.ParseVerificationID(claims.Subject)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeUnauthorized, "malformed token subject")
	}
	return &Claims{
		VerificationID: verificationID,
		Challenge:      claims.Challenge,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}
