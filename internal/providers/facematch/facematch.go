// Package facematch abstracts the vision providers used for face comparison
// and liveness checks. Implementations wrap external services; the state
// machine only sees scores in [0,1].
package facematch

import "context"

//go:generate mockgen -source=facematch.go -destination=mocks/facematch_mock.go -package=mocks

// Provider compares faces across images and scores liveness on a single
// capture. challenge may be empty when no specific challenge was issued.
type Provider interface {
	Compare(ctx context.Context, a, b []byte) (float64, error)
	Liveness(ctx context.Context, image []byte, challenge string) (float64, error)
}
