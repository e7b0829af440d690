// Package docstore abstracts document image storage. The service never keeps
// raw images in verification state; it stores them once and carries opaque
// paths.
package docstore

import "context"

//go:generate mockgen -source=docstore.go -destination=mocks/docstore_mock.go -package=mocks

// Store persists document images and returns opaque paths for later retrieval.
type Store interface {
	Store(ctx context.Context, image []byte) (string, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
}
