package model

import (
	"context"
	"io"
)

// ProofStorage holds submitted payment evidence. Keys are opaque proof
// references recorded on pending purchases.
type ProofStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
