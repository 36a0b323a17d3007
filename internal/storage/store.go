package storage

import (
	"context"
	"errors"
)

// ErrArtifactNotFound indicates a Get for a key that was never written
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore persists rendered artifacts under slash-separated keys such as
// "security_results/panel_analysis.json".
type ArtifactStore interface {
	// Put writes data under key, creating parents as needed, and returns the
	// location recorded in summaries (a file path or blob URL).
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Location describes the store root for logs and health output
	Location() string
}
