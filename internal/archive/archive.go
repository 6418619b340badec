// Package archive stores raw rendered HTML snapshots so storefront breakage
// can be diagnosed after the fact.
package archive

import "context"

// Provider writes one snapshot and returns its URI.
type Provider interface {
	Save(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Noop discards snapshots.
type Noop struct{}

// Save drops the data and returns an empty URI.
func (Noop) Save(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", nil
}
