// Package storage persists rendered audio objects and hands back the URLs
// clients fetch them from.
package storage

import "context"

// Store is the audio object store. Keys are slash-separated relative paths
// chosen by the caller ("speeches/<id>/<block>.mp3").
type Store interface {
	// Put writes the object and returns its public URL path.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
