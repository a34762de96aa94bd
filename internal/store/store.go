// Package store provides the string key-value persistence the history log
// is written to.
package store

import "context"

// KV is a process-wide key-value store with string values.
type KV interface {
	// Get returns the value stored under key. ok is false when nothing is stored.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set replaces the value stored under key in a single write.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
