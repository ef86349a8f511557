// Package kv provides the durable string-keyed store the client keeps
// its profile in.
package kv

import "context"

// Store is an opaque get/set/remove string store. Get reports false
// when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
