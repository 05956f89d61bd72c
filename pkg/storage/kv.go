// Package storage provides the durable key-value layer the engine
// persists into. On device this is the platform secure store; here the
// canonical implementation is SQLite, with an in-memory variant for
// tests and a plain JSON file store kept only for legacy migration.
package storage

import "context"

// KV is the minimal durable key-value contract. A missing key is
// reported through the ok flag, not an error.
type KV interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}
